package history

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"

	"ipg-server/internal/game"
)

// EncodeSnapshot packs a galaxy as lz4-compressed msgpack.
func EncodeSnapshot(galaxy *game.Galaxy) ([]byte, error) {
	raw, err := msgpack.Marshal(galaxy)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("failed to compress snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodeSnapshot(data []byte) (*game.Galaxy, error) {
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, lz4.NewReader(bytes.NewReader(data))); err != nil {
		return nil, fmt.Errorf("failed to decompress snapshot: %w", err)
	}

	var galaxy game.Galaxy
	if err := msgpack.Unmarshal(raw.Bytes(), &galaxy); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &galaxy, nil
}
