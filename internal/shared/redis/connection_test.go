package redis

import (
	"testing"

	"ipg-server/internal/shared/config"
)

func TestOptions(t *testing.T) {
	t.Run("host and port", func(t *testing.T) {
		opts, err := options(config.RedisConfig{Host: "cache", Port: "6380", DB: 2})
		if err != nil {
			t.Fatalf("options() error = %v", err)
		}
		if opts.Addr != "cache:6380" || opts.DB != 2 {
			t.Errorf("addr=%s db=%d", opts.Addr, opts.DB)
		}
	})

	t.Run("url", func(t *testing.T) {
		opts, err := options(config.RedisConfig{URL: "redis://:secret@example.com:6390/3"})
		if err != nil {
			t.Fatalf("options() error = %v", err)
		}
		if opts.Addr != "example.com:6390" || opts.DB != 3 || opts.Password != "secret" {
			t.Errorf("opts = %+v", opts)
		}
	})

	t.Run("bad url", func(t *testing.T) {
		if _, err := options(config.RedisConfig{URL: "http://nope"}); err == nil {
			t.Error("options() accepted a non-redis URL")
		}
	})
}

func TestClose_Nil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client = %v", err)
	}
}
