package rejoin

import (
	"context"
	"crypto/rand"
	"log/slog"
	"math/big"
	"time"

	"ipg-server/internal/shared/errors"
)

const (
	CodeLength = 7
	alphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var ErrInvalidCode = errors.Forbidden("invalid or expired rejoin code")

type Service struct {
	store Store
	ttl   time.Duration
}

func NewService(store Store, ttl time.Duration) *Service {
	return &Service{store: store, ttl: ttl}
}

// GenerateCode returns a random alphanumeric code.
func GenerateCode() (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	code := make([]byte, CodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = alphabet[n.Int64()]
	}
	return string(code), nil
}

// Issue stores a ticket under a fresh code.
func (s *Service) Issue(ctx context.Context, ticket Ticket) (string, error) {
	logger := slog.With("component", "rejoin_service", "operation", "issue", "game_id", ticket.GameID)

	code, err := GenerateCode()
	if err != nil {
		return "", errors.WrapInternal("failed to generate rejoin code", err)
	}
	if err := s.store.Save(ctx, code, ticket, s.ttl); err != nil {
		logger.Error("Failed to store rejoin code", "error", err)
		return "", errors.WrapExternal("failed to store rejoin code", err)
	}

	logger.Debug("Rejoin code issued", "possession", ticket.Possession)
	return code, nil
}

// Redeem returns the ticket for code if it belongs to gameID. Codes stay
// valid until they expire so a player can reconnect more than once.
func (s *Service) Redeem(ctx context.Context, code, gameID string) (Ticket, error) {
	ticket, ok, err := s.store.Load(ctx, code)
	if err != nil {
		return Ticket{}, errors.WrapExternal("failed to look up rejoin code", err)
	}
	if !ok || ticket.GameID != gameID {
		return Ticket{}, ErrInvalidCode
	}
	return ticket, nil
}

func (s *Service) Revoke(ctx context.Context, code string) error {
	if err := s.store.Delete(ctx, code); err != nil {
		return errors.WrapExternal("failed to revoke rejoin code", err)
	}
	return nil
}
