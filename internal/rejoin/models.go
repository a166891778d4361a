package rejoin

import (
	"context"
	"time"
)

// Ticket records the seat a rejoin code restores.
type Ticket struct {
	GameID     string `json:"game_id"`
	Name       string `json:"name"`
	Possession int    `json:"possession"`
}

// Store persists tickets by code until they expire.
type Store interface {
	Save(ctx context.Context, code string, ticket Ticket, ttl time.Duration) error
	Load(ctx context.Context, code string) (Ticket, bool, error)
	Delete(ctx context.Context, code string) error
}
