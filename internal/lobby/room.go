package lobby

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"ipg-server/internal/game"
	"ipg-server/internal/shared/errors"
)

var ErrRoomClosed = errors.Conflict("game is no longer running")

// GameInfo is the lobby listing of a room.
type GameInfo struct {
	ID         string    `json:"id" msgpack:"id"`
	MapID      string    `json:"map_id" msgpack:"map_id"`
	Players    int       `json:"players" msgpack:"players"`
	MinPlayers int       `json:"min_players" msgpack:"min_players"`
	MaxPlayers int       `json:"max_players" msgpack:"max_players"`
	Started    bool      `json:"started" msgpack:"started"`
	CreatedAt  time.Time `json:"created_at" msgpack:"created_at"`
}

type op struct {
	fn     func(*game.GameExecutor) error
	result chan error
}

// Room owns one game executor. Every read or mutation of the executor
// runs on the room's goroutine, one at a time, via Do.
type Room struct {
	ID        string
	MapID     string
	CreatedAt time.Time

	ops       chan op
	done      chan struct{}
	stopOnce  sync.Once
	info      atomic.Pointer[GameInfo]
	failed    atomic.Bool
	onFailure func(*Room)
	executor  *game.GameExecutor
	logger    *slog.Logger
}

func newRoom(id, mapID string, executor *game.GameExecutor, createdAt time.Time, onFailure func(*Room)) *Room {
	r := &Room{
		ID:        id,
		MapID:     mapID,
		CreatedAt: createdAt,
		ops:       make(chan op),
		done:      make(chan struct{}),
		onFailure: onFailure,
		executor:  executor,
		logger:    slog.With("component", "room", "game_id", id),
	}
	r.refreshInfo()
	go r.run()
	return r
}

func (r *Room) run() {
	for {
		select {
		case <-r.done:
			return
		default:
		}

		select {
		case <-r.done:
			return
		case o := <-r.ops:
			o.result <- r.apply(o.fn)
		}
	}
}

// apply runs fn against the executor. A panic means a simulation
// invariant broke; the room is closed rather than left serving a galaxy
// that no longer matches its history, and onFailure is told so the room
// stops being listed.
func (r *Room) apply(fn func(*game.GameExecutor) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Game executor panicked, closing room", "panic", p)
			err = errors.WrapInternal("game simulation failed", fmt.Errorf("%v", p))
			r.failed.Store(true)
			r.Close()
			if r.onFailure != nil {
				r.onFailure(r)
			}
		}
		r.refreshInfo()
	}()
	return fn(r.executor)
}

func (r *Room) refreshInfo() {
	g := r.executor.Game
	r.info.Store(&GameInfo{
		ID:         r.ID,
		MapID:      r.MapID,
		Players:    len(g.Players),
		MinPlayers: g.Config.MinPlayers,
		MaxPlayers: g.Map.MaxPlayers(),
		Started:    g.Started(),
		CreatedAt:  r.CreatedAt,
	})
}

// Do runs fn on the room's goroutine and returns its error. fn must not
// call Do on the same room, and event handlers it triggers run on the
// same goroutine.
func (r *Room) Do(ctx context.Context, fn func(*game.GameExecutor) error) error {
	o := op{fn: fn, result: make(chan error, 1)}

	select {
	case r.ops <- o:
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-o.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Info returns the listing captured after the last operation.
func (r *Room) Info() GameInfo {
	return *r.info.Load()
}

// Close stops the room. Pending Do calls return ErrRoomClosed.
func (r *Room) Close() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
}

// Failed reports whether the room closed because its executor panicked.
func (r *Room) Failed() bool {
	return r.failed.Load()
}

func (r *Room) Done() <-chan struct{} {
	return r.done
}
