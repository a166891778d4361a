package history

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"ipg-server/internal/game"
	"ipg-server/internal/lobby"
	"ipg-server/internal/shared/config"
)

// Store is the write side of the history repository.
type Store interface {
	CreateGame(ctx context.Context, record GameRecord) error
	UpdatePlayers(ctx context.Context, gameID string, players []game.Player) error
	MarkStarted(ctx context.Context, gameID string, players []game.Player, at time.Time) error
	InsertMove(ctx context.Context, move MoveRecord) error
	Finish(ctx context.Context, gameID string, result Result) error
}

type RecorderConfig struct {
	QueueSize        int
	WriteTimeout     time.Duration
	AttachTimeout    time.Duration
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

func RecorderConfigFrom(cfg *config.Config) RecorderConfig {
	return RecorderConfig{
		QueueSize:        cfg.Game.HistoryQueue,
		WriteTimeout:     5 * time.Second,
		AttachTimeout:    2 * time.Second,
		MaxRequests:      cfg.CircuitBreaker.MaxRequests,
		Interval:         cfg.CircuitBreaker.Interval,
		Timeout:          cfg.CircuitBreaker.Timeout,
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
	}
}

type RecorderStats struct {
	Queued  int    `json:"queued"`
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
	Breaker string `json:"breaker"`
}

type job struct {
	operation string
	gameID    string
	write     func(ctx context.Context) error
}

// Recorder mirrors room events into the history store. Writes are queued
// to a single worker so that the order of a game's records matches the
// order of its events, and rooms never wait on the database.
type Recorder struct {
	store   Store
	config  RecorderConfig
	breaker *gobreaker.CircuitBreaker
	jobs    chan job
	done    chan struct{}
	now     func() time.Time

	mu     sync.RWMutex
	closed bool

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64

	logger *slog.Logger
}

func NewRecorder(store Store, cfg RecorderConfig) *Recorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.AttachTimeout <= 0 {
		cfg.AttachTimeout = 2 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}

	logger := slog.With("component", "history_recorder")
	r := &Recorder{
		store:  store,
		config: cfg,
		jobs:   make(chan job, cfg.QueueSize),
		done:   make(chan struct{}),
		now:    time.Now,
		logger: logger,
	}
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "history",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("History breaker changed state", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	go r.run()
	return r
}

func (r *Recorder) run() {
	defer close(r.done)
	for j := range r.jobs {
		r.execute(j)
	}
}

func (r *Recorder) execute(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, j.write(ctx)
	})
	if err != nil {
		r.failed.Add(1)
		r.logger.Warn("History write failed",
			"operation", j.operation,
			"game_id", j.gameID,
			"breaker", r.breaker.State().String(),
			"error", err)
		return
	}
	r.written.Add(1)
}

// enqueue never blocks; a full queue or a closed recorder drops the write.
func (r *Recorder) enqueue(j job) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.dropped.Add(1)
		return false
	}
	select {
	case r.jobs <- j:
		return true
	default:
		r.dropped.Add(1)
		r.logger.Warn("History queue full, dropping write", "operation", j.operation, "game_id", j.gameID)
		return false
	}
}

// Attach records a new room and subscribes to its events. It is meant to
// run as a lobby room-created hook.
func (r *Recorder) Attach(room *lobby.Room) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.AttachTimeout)
	defer cancel()

	err := room.Do(ctx, func(e *game.GameExecutor) error {
		// Maps are immutable once a room exists.
		m := e.Game.Map
		record := GameRecord{
			ID:         room.ID,
			MapName:    room.MapID,
			Map:        &m,
			MinPlayers: e.Game.Config.MinPlayers,
			Players:    append([]game.Player{}, e.Game.Players...),
			Status:     StatusWaiting,
			CreatedAt:  room.CreatedAt,
		}
		r.enqueue(job{operation: "create_game", gameID: room.ID, write: func(ctx context.Context) error {
			return r.store.CreateGame(ctx, record)
		}})

		e.Events.OnEvent(func(event game.GameEvent, g *game.Game) {
			r.onEvent(room.ID, event, g)
		})
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to attach recorder to room", "game_id", room.ID, "error", err)
	}
}

func (r *Recorder) onEvent(gameID string, event game.GameEvent, g *game.Game) {
	switch event.Type {
	case game.EventPlayer, game.EventPlayerLeave:
		if g.Started() {
			return
		}
		players := append([]game.Player{}, g.Players...)
		r.enqueue(job{operation: "update_players", gameID: gameID, write: func(ctx context.Context) error {
			return r.store.UpdatePlayers(ctx, gameID, players)
		}})

	case game.EventStart:
		players := append([]game.Player{}, g.Players...)
		at := r.now()
		r.enqueue(job{operation: "mark_started", gameID: gameID, write: func(ctx context.Context) error {
			return r.store.MarkStarted(ctx, gameID, players, at)
		}})

	case game.EventMove:
		if event.Move == nil || g.State == nil {
			return
		}
		move := event.Move.Clone()
		record := MoveRecord{
			GameID:     gameID,
			Seq:        len(g.State.Moves) - 1,
			Possession: move.Attacker(),
			FromPlanet: move.From.Index,
			ToPlanet:   move.To.Index,
			ArmadaSize: move.ArmadaSize,
			StartTime:  move.StartTime,
			Move:       move,
		}
		r.enqueue(job{operation: "insert_move", gameID: gameID, write: func(ctx context.Context) error {
			return r.store.InsertMove(ctx, record)
		}})
	}
}

// Detach captures the final state of a room leaving the lobby. It is
// meant to run as a lobby room-removed hook.
func (r *Recorder) Detach(room *lobby.Room) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.AttachTimeout)
	defer cancel()

	var result Result
	err := room.Do(ctx, func(e *game.GameExecutor) error {
		result = Result{Status: StatusAbandoned, FinishedAt: r.now()}
		galaxy := e.Game.State
		if galaxy == nil {
			return nil
		}

		if now := e.GetTime(); now > galaxy.Time {
			e.StepTo(now)
		}
		snapshot, err := EncodeSnapshot(galaxy)
		if err != nil {
			return err
		}
		result.Status = StatusFinished
		result.FinalTime = galaxy.Time
		result.Digest = galaxy.Digest()
		result.Snapshot = snapshot
		return nil
	})
	switch {
	case err != nil && room.Failed():
		// The executor broke; its state is not trusted, so close the record
		// without a final galaxy.
		r.logger.Warn("Recording failed game as abandoned", "game_id", room.ID)
		result = Result{Status: StatusAbandoned, FinishedAt: r.now()}
	case err != nil:
		r.logger.Error("Failed to capture final game state", "game_id", room.ID, "error", err)
		return
	}

	r.enqueue(job{operation: "finish_game", gameID: room.ID, write: func(ctx context.Context) error {
		return r.store.Finish(ctx, room.ID, result)
	}})
}

func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Queued:  len(r.jobs),
		Written: r.written.Load(),
		Dropped: r.dropped.Load(),
		Failed:  r.failed.Load(),
		Breaker: r.breaker.State().String(),
	}
}

// Close stops accepting writes and waits for the queue to drain.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.jobs)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		r.logger.Warn("History queue not drained before shutdown", "pending", len(r.jobs))
		return ctx.Err()
	}
}
