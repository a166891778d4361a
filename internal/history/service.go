package history

import (
	"context"
	"log/slog"

	"ipg-server/internal/game"
	"ipg-server/internal/shared/errors"
)

// Reader is the query side of the history repository.
type Reader interface {
	GetGame(ctx context.Context, gameID string) (*GameRecord, error)
	ListGames(ctx context.Context, status Status, limit int) ([]GameRecord, error)
	ListMoves(ctx context.Context, gameID string) ([]MoveRecord, error)
	GetSnapshot(ctx context.Context, gameID string) ([]byte, error)
}

type Service struct {
	repo   Reader
	logger *slog.Logger
}

func NewService(repo Reader) *Service {
	return &Service{
		repo:   repo,
		logger: slog.With("component", "history_service"),
	}
}

func (s *Service) ListGames(ctx context.Context, status Status, limit int) ([]GameRecord, error) {
	if status != "" && !status.Valid() {
		return nil, errors.Validationf("unknown game status %q", status)
	}
	return s.repo.ListGames(ctx, status, limit)
}

func (s *Service) GetGame(ctx context.Context, gameID string) (*GameRecord, error) {
	return s.repo.GetGame(ctx, gameID)
}

func (s *Service) Moves(ctx context.Context, gameID string) ([]MoveRecord, error) {
	if _, err := s.repo.GetGame(ctx, gameID); err != nil {
		return nil, err
	}
	return s.repo.ListMoves(ctx, gameID)
}

// FinalGalaxy decodes the snapshot stored when the game ended.
func (s *Service) FinalGalaxy(ctx context.Context, gameID string) (*game.Galaxy, error) {
	data, err := s.repo.GetSnapshot(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.Conflictf("game %s has no final snapshot", gameID)
	}
	return DecodeSnapshot(data)
}

// Replay rebuilds a game's galaxy from its map, starting roster and
// recorded moves, and steps it to at. A nil at replays to the recorded
// final tick, or to the last move when the game has not finished.
func (s *Service) Replay(ctx context.Context, gameID string, at *game.Tick) (*Replay, error) {
	logger := s.logger.With("operation", "replay", "game_id", gameID)

	record, err := s.repo.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if record.StartedAt == nil || record.Map == nil {
		return nil, errors.Conflictf("game %s never started", gameID)
	}
	moves, err := s.repo.ListMoves(ctx, gameID)
	if err != nil {
		return nil, err
	}

	target := game.Tick(0)
	switch {
	case at != nil:
		target = *at
	case record.FinalTime != nil:
		target = *record.FinalTime
	case len(moves) > 0:
		target = moves[len(moves)-1].StartTime
	}
	if record.FinalTime != nil && target > *record.FinalTime {
		return nil, errors.Validationf("game %s ended at tick %d", gameID, *record.FinalTime)
	}

	g := game.NewGame(*record.Map, game.GameConfig{MinPlayers: record.MinPlayers})
	g.Players = append([]game.Player{}, record.Players...)
	galaxy, err := g.Map.ToGalaxy(g.Players)
	if err != nil {
		return nil, errors.WrapInternal("recorded roster no longer fits the map", err)
	}
	g.State = galaxy
	executor := game.NewGameExecutor(g, gameID)

	applied := 0
	for i, move := range moves {
		if move.StartTime > target {
			break
		}
		if move.Seq != i {
			logger.Warn("Move history has a gap", "expected_seq", i, "seq", move.Seq)
		}
		player, ok := g.Player(move.Possession)
		if !ok {
			player = game.Player{Possession: move.Possession}
		}
		if err := executor.AddMove(player, move.Move); err != nil {
			logger.Warn("Recorded move rejected during replay", "seq", move.Seq, "error", err)
			return nil, errors.Conflictf("recorded move %d cannot be replayed: %v", move.Seq, err)
		}
		applied++
	}
	executor.StepTo(target)

	replay := &Replay{
		GameID:    gameID,
		Time:      galaxy.Time,
		Digest:    galaxy.Digest(),
		Galaxy:    galaxy,
		Players:   g.Players,
		MoveCount: applied,
		Final:     record.FinalTime != nil && target == *record.FinalTime,
	}
	replay.Verified = replay.Final && replay.Digest == record.FinalDigest
	if replay.Final && !replay.Verified {
		replay.Verified = s.matchesSnapshot(ctx, gameID, galaxy)
	}
	if replay.Final && !replay.Verified {
		logger.Warn("Replay digest does not match the recorded final state",
			"recorded", record.FinalDigest, "replayed", replay.Digest, "moves", applied)
	}
	return replay, nil
}

// ReplayTolerance bounds how far a replayed planet value may drift from
// the recorded snapshot and still count as the same state.
const ReplayTolerance = 1e-6

// matchesSnapshot compares a replayed galaxy with the recorded final
// snapshot when the digests disagree.
func (s *Service) matchesSnapshot(ctx context.Context, gameID string, replayed *game.Galaxy) bool {
	data, err := s.repo.GetSnapshot(ctx, gameID)
	if err != nil || len(data) == 0 {
		return false
	}
	recorded, err := DecodeSnapshot(data)
	if err != nil {
		s.logger.Warn("Stored snapshot could not be decoded", "game_id", gameID, "error", err)
		return false
	}
	return replayed.Matches(recorded, ReplayTolerance)
}
