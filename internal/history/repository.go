package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"ipg-server/internal/game"
	"ipg-server/internal/shared/database"
	"ipg-server/internal/shared/errors"
)

const DefaultListLimit = 50

type Repository struct {
	db     *database.DB
	logger *slog.Logger
}

func NewRepository(db *database.DB) *Repository {
	return &Repository{
		db:     db,
		logger: slog.With("component", "history_repository"),
	}
}

func (r *Repository) CreateGame(ctx context.Context, record GameRecord) error {
	logger := r.logger.With("operation", "create_game", "game_id", record.ID, "map_name", record.MapName)

	mapData, err := json.Marshal(record.Map)
	if err != nil {
		return fmt.Errorf("failed to encode map: %w", err)
	}
	players, err := encodePlayers(record.Players)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO games (id, map_name, map_data, min_players, players, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.db.ExecContext(ctx, query,
		record.ID, record.MapName, string(mapData), record.MinPlayers, players, string(StatusWaiting), record.CreatedAt.UnixMilli())
	if err != nil {
		logger.Error("Failed to create game record", "error", err)
		return fmt.Errorf("failed to create game record: %w", err)
	}

	logger.Debug("Game record created")
	return nil
}

func (r *Repository) UpdatePlayers(ctx context.Context, gameID string, players []game.Player) error {
	data, err := encodePlayers(players)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `UPDATE games SET players = $1 WHERE id = $2 AND status = $3`,
		data, gameID, string(StatusWaiting))
	if err != nil {
		r.logger.Error("Failed to update players", "operation", "update_players", "game_id", gameID, "error", err)
		return fmt.Errorf("failed to update players: %w", err)
	}
	return nil
}

// MarkStarted freezes the roster the galaxy was generated from.
func (r *Repository) MarkStarted(ctx context.Context, gameID string, players []game.Player, at time.Time) error {
	data, err := encodePlayers(players)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `UPDATE games SET players = $1, status = $2, started_at = $3 WHERE id = $4`,
		data, string(StatusRunning), at.UnixMilli(), gameID)
	if err != nil {
		r.logger.Error("Failed to mark game started", "operation", "mark_started", "game_id", gameID, "error", err)
		return fmt.Errorf("failed to mark game started: %w", err)
	}
	return nil
}

func (r *Repository) InsertMove(ctx context.Context, move MoveRecord) error {
	data, err := json.Marshal(move.Move)
	if err != nil {
		return fmt.Errorf("failed to encode move: %w", err)
	}

	query := `
		INSERT INTO game_moves (game_id, seq, possession, from_planet, to_planet, armada_size, start_time, move_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.ExecContext(ctx, query,
		move.GameID, move.Seq, move.Possession, move.FromPlanet, move.ToPlanet, move.ArmadaSize, int64(move.StartTime), string(data))
	if err != nil {
		r.logger.Error("Failed to insert move", "operation", "insert_move", "game_id", move.GameID, "seq", move.Seq, "error", err)
		return fmt.Errorf("failed to insert move: %w", err)
	}
	return nil
}

func (r *Repository) Finish(ctx context.Context, gameID string, result Result) error {
	logger := r.logger.With("operation", "finish_game", "game_id", gameID, "status", result.Status)

	var finalTime sql.NullInt64
	var digest sql.NullString
	if result.Digest != "" {
		finalTime = sql.NullInt64{Int64: int64(result.FinalTime), Valid: true}
		digest = sql.NullString{String: result.Digest, Valid: true}
	}

	query := `
		UPDATE games
		SET status = $1, finished_at = $2, final_time = $3, final_digest = $4, snapshot = $5
		WHERE id = $6
	`
	_, err := r.db.ExecContext(ctx, query,
		string(result.Status), result.FinishedAt.UnixMilli(), finalTime, digest, result.Snapshot, gameID)
	if err != nil {
		logger.Error("Failed to finish game", "error", err)
		return fmt.Errorf("failed to finish game: %w", err)
	}

	logger.Debug("Game record finished", "final_time", result.FinalTime, "snapshot_bytes", len(result.Snapshot))
	return nil
}

const gameColumns = `id, map_name, map_data, min_players, players, status, created_at, started_at, finished_at, final_time, final_digest`

func (r *Repository) GetGame(ctx context.Context, gameID string) (*GameRecord, error) {
	logger := r.logger.With("operation", "get_game", "game_id", gameID)

	row := r.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, gameID)
	record, err := scanGame(row, true)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundf("game %s not found", gameID)
		}
		logger.Error("Database error getting game", "error", err)
		return nil, fmt.Errorf("database error: %w", err)
	}
	return record, nil
}

// ListGames returns the most recent games first. An empty status lists
// every game.
func (r *Repository) ListGames(ctx context.Context, status Status, limit int) ([]GameRecord, error) {
	logger := r.logger.With("operation", "list_games", "status", status)

	if limit <= 0 {
		limit = DefaultListLimit
	}

	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+gameColumns+` FROM games ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+gameColumns+` FROM games WHERE status = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, string(status), limit)
	}
	if err != nil {
		logger.Error("Failed to query games", "error", err)
		return nil, fmt.Errorf("failed to query games: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Error("Failed to close rows", "error", err)
		}
	}()

	games := []GameRecord{}
	for rows.Next() {
		record, err := scanGame(rows, false)
		if err != nil {
			logger.Error("Failed to scan game", "error", err)
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate games: %w", err)
	}
	return games, nil
}

// ListMoves returns a game's moves in the order they were accepted.
func (r *Repository) ListMoves(ctx context.Context, gameID string) ([]MoveRecord, error) {
	logger := r.logger.With("operation", "list_moves", "game_id", gameID)

	query := `
		SELECT seq, possession, from_planet, to_planet, armada_size, start_time, move_data
		FROM game_moves
		WHERE game_id = $1
		ORDER BY seq
	`
	rows, err := r.db.QueryContext(ctx, query, gameID)
	if err != nil {
		logger.Error("Failed to query moves", "error", err)
		return nil, fmt.Errorf("failed to query moves: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Error("Failed to close rows", "error", err)
		}
	}()

	moves := []MoveRecord{}
	for rows.Next() {
		move := MoveRecord{GameID: gameID}
		var startTime int64
		var data string
		if err := rows.Scan(&move.Seq, &move.Possession, &move.FromPlanet, &move.ToPlanet,
			&move.ArmadaSize, &startTime, &data); err != nil {
			return nil, fmt.Errorf("failed to scan move: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &move.Move); err != nil {
			return nil, fmt.Errorf("failed to decode move %d: %w", move.Seq, err)
		}
		move.StartTime = game.Tick(startTime)
		moves = append(moves, move)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate moves: %w", err)
	}
	return moves, nil
}

// GetSnapshot returns the compressed final galaxy, or nil when the game
// ended before it started.
func (r *Repository) GetSnapshot(ctx context.Context, gameID string) ([]byte, error) {
	var snapshot []byte
	err := r.db.QueryRowContext(ctx, `SELECT snapshot FROM games WHERE id = $1`, gameID).Scan(&snapshot)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundf("game %s not found", gameID)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return snapshot, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanGame(row scanner, withMap bool) (*GameRecord, error) {
	var (
		record                           GameRecord
		mapData, players, status         string
		createdAt                        int64
		startedAt, finishedAt, finalTime sql.NullInt64
		digest                           sql.NullString
	)
	err := row.Scan(&record.ID, &record.MapName, &mapData, &record.MinPlayers, &players, &status,
		&createdAt, &startedAt, &finishedAt, &finalTime, &digest)
	if err != nil {
		return nil, err
	}

	record.Status = Status(status)
	record.CreatedAt = time.UnixMilli(createdAt).UTC()
	if startedAt.Valid {
		t := time.UnixMilli(startedAt.Int64).UTC()
		record.StartedAt = &t
	}
	if finishedAt.Valid {
		t := time.UnixMilli(finishedAt.Int64).UTC()
		record.FinishedAt = &t
	}
	if finalTime.Valid {
		tick := game.Tick(finalTime.Int64)
		record.FinalTime = &tick
	}
	record.FinalDigest = digest.String

	if err := json.Unmarshal([]byte(players), &record.Players); err != nil {
		return nil, fmt.Errorf("failed to decode players: %w", err)
	}
	if withMap {
		var m game.Map
		if err := json.Unmarshal([]byte(mapData), &m); err != nil {
			return nil, fmt.Errorf("failed to decode map: %w", err)
		}
		record.Map = &m
	}
	return &record, nil
}

func encodePlayers(players []game.Player) (string, error) {
	if players == nil {
		players = []game.Player{}
	}
	data, err := json.Marshal(players)
	if err != nil {
		return "", fmt.Errorf("failed to encode players: %w", err)
	}
	return string(data), nil
}
