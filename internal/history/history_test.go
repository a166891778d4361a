package history

import (
	"context"
	"testing"
	"time"

	"ipg-server/internal/game"
	"ipg-server/internal/shared/database"
)

const squareMapJSON = `{
	"size": {"x": 100, "y": 100},
	"name": "square",
	"planets": [
		{"x": 10, "y": 10, "start_value": 20, "radius": 3, "possession": [1, 1], "multiplier": 1},
		{"x": 90, "y": 10, "start_value": 20, "radius": 3, "possession": [2, 2], "multiplier": 1},
		{"x": 90, "y": 90, "start_value": 5, "radius": 2, "possession": [0, 3], "multiplier": 1},
		{"x": 10, "y": 90, "start_value": 5, "radius": 2, "possession": [0, 0], "multiplier": 1}
	]
}`

type staticMaps map[string]game.Map

func (s staticMaps) MapIDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	return ids
}

func (s staticMaps) MapByID(id string) (game.Map, bool) {
	m, ok := s[id]
	return m, ok
}

func squareMap(t *testing.T) game.Map {
	t.Helper()
	m, err := game.ParseMap([]byte(squareMapJSON))
	if err != nil {
		t.Fatalf("ParseMap() error = %v", err)
	}
	return *m
}

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.RunMigrations(context.Background()); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	return NewRepository(db)
}

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time { return c.now }

func (c *stepClock) Advance(ticks game.Tick) {
	c.now = c.now.Add(time.Duration(ticks) * game.TimeDivisor * time.Millisecond)
}

// playedGame is a finished three-player game, with the records a
// recorder would have written for it.
type playedGame struct {
	record GameRecord
	moves  []MoveRecord
	result Result
	final  *game.Galaxy
}

func playGame(t *testing.T, id string) playedGame {
	t.Helper()
	clock := &stepClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := squareMap(t)
	e := game.NewGameExecutor(game.NewGame(m, game.GameConfig{MinPlayers: 2}), id)
	e.SetClock(clock.Now)

	var players []game.Player
	for _, name := range []string{"alice", "bob", "carol"} {
		p, err := e.AddPlayer(game.Player{Name: name})
		if err != nil {
			t.Fatalf("AddPlayer(%s) error = %v", name, err)
		}
		players = append(players, p)
	}
	if err := e.StartGame(); err != nil {
		t.Fatalf("StartGame() error = %v", err)
	}

	var moves []MoveRecord
	send := func(player game.Player, from, to int) {
		move, err := e.CreateMove(from, to)
		if err != nil {
			t.Fatalf("CreateMove(%d, %d) error = %v", from, to, err)
		}
		if err := e.AddMove(player, move); err != nil {
			t.Fatalf("AddMove(%d, %d) error = %v", from, to, err)
		}
		moves = append(moves, MoveRecord{
			GameID:     id,
			Seq:        len(moves),
			Possession: player.Possession,
			FromPlanet: from,
			ToPlanet:   to,
			ArmadaSize: move.ArmadaSize,
			StartTime:  move.StartTime,
			Move:       move.Clone(),
		})
	}

	send(players[0], 0, 3)
	clock.Advance(25)
	send(players[1], 1, 2)
	clock.Advance(40)
	e.StepTo(e.GetTime())
	send(players[2], 2, 3)
	clock.Advance(300)
	e.StepTo(e.GetTime())

	galaxy := e.Game.State
	snapshot, err := EncodeSnapshot(galaxy)
	if err != nil {
		t.Fatalf("EncodeSnapshot() error = %v", err)
	}

	return playedGame{
		record: GameRecord{
			ID:         id,
			MapName:    "square",
			Map:        &m,
			MinPlayers: 2,
			Players:    players,
			Status:     StatusWaiting,
			CreatedAt:  clock.now.Add(-time.Minute).UTC().Truncate(time.Millisecond),
		},
		moves: moves,
		result: Result{
			Status:     StatusFinished,
			FinishedAt: clock.now,
			FinalTime:  galaxy.Time,
			Digest:     galaxy.Digest(),
			Snapshot:   snapshot,
		},
		final: galaxy.Clone(),
	}
}

func storeGame(t *testing.T, repo *Repository, played playedGame) {
	t.Helper()
	ctx := context.Background()
	if err := repo.CreateGame(ctx, played.record); err != nil {
		t.Fatalf("CreateGame() error = %v", err)
	}
	if err := repo.MarkStarted(ctx, played.record.ID, played.record.Players, played.record.CreatedAt.Add(time.Second)); err != nil {
		t.Fatalf("MarkStarted() error = %v", err)
	}
	for _, move := range played.moves {
		if err := repo.InsertMove(ctx, move); err != nil {
			t.Fatalf("InsertMove(%d) error = %v", move.Seq, err)
		}
	}
	if err := repo.Finish(ctx, played.record.ID, played.result); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
}
