package history

import (
	"time"

	"ipg-server/internal/game"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusRunning   Status = "running"
	StatusFinished  Status = "finished"
	StatusAbandoned Status = "abandoned"
)

func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusRunning, StatusFinished, StatusAbandoned:
		return true
	}
	return false
}

// GameRecord is the persisted summary of one room. Players holds the
// roster at start once the game is running.
type GameRecord struct {
	ID          string        `json:"id"`
	MapName     string        `json:"map_name"`
	Map         *game.Map     `json:"map,omitempty"`
	MinPlayers  int           `json:"min_players"`
	Players     []game.Player `json:"players"`
	Status      Status        `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
	FinalTime   *game.Tick    `json:"final_time,omitempty"`
	FinalDigest string        `json:"final_digest,omitempty"`
}

// MoveRecord is one accepted move. Seq is its position in the galaxy's
// move list.
type MoveRecord struct {
	GameID     string    `json:"game_id"`
	Seq        int       `json:"seq"`
	Possession int       `json:"possession"`
	FromPlanet int       `json:"from_planet"`
	ToPlanet   int       `json:"to_planet"`
	ArmadaSize int       `json:"armada_size"`
	StartTime  game.Tick `json:"start_time"`
	Move       game.Move `json:"move"`
}

// Result is what a room leaves behind when it is removed.
type Result struct {
	Status     Status
	FinishedAt time.Time
	FinalTime  game.Tick
	Digest     string
	Snapshot   []byte
}

// Replay is a re-simulated galaxy. Verified is set when the replay ran
// to the recorded final tick and reproduced the recorded digest.
type Replay struct {
	GameID    string        `json:"game_id"`
	Time      game.Tick     `json:"time"`
	Digest    string        `json:"digest"`
	Galaxy    *game.Galaxy  `json:"galaxy"`
	Players   []game.Player `json:"players"`
	MoveCount int           `json:"move_count"`
	Final     bool          `json:"final"`
	Verified  bool          `json:"verified"`
}
