package protocol

import (
	"ipg-server/internal/game"
	"ipg-server/internal/lobby"
	"ipg-server/internal/maps"
)

// MessageType names the payload carried by an envelope.
type MessageType string

// Client to server.
const (
	TypeSetName    MessageType = "set_name"
	TypeCreateGame MessageType = "create_game"
	TypeEnterGame  MessageType = "enter_game"
	TypeStartGame  MessageType = "start_game"
	TypeGameMove   MessageType = "game_move"
	TypeExitGame   MessageType = "exit_game"
	TypeTime       MessageType = "time"
)

// Server to client. enter_game, start_game, game_move, exit_game and time
// are also echoed back under their inbound names.
const (
	TypeMapList     MessageType = "map_list"
	TypeGameList    MessageType = "game_list"
	TypeNewGame     MessageType = "new_game"
	TypeRemoveGame  MessageType = "remove_game"
	TypePossession  MessageType = "possession"
	TypeRejoinCode  MessageType = "rejoin_code"
	TypeGame        MessageType = "game"
	TypeGamePlayers MessageType = "game_players"
	TypeError       MessageType = "error"
)

type SetName struct {
	Name string `json:"name" msgpack:"name"`
}

type CreateGame struct {
	MapID  string           `json:"map_id" msgpack:"map_id"`
	Config *game.GameConfig `json:"config,omitempty" msgpack:"config,omitempty"`
}

type EnterGame struct {
	GameID     string `json:"game_id" msgpack:"game_id"`
	RejoinCode string `json:"rejoin_code,omitempty" msgpack:"rejoin_code,omitempty"`
}

type GameMove struct {
	From int `json:"from" msgpack:"from"`
	To   int `json:"to" msgpack:"to"`
}

type MapList struct {
	Maps []maps.Summary `json:"maps" msgpack:"maps"`
}

type GameList struct {
	Games []lobby.GameInfo `json:"games" msgpack:"games"`
}

type NewGame struct {
	Game lobby.GameInfo `json:"game" msgpack:"game"`
}

type RemoveGame struct {
	GameID string `json:"game_id" msgpack:"game_id"`
}

type EnteredGame struct {
	GameID string `json:"game_id" msgpack:"game_id"`
}

type Possession struct {
	Possession int `json:"possession" msgpack:"possession"`
}

type RejoinCode struct {
	Code string `json:"code" msgpack:"code"`
}

// GameState is a full snapshot. Digest lets a client confirm its own
// simulation matches after resynchronising.
type GameState struct {
	Game   *game.Game `json:"game" msgpack:"game"`
	Digest string     `json:"digest,omitempty" msgpack:"digest,omitempty"`
}

type GamePlayers struct {
	Players []game.Player `json:"players" msgpack:"players"`
}

type MoveAdded struct {
	Move game.Move `json:"move" msgpack:"move"`
}

// Time answers a clock request. ServerTime is wall-clock milliseconds
// since the Unix epoch; Tick is the current game tick, zero outside a
// running game.
type Time struct {
	ServerTime int64     `json:"server_time" msgpack:"server_time"`
	Tick       game.Tick `json:"tick" msgpack:"tick"`
}

type Error struct {
	Type    string `json:"type" msgpack:"type"`
	Message string `json:"message" msgpack:"message"`
}
