package handlers

import (
	"log/slog"
	"net/http"

	"ipg-server/internal/lobby"
	"ipg-server/internal/shared/errors"
	"ipg-server/internal/shared/response"
)

type GameStatusResponse struct {
	Game          string `json:"game"`
	Games         int    `json:"games"`
	RunningGames  int    `json:"running_games"`
	Players       int    `json:"players"`
	OnlinePlayers int64  `json:"online_players"`
}

type GameStatusHandler struct {
	lobby    *lobby.Lobby
	sessions SessionStats
}

func NewGameStatusHandler(l *lobby.Lobby, sessions SessionStats) *GameStatusHandler {
	return &GameStatusHandler{lobby: l, sessions: sessions}
}

func (h *GameStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "game_status")

	if r.Method != http.MethodGet {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	resp := GameStatusResponse{Game: "Inter Planet Game"}
	for _, info := range h.lobby.List() {
		resp.Games++
		resp.Players += info.Players
		if info.Started {
			resp.RunningGames++
		}
	}
	if h.sessions != nil {
		resp.OnlinePlayers = h.sessions.Stats().Connections
	}

	response.Success(w, http.StatusOK, resp)
}
