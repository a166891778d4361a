package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"ipg-server/internal/game"
	"ipg-server/internal/history"
	"ipg-server/internal/lobby"
	"ipg-server/internal/shared/errors"
	"ipg-server/internal/shared/response"
)

const maxListLimit = 200

type GameList struct {
	Live    []lobby.GameInfo     `json:"live"`
	History []history.GameRecord `json:"history,omitempty"`
}

// GameHandler serves running games from the lobby and, when a database
// is configured, recorded games from the history service.
type GameHandler struct {
	lobby   *lobby.Lobby
	service *history.Service
}

func NewGameHandler(l *lobby.Lobby, service *history.Service) *GameHandler {
	return &GameHandler{lobby: l, service: service}
}

func (h *GameHandler) List(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "list_games")

	if r.Method != http.MethodGet {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	list := GameList{Live: h.lobby.List()}
	if h.service != nil {
		limit := history.DefaultListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > maxListLimit {
				response.Error(w, r, logger, errors.Validationf("limit must be between 1 and %d", maxListLimit))
				return
			}
			limit = n
		}

		records, err := h.service.ListGames(r.Context(), history.Status(r.URL.Query().Get("status")), limit)
		if err != nil {
			response.Error(w, r, logger, err)
			return
		}
		list.History = records
	}

	response.Success(w, http.StatusOK, list)
}

func (h *GameHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "get_game")

	if !h.allow(w, r, logger) {
		return
	}

	record, err := h.service.GetGame(r.Context(), r.PathValue("id"))
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusOK, record)
}

func (h *GameHandler) Moves(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "list_game_moves")

	if !h.allow(w, r, logger) {
		return
	}

	moves, err := h.service.Moves(r.Context(), r.PathValue("id"))
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusOK, moves)
}

// Replay re-simulates a recorded game. The optional at query parameter
// selects the tick.
func (h *GameHandler) Replay(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "replay_game")

	if !h.allow(w, r, logger) {
		return
	}

	var at *game.Tick
	if raw := r.URL.Query().Get("at"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			response.Error(w, r, logger, errors.WrapValidation("at must be a tick number", err))
			return
		}
		tick := game.Tick(n)
		at = &tick
	}

	replay, err := h.service.Replay(r.Context(), r.PathValue("id"), at)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusOK, replay)
}

func (h *GameHandler) allow(w http.ResponseWriter, r *http.Request, logger *slog.Logger) bool {
	if r.Method != http.MethodGet {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return false
	}
	if h.service == nil {
		response.Error(w, r, logger, errors.NotFoundf("game history is not enabled"))
		return false
	}
	return true
}
