package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"ipg-server/internal/auth"
	"ipg-server/internal/middleware"
	"ipg-server/internal/shared/cookies"
	"ipg-server/internal/shared/errors"
	"ipg-server/internal/shared/response"
)

type SessionRequest struct {
	Name string `json:"name"`
}

// SessionHandler issues guest sessions carrying a chosen display name.
type SessionHandler struct{}

func NewSessionHandler() *SessionHandler {
	return &SessionHandler{}
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "create_session", "remote_addr", r.RemoteAddr)

	if r.Method != http.MethodPost {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	var req SessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		response.Error(w, r, logger, errors.WrapValidation("invalid request body", err))
		return
	}

	name, err := auth.NormalizeName(req.Name)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	token, err := auth.GenerateJWT(name, "", "guest:"+uuid.NewString())
	if err != nil {
		response.Error(w, r, logger, errors.WrapInternal("failed to create session", err))
		return
	}

	cookies.SetAuthCookie(w, token)
	logger.Info("Guest session created", "player_name", name)
	response.Success(w, http.StatusCreated, auth.Identity{Name: name})
}

func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "me", "remote_addr", r.RemoteAddr)

	claims := middleware.GetUserFromContext(r)
	if claims == nil {
		response.Error(w, r, logger, errors.Unauthorized("authentication required"))
		return
	}

	response.Success(w, http.StatusOK, claims.Identity())
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "logout", "remote_addr", r.RemoteAddr)

	cookies.ClearAuthCookie(w)
	logger.Debug("User logged out")
	w.WriteHeader(http.StatusNoContent)
}
