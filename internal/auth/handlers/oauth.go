package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ipg-server/internal/auth"
	"ipg-server/internal/auth/providers"
	"ipg-server/internal/shared/cookies"
	"ipg-server/internal/shared/errors"
	"ipg-server/internal/shared/response"
)

type OAuthHandler struct {
	provider     providers.OAuthProvider
	states       *auth.StateManager
	isConfigured bool
}

func NewOAuthHandler(provider providers.OAuthProvider, states *auth.StateManager, isConfigured bool) *OAuthHandler {
	return &OAuthHandler{
		provider:     provider,
		states:       states,
		isConfigured: isConfigured,
	}
}

func (h *OAuthHandler) HandleAuth(w http.ResponseWriter, r *http.Request) {
	name := h.provider.Name()
	logger := slog.With("handler", name+"_oauth_init", "remote_addr", r.RemoteAddr)

	if !h.isConfigured {
		response.Error(w, r, logger, errors.WrapExternal(fmt.Sprintf("%s OAuth is not properly configured", name), nil))
		return
	}

	redirectURI := resolveRedirectURI(r.URL.Query().Get("redirect_uri"))

	state, err := h.states.GenerateState(name, r.UserAgent(), redirectURI)
	if err != nil {
		response.Error(w, r, logger, errors.WrapInternal("failed to initialize OAuth flow", err))
		return
	}

	logger.Debug("Initiating OAuth flow", "provider", name)
	http.Redirect(w, r, h.provider.GetAuthURL(state), http.StatusTemporaryRedirect)
}

func (h *OAuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	name := h.provider.Name()
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	errorParam := r.URL.Query().Get("error")

	logger := slog.With(
		"handler", name+"_oauth_callback",
		"remote_addr", r.RemoteAddr,
		"has_code", code != "",
		"has_state", state != "",
	)

	entry, err := h.states.ValidateState(state, name, r.UserAgent())
	if err != nil {
		logger.Warn("OAuth state validation failed", "error", err)
		redirectWithError(w, r, "", "invalid_state")
		return
	}

	if errorParam != "" {
		logger.Warn("OAuth authorization denied",
			"oauth_error", errorParam,
			"error_description", r.URL.Query().Get("error_description"))
		redirectWithError(w, r, entry.RedirectURI, "oauth_denied")
		return
	}

	if code == "" {
		logger.Error("OAuth callback missing authorization code")
		redirectWithError(w, r, entry.RedirectURI, "oauth_error")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	token, err := h.provider.ExchangeCode(ctx, code)
	if err != nil {
		logger.Error("Failed to exchange authorization code", "error", err)
		redirectWithError(w, r, entry.RedirectURI, "oauth_error")
		return
	}

	userInfo, err := h.provider.GetUserInfo(ctx, token)
	if err != nil {
		logger.Error("Failed to get user info", "error", err)
		redirectWithError(w, r, entry.RedirectURI, "oauth_error")
		return
	}

	displayName := truncateName(userInfo.Name, auth.MaxNameLength)
	if displayName == "" {
		logger.Error("Provider returned no usable name", "provider_user_id", userInfo.ID)
		redirectWithError(w, r, entry.RedirectURI, "oauth_error")
		return
	}

	jwtToken, err := auth.GenerateJWT(displayName, name, name+":"+userInfo.ID)
	if err != nil {
		logger.Error("Failed to generate JWT token", "error", err)
		redirectWithError(w, r, entry.RedirectURI, "auth_error")
		return
	}

	cookies.SetAuthCookie(w, jwtToken)

	logger.Info("OAuth authentication successful",
		"provider_user_id", userInfo.ID,
		"player_name", displayName)

	http.Redirect(w, r, entry.RedirectURI+"/auth/callback?success=true", http.StatusTemporaryRedirect)
}
