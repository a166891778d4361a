package server

import (
	"log/slog"
	"net/http"

	"ipg-server/internal/auth"
	authHandlers "ipg-server/internal/auth/handlers"
	"ipg-server/internal/history"
	historyHandlers "ipg-server/internal/history/handlers"
	"ipg-server/internal/lobby"
	"ipg-server/internal/maps"
	mapHandlers "ipg-server/internal/maps/handlers"
	"ipg-server/internal/middleware"
	serverHandlers "ipg-server/internal/server/handlers"
	"ipg-server/internal/session"
	"ipg-server/internal/shared/database"
)

// Routes holds everything the HTTP surface dispatches to. DB, History
// and Recorder are nil when persistence is disabled.
type Routes struct {
	DB        *database.DB
	Lobby     *lobby.Lobby
	Maps      *maps.FileSystem
	Sessions  *session.Handler
	History   *history.Service
	Recorder  *history.Recorder
	States    *auth.StateManager
	Providers []auth.ConfiguredProvider
}

func (r *Routes) Setup() *http.ServeMux {
	logger := slog.With("component", "routes", "operation", "setup")
	logger.Debug("Setting up application routes")

	mux := http.NewServeMux()

	var recorder serverHandlers.HistoryStats
	if r.Recorder != nil {
		recorder = r.Recorder
	}
	healthHandler := serverHandlers.NewHealthHandler(r.DB, r.Sessions, recorder)
	statusHandler := serverHandlers.NewGameStatusHandler(r.Lobby, r.Sessions)
	mapHandler := mapHandlers.NewMapHandler(r.Maps)
	gameHandler := historyHandlers.NewGameHandler(r.Lobby, r.History)
	sessionHandler := authHandlers.NewSessionHandler()

	// Public endpoints
	mux.Handle("/api/server/health", healthHandler)
	mux.Handle("/api/game/status", statusHandler)
	mux.HandleFunc("/api/maps", mapHandler.List)
	mux.HandleFunc("/api/maps/schema", mapHandler.Schema)
	mux.HandleFunc("/api/maps/{id}", mapHandler.GetByID)
	mux.HandleFunc("/api/games", gameHandler.List)
	mux.HandleFunc("/api/games/{id}", gameHandler.GetByID)
	mux.HandleFunc("/api/games/{id}/moves", gameHandler.Moves)
	mux.HandleFunc("/api/games/{id}/replay", gameHandler.Replay)
	mux.HandleFunc("/api/session", sessionHandler.Create)

	// Protected endpoints (authenticated users)
	mux.Handle("/api/players/me", middleware.JWTMiddleware(http.HandlerFunc(sessionHandler.Me)))

	// Game sessions; a valid auth cookie pre-fills the player name
	mux.Handle("/ws", middleware.OptionalJWT(r.Sessions))

	// OAuth endpoints
	authEndpoints := []string{"/auth/logout"}
	for _, p := range r.Providers {
		h := authHandlers.NewOAuthHandler(p.Provider, r.States, p.Configured)
		base := "/auth/" + p.Provider.Name()
		mux.HandleFunc(base, h.HandleAuth)
		mux.HandleFunc(base+"/callback", h.HandleCallback)
		authEndpoints = append(authEndpoints, base)
	}
	mux.HandleFunc("/auth/logout", sessionHandler.Logout)

	logger.Info("Routes configured successfully",
		"public_endpoints", []string{"/api/server/health", "/api/game/status", "/api/maps", "/api/games", "/api/session"},
		"protected_endpoints", []string{"/api/players/me"},
		"auth_endpoints", authEndpoints,
		"history_enabled", r.History != nil,
	)

	return mux
}
