package session

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"ipg-server/internal/lobby"
	"ipg-server/internal/maps"
	"ipg-server/internal/middleware"
	"ipg-server/internal/protocol"
	"ipg-server/internal/rejoin"
	"ipg-server/internal/shared/config"
	"ipg-server/internal/shared/errors"
	"ipg-server/internal/shared/response"
)

type Config struct {
	SendBuffer        int
	MessagesPerSecond float64
	Burst             int
	ReadLimit         int64
	WriteTimeout      time.Duration
	PongWait          time.Duration
	PingInterval      time.Duration
	// OperationTimeout bounds how long a message waits on a busy room.
	OperationTimeout time.Duration
	AllowedOrigins   []string
}

// ConfigFrom builds a session config from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		SendBuffer:        cfg.Game.SendBuffer,
		MessagesPerSecond: cfg.WebSocket.MessagesPerSecond,
		Burst:             cfg.WebSocket.Burst,
		ReadLimit:         cfg.WebSocket.ReadLimit,
		WriteTimeout:      cfg.WebSocket.WriteTimeout,
		PongWait:          cfg.WebSocket.PongWait,
		PingInterval:      cfg.WebSocket.PingInterval,
		OperationTimeout:  5 * time.Second,
		AllowedOrigins:    []string{cfg.Frontend.URL},
	}
}

// Stats summarises live connections for the health endpoint.
type Stats struct {
	Connections   int64 `json:"connections"`
	DroppedFrames int64 `json:"dropped_frames"`
}

// Handler upgrades HTTP requests to game sessions.
type Handler struct {
	lobby   *lobby.Lobby
	maps    maps.Manager
	rejoin  *rejoin.Service
	config  Config
	now     func() time.Time
	clients sync.WaitGroup

	mu     sync.Mutex
	active map[*Client]struct{}

	upgrader websocket.Upgrader

	connections   atomic.Int64
	droppedFrames atomic.Int64
}

// NewHandler wires sessions to the lobby. rejoinService may be nil, in
// which case no rejoin codes are issued.
func NewHandler(l *lobby.Lobby, m maps.Manager, rejoinService *rejoin.Service, cfg Config) *Handler {
	h := &Handler{
		lobby:  l,
		maps:   m,
		rejoin: rejoinService,
		config: cfg,
		now:    time.Now,
		active: make(map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) Stats() Stats {
	return Stats{
		Connections:   h.connections.Load(),
		DroppedFrames: h.droppedFrames.Load(),
	}
}

// Shutdown closes every connection and waits for their cleanup until
// ctx is done.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	for c := range h.active {
		c.close()
	}
	h.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		h.clients.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "websocket", "remote_addr", r.RemoteAddr)

	codec, err := protocol.CodecByName(r.URL.Query().Get("encoding"))
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}
	if !websocket.IsWebSocketUpgrade(r) {
		response.Error(w, r, logger, errors.Validation("websocket upgrade required"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		logger.Debug("Websocket upgrade failed", "error", err)
		return
	}

	name := ""
	if claims := middleware.GetUserFromContext(r); claims != nil {
		name = claims.Name
	}

	c := &Client{
		ID:      uuid.NewString(),
		conn:    conn,
		codec:   codec,
		handler: h,
		send:    make(chan []byte, h.config.SendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(h.config.MessagesPerSecond), h.config.Burst),
		name:    name,
	}
	c.logger = slog.With("component", "session", "conn_id", c.ID)

	h.mu.Lock()
	h.active[c] = struct{}{}
	h.mu.Unlock()
	h.connections.Add(1)
	h.clients.Add(1)

	go func() {
		defer h.clients.Done()
		defer func() {
			h.mu.Lock()
			delete(h.active, c)
			h.mu.Unlock()
			h.connections.Add(-1)
		}()
		c.run()
	}()
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}
