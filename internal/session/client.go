package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"ipg-server/internal/game"
	"ipg-server/internal/lobby"
	"ipg-server/internal/maps"
	"ipg-server/internal/protocol"
	"ipg-server/internal/shared/errors"
)

// Client is one websocket connection. Frames leave through a bounded
// queue drained by the write pump, so a slow peer never blocks a room.
type Client struct {
	ID string

	conn      *websocket.Conn
	codec     protocol.Codec
	handler   *Handler
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	limiter   *rate.Limiter
	dropped   atomic.Int64
	logger    *slog.Logger

	// Owned by the read loop.
	name       string
	room       *lobby.Room
	player     *game.Player
	handlerID  int
	rejoinCode string
	listenerID int
}

func (c *Client) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.logger.Debug("Client connected", "encoding", c.codec.Name())
	go c.writePump()

	c.listenerID = c.handler.lobby.Subscribe(c)
	c.emit(protocol.TypeMapList, protocol.MapList{Maps: maps.Summaries(c.handler.maps)})
	c.emit(protocol.TypeGameList, protocol.GameList{Games: c.handler.lobby.List()})

	c.readPump(ctx)

	c.leaveGame()
	c.handler.lobby.Unsubscribe(c.listenerID)
	c.close()
	c.logger.Debug("Client disconnected", "dropped_frames", c.dropped.Load())
}

func (c *Client) readPump(ctx context.Context) {
	cfg := c.handler.config
	if cfg.ReadLimit > 0 {
		c.conn.SetReadLimit(cfg.ReadLimit)
	}
	if cfg.PongWait > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		})
	}

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("Websocket closed unexpectedly", "error", err)
			}
			return
		}

		if !c.limiter.Allow() {
			c.sendError(errors.RateLimited("too many messages"))
			continue
		}
		if err := c.handleFrame(ctx, frame); err != nil {
			c.sendError(err)
		}
	}
}

func (c *Client) writePump() {
	cfg := c.handler.config

	var ping <-chan time.Time
	if cfg.PingInterval > 0 {
		ticker := time.NewTicker(cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	messageType := websocket.TextMessage
	if c.codec.Binary() {
		messageType = websocket.BinaryMessage
	}

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			c.setWriteDeadline()
			if err := c.conn.WriteMessage(messageType, frame); err != nil {
				c.logger.Debug("Write failed, closing connection", "error", err)
				c.close()
				return
			}
		case <-ping:
			c.setWriteDeadline()
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *Client) setWriteDeadline() {
	if timeout := c.handler.config.WriteTimeout; timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Dropped is the number of frames discarded because the queue was full.
func (c *Client) Dropped() int64 {
	return c.dropped.Load()
}

// emit encodes a message immediately and queues it. Callers inside a
// room therefore snapshot the game at the moment of the event.
func (c *Client) emit(t protocol.MessageType, payload any) {
	frame, err := c.codec.Marshal(t, payload)
	if err != nil {
		c.logger.Error("Failed to encode message", "type", t, "error", err)
		return
	}
	c.enqueue(t, frame)
}

func (c *Client) enqueue(t protocol.MessageType, frame []byte) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- frame:
	default:
		n := c.dropped.Add(1)
		c.handler.droppedFrames.Add(1)
		c.logger.Warn("Send queue full, dropping message", "type", t, "dropped_frames", n)
	}
}

func (c *Client) sendError(err error) {
	errorType := errors.GetType(err)
	switch errorType {
	case errors.ErrorTypeInternal, errors.ErrorTypeExternal:
		c.logger.Error("Message handling failed", "error", err)
	default:
		c.logger.Debug("Message rejected", "error_type", errorType, "error", err)
	}

	c.emit(protocol.TypeError, protocol.Error{
		Type:    string(errorType),
		Message: errors.ClientMessage(err),
	})
}

// GameCreated and GameRemoved keep the client's lobby view current.
func (c *Client) GameCreated(info lobby.GameInfo) {
	c.emit(protocol.TypeNewGame, protocol.NewGame{Game: info})
}

func (c *Client) GameRemoved(id string) {
	c.emit(protocol.TypeRemoveGame, protocol.RemoveGame{GameID: id})
}
