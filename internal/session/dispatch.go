package session

import (
	"context"
	"time"

	"ipg-server/internal/auth"
	"ipg-server/internal/game"
	"ipg-server/internal/lobby"
	"ipg-server/internal/protocol"
	"ipg-server/internal/rejoin"
	"ipg-server/internal/shared/errors"
)

var (
	errNotInGame = errors.Conflict("player is not currently in a game")
	errNoName    = errors.Validation("players must set a name before joining a game")
)

const leaveTimeout = 5 * time.Second

func (c *Client) handleFrame(ctx context.Context, frame []byte) error {
	env, err := c.codec.Unmarshal(frame)
	if err != nil {
		return err
	}

	switch env.Type {
	case protocol.TypeSetName:
		var msg protocol.SetName
		if err := c.codec.UnmarshalPayload(env, &msg); err != nil {
			return err
		}
		return c.setName(msg)
	case protocol.TypeCreateGame:
		var msg protocol.CreateGame
		if err := c.codec.UnmarshalPayload(env, &msg); err != nil {
			return err
		}
		return c.createGame(ctx, msg)
	case protocol.TypeEnterGame:
		var msg protocol.EnterGame
		if err := c.codec.UnmarshalPayload(env, &msg); err != nil {
			return err
		}
		return c.enterGame(ctx, msg)
	case protocol.TypeStartGame:
		return c.startGame(ctx)
	case protocol.TypeGameMove:
		var msg protocol.GameMove
		if err := c.codec.UnmarshalPayload(env, &msg); err != nil {
			return err
		}
		return c.gameMove(ctx, msg)
	case protocol.TypeExitGame:
		c.leaveGame()
		c.emit(protocol.TypeExitGame, nil)
		return nil
	case protocol.TypeTime:
		return c.sendTime(ctx)
	default:
		return errors.Validationf("unknown message type %q", env.Type)
	}
}

func (c *Client) setName(msg protocol.SetName) error {
	name, err := auth.NormalizeName(msg.Name)
	if err != nil {
		return err
	}
	c.name = name
	c.logger.Debug("Name set", "name", name)
	return nil
}

func (c *Client) createGame(ctx context.Context, msg protocol.CreateGame) error {
	if c.name == "" {
		return errNoName
	}
	room, err := c.handler.lobby.CreateGame(msg.MapID, msg.Config)
	if err != nil {
		return err
	}
	return c.enterGame(ctx, protocol.EnterGame{GameID: room.ID})
}

func (c *Client) enterGame(ctx context.Context, msg protocol.EnterGame) error {
	if c.room != nil {
		c.leaveGame()
	}

	var ticket *rejoin.Ticket
	if msg.RejoinCode != "" {
		if c.handler.rejoin == nil {
			return rejoin.ErrInvalidCode
		}
		t, err := c.handler.rejoin.Redeem(ctx, msg.RejoinCode, msg.GameID)
		if err != nil {
			return err
		}
		ticket = &t
	} else if c.name == "" {
		return errNoName
	}

	room, err := c.handler.lobby.Join(msg.GameID)
	if err != nil {
		return err
	}

	name := c.name
	var (
		player    game.Player
		rejoined  bool
		handlerID int
	)
	err = c.do(ctx, room, func(e *game.GameExecutor) error {
		p, seated, err := seat(e, ticket, name)
		if err != nil {
			return err
		}
		player, rejoined = p, seated
		handlerID = e.Events.OnEvent(c.onGameEvent)

		c.emit(protocol.TypeEnterGame, protocol.EnteredGame{GameID: room.ID})
		c.emit(protocol.TypePossession, protocol.Possession{Possession: p.Possession})
		if e.Started() {
			now := e.GetTime()
			if now < e.Game.State.Time {
				now = e.Game.State.Time
			}
			e.StepTo(now)
			c.emitGame(e.Game)
		} else {
			c.emit(protocol.TypeGamePlayers, protocol.GamePlayers{Players: e.Game.Players})
		}
		return nil
	})
	if err != nil {
		c.handler.lobby.Leave(room)
		return err
	}

	c.room, c.player, c.handlerID = room, &player, handlerID
	c.name = player.Name
	c.logger.Info("Entered game", "game_id", room.ID, "possession", player.Possession, "rejoined", rejoined)

	if rejoined {
		c.rejoinCode = msg.RejoinCode
		c.emit(protocol.TypeRejoinCode, protocol.RejoinCode{Code: c.rejoinCode})
		return nil
	}
	c.issueRejoinCode(ctx, room.ID, player)
	return nil
}

// seat finds the player a connection plays as. A ticket restores its
// original seat; before the game starts a ticket whose seat was released
// joins again under the same name.
func seat(e *game.GameExecutor, ticket *rejoin.Ticket, name string) (game.Player, bool, error) {
	if ticket != nil {
		if p, ok := e.Game.Player(ticket.Possession); ok && p.Name == ticket.Name {
			return p, true, nil
		}
		if e.Started() {
			return game.Player{}, false, rejoin.ErrInvalidCode
		}
		name = ticket.Name
	}

	if e.Started() {
		return game.Player{}, false, game.ErrAlreadyStarted
	}
	p, err := e.AddPlayer(game.Player{Name: name})
	if err != nil {
		return game.Player{}, false, err
	}
	return p, false, nil
}

func (c *Client) issueRejoinCode(ctx context.Context, gameID string, player game.Player) {
	if c.handler.rejoin == nil {
		return
	}
	code, err := c.handler.rejoin.Issue(ctx, rejoin.Ticket{
		GameID:     gameID,
		Name:       player.Name,
		Possession: player.Possession,
	})
	if err != nil {
		c.logger.Warn("Could not issue rejoin code", "game_id", gameID, "error", err)
		return
	}
	c.rejoinCode = code
	c.emit(protocol.TypeRejoinCode, protocol.RejoinCode{Code: code})
}

func (c *Client) startGame(ctx context.Context) error {
	if c.room == nil {
		return errNotInGame
	}
	return c.do(ctx, c.room, func(e *game.GameExecutor) error {
		return e.StartGame()
	})
}

func (c *Client) gameMove(ctx context.Context, msg protocol.GameMove) error {
	if c.room == nil {
		return errNotInGame
	}
	player := *c.player
	return c.do(ctx, c.room, func(e *game.GameExecutor) error {
		move, err := e.CreateMove(msg.From, msg.To)
		if err != nil {
			return err
		}
		return e.AddMove(player, move)
	})
}

func (c *Client) sendTime(ctx context.Context) error {
	var tick game.Tick
	if c.room != nil {
		err := c.do(ctx, c.room, func(e *game.GameExecutor) error {
			tick = e.GetTime()
			return nil
		})
		if err != nil {
			return err
		}
	}
	c.emit(protocol.TypeTime, protocol.Time{
		ServerTime: c.handler.now().UnixMilli(),
		Tick:       tick,
	})
	return nil
}

// leaveGame detaches from the current room. Before the game starts the
// seat is released; afterwards it is kept for a rejoin.
func (c *Client) leaveGame() {
	room, player, handlerID := c.room, c.player, c.handlerID
	if room == nil {
		return
	}
	c.room, c.player, c.handlerID, c.rejoinCode = nil, nil, 0, ""

	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()

	err := room.Do(ctx, func(e *game.GameExecutor) error {
		e.Events.Off(handlerID)
		if !e.Started() && player != nil {
			e.RemovePlayer(player.Possession)
		}
		return nil
	})
	if err != nil && !errors.Is(err, lobby.ErrRoomClosed) {
		c.logger.Warn("Failed to detach from game", "game_id", room.ID, "error", err)
	}

	c.handler.lobby.Leave(room)
	c.logger.Debug("Left game", "game_id", room.ID)
}

// onGameEvent runs on the room's goroutine.
func (c *Client) onGameEvent(event game.GameEvent, g *game.Game) {
	switch event.Type {
	case game.EventStart:
		c.emit(protocol.TypeStartGame, nil)
		c.emitGame(g)
	case game.EventMove:
		c.emit(protocol.TypeGameMove, protocol.MoveAdded{Move: *event.Move})
	case game.EventPlayer, game.EventPlayerLeave:
		c.emit(protocol.TypeGamePlayers, protocol.GamePlayers{Players: g.Players})
	}
}

func (c *Client) emitGame(g *game.Game) {
	state := protocol.GameState{Game: g}
	if g.State != nil {
		state.Digest = g.State.Digest()
	}
	c.emit(protocol.TypeGame, state)
}

func (c *Client) do(ctx context.Context, room *lobby.Room, fn func(*game.GameExecutor) error) error {
	if timeout := c.handler.config.OperationTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	err := room.Do(ctx, fn)
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.WrapInternal("game did not respond in time", err)
	}
	return err
}
