package game

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"ipg-server/internal/shared/errors"
)

// GameExecutor advances a Game's simulation. It holds the state that is
// derived from the game rather than shared with clients. A GameExecutor
// is not safe for concurrent use; callers serialise access to it.
type GameExecutor struct {
	Game   *Game
	GameID string
	Events *EventSource

	completedMoves int
	buckets        *ModBuckets
	startTime      time.Time
	now            func() time.Time
	logger         *slog.Logger
}

// NewGameExecutor wraps a game. If the game already carries a galaxy
// snapshot the in-flight arrivals are rebuilt from its move history.
func NewGameExecutor(game *Game, gameID string) *GameExecutor {
	e := &GameExecutor{
		Game:    game,
		GameID:  gameID,
		Events:  NewEventSource(),
		buckets: NewModBuckets(),
		now:     time.Now,
		logger:  slog.With("component", "game_executor", "game_id", gameID),
	}
	e.resync()
	return e
}

// SetClock replaces the wall clock used by GetTime.
func (e *GameExecutor) SetClock(now func() time.Time) {
	e.now = now
	e.resync()
}

// SetGame replaces the game with an authoritative snapshot.
func (e *GameExecutor) SetGame(game *Game) {
	e.Game = game
	e.resync()
}

func (e *GameExecutor) resync() {
	e.completedMoves = 0
	e.buckets = NewModBuckets()

	galaxy := e.Game.State
	if galaxy == nil {
		e.startTime = time.Time{}
		return
	}
	e.startTime = e.now().Add(-time.Duration(galaxy.Time) * TimeDivisor * time.Millisecond)

	// Moves up to the snapshot time have left their source and every
	// arrival at or before it is already reflected in the planets.
	for _, move := range galaxy.Moves {
		if move.StartTime > galaxy.Time {
			break
		}
		attacker := move.Attacker()
		for _, arrival := range move.ArrivalTimes() {
			if arrival > galaxy.Time {
				e.buckets.Add(arrival, move.To.Index, attacker, 1)
			}
		}
		e.completedMoves++
	}
}

// Started reports whether the galaxy has been generated.
func (e *GameExecutor) Started() bool {
	return e.Game.Started()
}

// CompletedMoves is the number of moves already applied to the galaxy.
func (e *GameExecutor) CompletedMoves() int {
	return e.completedMoves
}

// PendingShips is the number of ships still in flight.
func (e *GameExecutor) PendingShips() int {
	return e.buckets.Pending()
}

// GetTime converts wall-clock time since the start of the game to ticks.
func (e *GameExecutor) GetTime() Tick {
	if e.startTime.IsZero() {
		return 0
	}
	elapsed := e.now().Sub(e.startTime).Milliseconds()
	if elapsed < 0 {
		return 0
	}
	return Tick(elapsed / TimeDivisor)
}

func (e *GameExecutor) AddPlayer(player Player) (Player, error) {
	if len(e.Game.Players) >= e.Game.Map.MaxPlayers() {
		return Player{}, ErrGameFull
	}

	player.Possession = e.Game.nextPossession()
	e.Game.Players = append(e.Game.Players, player)

	e.logger.Debug("Player joined", "name", player.Name, "possession", player.Possession)
	e.Events.Emit(GameEvent{Type: EventPlayer, Player: &player}, e.Game)
	return player, nil
}

// RemovePlayer drops a player from the roster. Planets they own stay
// theirs.
func (e *GameExecutor) RemovePlayer(possession int) bool {
	for i, p := range e.Game.Players {
		if p.Possession != possession {
			continue
		}
		e.Game.Players = append(e.Game.Players[:i:i], e.Game.Players[i+1:]...)
		e.logger.Debug("Player left", "name", p.Name, "possession", p.Possession)
		e.Events.Emit(GameEvent{Type: EventPlayerLeave, Player: &p}, e.Game)
		return true
	}
	return false
}

func (e *GameExecutor) StartGame() error {
	logger := e.logger.With("operation", "start_game")

	if e.Game.Started() {
		return ErrAlreadyStarted
	}
	if len(e.Game.Players) < e.Game.Config.MinPlayers {
		return ErrInsufficientPlayers
	}

	galaxy, err := e.Game.Map.ToGalaxy(e.Game.Players)
	if err != nil {
		logger.Debug("Map rejected player configuration", "error", err)
		return err
	}

	e.Game.State = galaxy
	e.completedMoves = 0
	e.buckets = NewModBuckets()
	e.startTime = e.now()

	logger.Debug("Game started", "players", len(e.Game.Players), "planets", len(galaxy.Planets))
	e.Events.Emit(GameEvent{Type: EventStart}, e.Game)
	return nil
}

// CreateMove builds a move from the live planets at the current time.
func (e *GameExecutor) CreateMove(from, to int) (Move, error) {
	galaxy := e.Game.State
	if galaxy == nil {
		return Move{}, ErrNotStarted
	}
	if err := galaxy.checkPlanets(from, to); err != nil {
		return Move{}, err
	}

	now := e.GetTime()
	if now < galaxy.Time {
		now = galaxy.Time
	}
	e.StepTo(now)

	source := galaxy.Planets[from]
	armada := int(math.Floor(source.Value / 2))
	if armada < 0 {
		armada = 0
	}

	return Move{
		From:       source.clone(),
		To:         galaxy.Planets[to].clone(),
		ArmadaSize: armada,
		StartTime:  now,
	}, nil
}

// AddMove validates and records a move for player. The source deduction
// and arrival scheduling happen once, through StepTo.
func (e *GameExecutor) AddMove(player Player, move Move) error {
	galaxy := e.Game.State
	if galaxy == nil {
		return ErrNotStarted
	}
	if move.StartTime < galaxy.Time {
		return errors.Validationf("move issued at tick %d precedes galaxy time %d", move.StartTime, galaxy.Time)
	}
	if n := len(galaxy.Moves); n > 0 && galaxy.Moves[n-1].StartTime > move.StartTime {
		return errors.Validationf("move issued at tick %d precedes the last recorded move", move.StartTime)
	}
	if err := galaxy.checkPlanets(move.From.Index, move.To.Index); err != nil {
		return err
	}

	e.StepTo(move.StartTime)

	if !galaxy.Planets[move.From.Index].OwnedBy(player.Possession) || !move.From.OwnedBy(player.Possession) {
		return ErrNotOwner
	}
	if move.From.Index == move.To.Index {
		return ErrSelfMove
	}

	galaxy.Moves = append(galaxy.Moves, move)
	e.StepTo(move.StartTime)

	e.logger.Debug("Move added",
		"possession", player.Possession,
		"from", move.From.Index,
		"to", move.To.Index,
		"armada", move.ArmadaSize,
		"tick", move.StartTime)

	recorded := move
	e.Events.Emit(GameEvent{Type: EventMove, Move: &recorded}, e.Game)
	return nil
}

// StepTo advances the galaxy to target, applying moves, production and
// arrivals in chronological order. Stepping backwards panics.
func (e *GameExecutor) StepTo(target Tick) {
	galaxy := e.Game.State
	if galaxy == nil {
		return
	}
	if target < galaxy.Time {
		panic(fmt.Sprintf("game %s: cannot step back in time from tick %d to %d", e.GameID, galaxy.Time, target))
	}

	for e.completedMoves < len(galaxy.Moves) {
		move := &galaxy.Moves[e.completedMoves]
		if move.StartTime > target {
			break
		}
		if move.StartTime > galaxy.Time {
			e.resolveThrough(move.StartTime)
			e.advance(move.StartTime)
		}
		e.applyMove(move)
		e.completedMoves++
	}

	e.resolveThrough(target)
	e.advance(target)
}

func (e *GameExecutor) applyMove(move *Move) {
	galaxy := e.Game.State
	if move.StartTime != galaxy.Time {
		panic(fmt.Sprintf("game %s: applying move issued at tick %d while galaxy is at tick %d",
			e.GameID, move.StartTime, galaxy.Time))
	}

	galaxy.Planets[move.From.Index].Value -= float64(move.ArmadaSize)

	attacker := move.Attacker()
	landed := 0
	for _, arrival := range move.ArrivalTimes() {
		if arrival <= galaxy.Time {
			// Overlapping planets: the ship is already inside the target.
			landed++
			continue
		}
		e.buckets.Add(arrival, move.To.Index, attacker, 1)
	}
	if landed > 0 {
		e.resolve(move.To.Index, attacker, landed)
	}
}

func (e *GameExecutor) resolveThrough(tick Tick) {
	galaxy := e.Game.State
	for {
		bucket := e.buckets.PopThrough(tick)
		if bucket == nil {
			return
		}
		if bucket.Tick < galaxy.Time {
			panic(fmt.Sprintf("game %s: arrivals for tick %d surfaced after tick %d was processed",
				e.GameID, bucket.Tick, galaxy.Time))
		}
		e.advance(bucket.Tick)
		for _, planet := range bucket.Planets() {
			for _, delta := range bucket.Deltas(planet) {
				e.resolve(planet, delta.Possession, delta.Ships)
			}
		}
	}
}

// advance applies production for the elapsed interval and moves the
// galaxy clock to tick.
func (e *GameExecutor) advance(tick Tick) {
	galaxy := e.Game.State
	if elapsed := tick - galaxy.Time; elapsed > 0 {
		for i := range galaxy.Planets {
			p := &galaxy.Planets[i]
			p.Value += p.Multiplier * p.Radius * float64(elapsed) / ShipTicks
		}
	}
	galaxy.Time = tick
}

// resolve lands ships on a planet: reinforcement for the owner, combat
// for anyone else. The planet changes hands only when its value drops
// strictly below zero.
func (e *GameExecutor) resolve(planet, possession, ships int) {
	p := &e.Game.State.Planets[planet]
	if holds(p, possession) {
		p.Value += float64(ships)
		return
	}

	p.Value -= float64(ships)
	if p.Value < 0 {
		p.Value = -p.Value
		if possession == 0 {
			p.Possession = nil
		} else {
			p.Possession = possessionPtr(possession)
		}
		e.logger.Debug("Planet captured", "planet", planet, "possession", possession, "tick", e.Game.State.Time)
	}
}

func holds(p *Planet, possession int) bool {
	if p.Possession == nil {
		return possession == 0
	}
	return *p.Possession == possession
}

func (g *Galaxy) checkPlanets(indices ...int) error {
	for _, index := range indices {
		if index < 0 || index >= len(g.Planets) {
			return errors.Validationf("planet %d does not exist", index)
		}
	}
	return nil
}
