package game

import (
	"math"
	"strings"
	"testing"
	"time"

	"ipg-server/internal/shared/errors"
)

const duelMapJSON = `{
	"size": {"x": 100, "y": 60},
	"name": "duel",
	"planets": [
		{"x": 10, "y": 10, "start_value": 20, "radius": 2, "possession": [1], "multiplier": 1},
		{"x": 50, "y": 10, "start_value": 20, "radius": 2, "possession": [2], "multiplier": 1},
		{"x": 30, "y": 30, "start_value": 5, "radius": 3, "possession": [0], "multiplier": 1}
	]
}`

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(ticks Tick) {
	c.now = c.now.Add(time.Duration(ticks) * TimeDivisor * time.Millisecond)
}

func mustParseMap(t *testing.T, data string) Map {
	t.Helper()
	m, err := ParseMap([]byte(data))
	if err != nil {
		t.Fatalf("ParseMap() error = %v", err)
	}
	return *m
}

func newExecutor(t *testing.T, data string) (*GameExecutor, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	e := NewGameExecutor(NewGame(mustParseMap(t, data), GameConfig{MinPlayers: 2}), "test")
	e.SetClock(clock.Now)
	return e, clock
}

func newStartedExecutor(t *testing.T, data string) (*GameExecutor, *fakeClock, Player, Player) {
	t.Helper()
	e, clock := newExecutor(t, data)
	alice, err := e.AddPlayer(Player{Name: "alice"})
	if err != nil {
		t.Fatalf("AddPlayer(alice) error = %v", err)
	}
	bob, err := e.AddPlayer(Player{Name: "bob"})
	if err != nil {
		t.Fatalf("AddPlayer(bob) error = %v", err)
	}
	if err := e.StartGame(); err != nil {
		t.Fatalf("StartGame() error = %v", err)
	}
	return e, clock, alice, bob
}

func sendMove(t *testing.T, e *GameExecutor, player Player, from, to int) Move {
	t.Helper()
	move, err := e.CreateMove(from, to)
	if err != nil {
		t.Fatalf("CreateMove(%d, %d) error = %v", from, to, err)
	}
	if err := e.AddMove(player, move); err != nil {
		t.Fatalf("AddMove(%d, %d) error = %v", from, to, err)
	}
	return move
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func expectPanic(t *testing.T, contains string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic, got none")
		}
		if msg, ok := r.(string); !ok || !strings.Contains(msg, contains) {
			t.Errorf("panic = %v, want message containing %q", r, contains)
		}
	}()
	fn()
}

func TestAddPlayer_AssignsPossessionsInJoinOrder(t *testing.T) {
	e, _ := newExecutor(t, duelMapJSON)

	alice, err := e.AddPlayer(Player{Name: "alice"})
	if err != nil {
		t.Fatalf("AddPlayer() error = %v", err)
	}
	bob, err := e.AddPlayer(Player{Name: "bob"})
	if err != nil {
		t.Fatalf("AddPlayer() error = %v", err)
	}

	if alice.Possession != 1 || bob.Possession != 2 {
		t.Errorf("possessions = %d, %d; want 1, 2", alice.Possession, bob.Possession)
	}

	if _, err := e.AddPlayer(Player{Name: "carol"}); err != ErrGameFull {
		t.Errorf("third AddPlayer() error = %v, want ErrGameFull", err)
	}
}

func TestAddPlayer_NeverReusesPossession(t *testing.T) {
	e, _ := newExecutor(t, duelMapJSON)

	alice, _ := e.AddPlayer(Player{Name: "alice"})
	bob, _ := e.AddPlayer(Player{Name: "bob"})
	if !e.RemovePlayer(alice.Possession) {
		t.Fatal("RemovePlayer() = false, want true")
	}

	carol, err := e.AddPlayer(Player{Name: "carol"})
	if err != nil {
		t.Fatalf("AddPlayer() error = %v", err)
	}
	if carol.Possession == alice.Possession || carol.Possession == bob.Possession {
		t.Errorf("carol possession = %d, collides with an earlier player", carol.Possession)
	}
}

func TestStartGame_Lifecycle(t *testing.T) {
	e, _ := newExecutor(t, duelMapJSON)

	if _, err := e.CreateMove(0, 1); err != ErrNotStarted {
		t.Errorf("CreateMove() before start error = %v, want ErrNotStarted", err)
	}

	alice, _ := e.AddPlayer(Player{Name: "alice"})
	if err := e.StartGame(); err != ErrInsufficientPlayers {
		t.Errorf("StartGame() with one player error = %v, want ErrInsufficientPlayers", err)
	}

	e.AddPlayer(Player{Name: "bob"})
	if err := e.StartGame(); err != nil {
		t.Fatalf("StartGame() error = %v", err)
	}
	if err := e.StartGame(); err != ErrAlreadyStarted {
		t.Errorf("second StartGame() error = %v, want ErrAlreadyStarted", err)
	}

	galaxy := e.Game.State
	if galaxy.Time != 0 || len(galaxy.Moves) != 0 {
		t.Errorf("new galaxy time=%d moves=%d, want 0 and 0", galaxy.Time, len(galaxy.Moves))
	}
	if !galaxy.Planets[0].OwnedBy(alice.Possession) {
		t.Errorf("planet 0 possession = %v, want %d", galaxy.Planets[0].Possession, alice.Possession)
	}
	if galaxy.Planets[2].Possession != nil {
		t.Errorf("planet 2 possession = %d, want neutral", *galaxy.Planets[2].Possession)
	}
}

func TestGetTime_ConvertsWallClock(t *testing.T) {
	e, clock := newExecutor(t, duelMapJSON)
	if got := e.GetTime(); got != 0 {
		t.Errorf("GetTime() before start = %d, want 0", got)
	}

	e.AddPlayer(Player{Name: "alice"})
	e.AddPlayer(Player{Name: "bob"})
	e.StartGame()

	clock.now = clock.now.Add(1234 * time.Millisecond)
	if got := e.GetTime(); got != 123 {
		t.Errorf("GetTime() = %d, want 123", got)
	}
}

func TestCreateMove_HalvesSourceValue(t *testing.T) {
	e, clock, _, _ := newStartedExecutor(t, duelMapJSON)
	clock.Advance(50)

	move, err := e.CreateMove(0, 1)
	if err != nil {
		t.Fatalf("CreateMove() error = %v", err)
	}

	if move.StartTime != 50 {
		t.Errorf("StartTime = %d, want 50", move.StartTime)
	}
	// 20 + 1*2*50/1000 = 20.1
	if move.ArmadaSize != 10 {
		t.Errorf("ArmadaSize = %d, want 10", move.ArmadaSize)
	}
	if len(e.Game.State.Moves) != 0 {
		t.Error("CreateMove() must not record the move")
	}

	if _, err := e.CreateMove(0, 7); errors.GetType(err) != errors.ErrorTypeValidation {
		t.Errorf("CreateMove() to unknown planet error = %v, want validation error", err)
	}
}

func TestAddMove_Validation(t *testing.T) {
	e, _, alice, bob := newStartedExecutor(t, duelMapJSON)

	move, err := e.CreateMove(0, 1)
	if err != nil {
		t.Fatalf("CreateMove() error = %v", err)
	}
	if err := e.AddMove(bob, move); err != ErrNotOwner {
		t.Errorf("AddMove() by non-owner error = %v, want ErrNotOwner", err)
	}

	self, _ := e.CreateMove(0, 0)
	if err := e.AddMove(alice, self); err != ErrSelfMove {
		t.Errorf("AddMove() to self error = %v, want ErrSelfMove", err)
	}

	if len(e.Game.State.Moves) != 0 {
		t.Errorf("rejected moves were recorded: %d", len(e.Game.State.Moves))
	}
}

func TestAddMove_RejectsStaleMove(t *testing.T) {
	e, clock, alice, _ := newStartedExecutor(t, duelMapJSON)

	stale, _ := e.CreateMove(0, 1)
	clock.Advance(20)
	e.StepTo(e.GetTime())

	err := e.AddMove(alice, stale)
	if errors.GetType(err) != errors.ErrorTypeValidation {
		t.Errorf("AddMove() stale error = %v, want validation error", err)
	}
}

func TestAddMove_AppliesExactlyOnce(t *testing.T) {
	e, _, alice, _ := newStartedExecutor(t, duelMapJSON)

	move := sendMove(t, e, alice, 0, 1)
	galaxy := e.Game.State

	if len(galaxy.Moves) != 1 {
		t.Fatalf("moves = %d, want 1", len(galaxy.Moves))
	}
	if !approxEqual(galaxy.Planets[0].Value, 10) {
		t.Errorf("source value = %v, want 10", galaxy.Planets[0].Value)
	}
	if e.PendingShips() != move.ArmadaSize {
		t.Errorf("pending ships = %d, want %d", e.PendingShips(), move.ArmadaSize)
	}

	e.StepTo(galaxy.Time)
	e.StepTo(galaxy.Time)
	if !approxEqual(galaxy.Planets[0].Value, 10) {
		t.Errorf("source value after repeated StepTo = %v, want 10", galaxy.Planets[0].Value)
	}
	if e.CompletedMoves() != 1 {
		t.Errorf("completed moves = %d, want 1", e.CompletedMoves())
	}
}

func TestAddMove_EmitsMoveEvent(t *testing.T) {
	e, _, alice, _ := newStartedExecutor(t, duelMapJSON)

	var events []GameEvent
	e.Events.OnEvent(func(event GameEvent, game *Game) {
		events = append(events, event)
	})

	move := sendMove(t, e, alice, 0, 2)

	if len(events) != 1 || events[0].Type != EventMove {
		t.Fatalf("events = %+v, want one move event", events)
	}
	if events[0].Move.ArmadaSize != move.ArmadaSize || events[0].Move.To.Index != 2 {
		t.Errorf("event move = %+v, want %+v", *events[0].Move, move)
	}
}

func TestStepTo_BackwardsPanics(t *testing.T) {
	e, _, _, _ := newStartedExecutor(t, duelMapJSON)
	e.StepTo(100)

	expectPanic(t, "cannot step back in time", func() {
		e.StepTo(99)
	})
}

func TestApplyMove_TimeMismatchPanics(t *testing.T) {
	e, _, _, _ := newStartedExecutor(t, duelMapJSON)
	e.StepTo(50)

	expectPanic(t, "applying move issued at tick", func() {
		e.applyMove(&Move{StartTime: 40})
	})
}

func TestStepTo_StaleBucketPanics(t *testing.T) {
	e, _, alice, _ := newStartedExecutor(t, duelMapJSON)
	e.StepTo(50)
	e.buckets.Add(10, 1, alice.Possession, 3)

	expectPanic(t, "surfaced after tick", func() {
		e.StepTo(60)
	})
}

func TestStepTo_Growth(t *testing.T) {
	e, _, _, _ := newStartedExecutor(t, duelMapJSON)

	e.StepTo(1000)

	planets := e.Game.State.Planets
	// value += multiplier * radius * elapsed / ShipTicks
	if !approxEqual(planets[0].Value, 22) {
		t.Errorf("planet 0 value = %v, want 22", planets[0].Value)
	}
	if !approxEqual(planets[2].Value, 8) {
		t.Errorf("neutral planet value = %v, want 8", planets[2].Value)
	}
}

func TestStepTo_GrowthIsSegmentIndependent(t *testing.T) {
	whole, _, _, _ := newStartedExecutor(t, duelMapJSON)
	pieces, _, _, _ := newStartedExecutor(t, duelMapJSON)

	whole.StepTo(777)
	for tick := Tick(7); tick <= 777; tick += 7 {
		pieces.StepTo(tick)
	}

	for i := range whole.Game.State.Planets {
		a := whole.Game.State.Planets[i].Value
		b := pieces.Game.State.Planets[i].Value
		if !approxEqual(a, b) {
			t.Errorf("planet %d: one step = %v, many steps = %v", i, a, b)
		}
	}
}

func TestStepTo_ReinforcementAndAttack(t *testing.T) {
	e, _, alice, _ := newStartedExecutor(t, duelMapJSON)

	move := sendMove(t, e, alice, 0, 1)
	e.StepTo(move.EndTime() + 10)

	planets := e.Game.State.Planets
	growth := 2 * float64(e.Game.State.Time) / ShipTicks

	if e.PendingShips() != 0 {
		t.Errorf("pending ships = %d, want 0", e.PendingShips())
	}
	if !planets[1].OwnedBy(2) {
		t.Errorf("planet 1 changed hands: %v", planets[1].Possession)
	}
	if !approxEqual(planets[1].Value, 20+growth-10) {
		t.Errorf("planet 1 value = %v, want %v", planets[1].Value, 20+growth-10)
	}
	if !approxEqual(planets[0].Value, 10+growth) {
		t.Errorf("planet 0 value = %v, want %v", planets[0].Value, 10+growth)
	}
}

func TestStepTo_CapturesNeutralPlanet(t *testing.T) {
	e, _, alice, _ := newStartedExecutor(t, duelMapJSON)

	move := sendMove(t, e, alice, 0, 2)
	e.StepTo(move.EndTime() + 1)

	target := e.Game.State.Planets[2]
	if !target.OwnedBy(alice.Possession) {
		t.Fatalf("planet 2 possession = %v, want %d", target.Possession, alice.Possession)
	}
	if target.Value < 4 || target.Value > 6 {
		t.Errorf("planet 2 value = %v, want roughly 10 - 5", target.Value)
	}
}

func TestStepTo_CapturesEnemyPlanet(t *testing.T) {
	data := `{
		"size": {"x": 60, "y": 20},
		"name": "siege",
		"planets": [
			{"x": 10, "y": 10, "start_value": 100, "radius": 2, "possession": [1], "multiplier": 1},
			{"x": 40, "y": 10, "start_value": 20, "radius": 2, "possession": [2], "multiplier": 1}
		]
	}`
	e, _, alice, bob := newStartedExecutor(t, data)

	move := sendMove(t, e, alice, 0, 1)
	if move.ArmadaSize != 50 {
		t.Fatalf("armada = %d, want 50", move.ArmadaSize)
	}
	e.StepTo(move.EndTime() + 1)

	planets := e.Game.State.Planets
	growth := 2 * float64(e.Game.State.Time) / ShipTicks
	if e.PendingShips() != 0 {
		t.Errorf("pending ships = %d, want 0", e.PendingShips())
	}
	if !planets[1].OwnedBy(alice.Possession) {
		t.Fatalf("planet 1 possession = %v, want %d (was %d)", planets[1].Possession, alice.Possession, bob.Possession)
	}
	// 50 ships against 20 defenders plus whatever grew before the flip.
	if planets[1].Value < 30-growth || planets[1].Value > 30+growth {
		t.Errorf("planet 1 value = %v, want 30 within %v", planets[1].Value, growth)
	}
	if !approxEqual(planets[0].Value, 50+growth) {
		t.Errorf("planet 0 value = %v, want %v", planets[0].Value, 50+growth)
	}
}

func TestStepTo_ArrivalsResolveBeforeMoveAtSameTick(t *testing.T) {
	t.Run("reinforcement joins the armada", func(t *testing.T) {
		e, clock, alice, _ := newStartedExecutor(t, duelMapJSON)
		e.buckets.Add(100, 0, alice.Possession, 30)
		clock.Advance(100)

		move := sendMove(t, e, alice, 0, 2)

		before := 20 + 2*100.0/ShipTicks + 30
		if move.StartTime != 100 || move.ArmadaSize != int(math.Floor(before/2)) {
			t.Errorf("move = start %d armada %d, want start 100 armada %d", move.StartTime, move.ArmadaSize, int(before/2))
		}
		if got := e.Game.State.Planets[0].Value; !approxEqual(got, before-float64(move.ArmadaSize)) {
			t.Errorf("planet 0 value = %v, want %v", got, before-float64(move.ArmadaSize))
		}
	})

	t.Run("capture at the same tick voids the move", func(t *testing.T) {
		e, _, alice, bob := newStartedExecutor(t, duelMapJSON)
		move, err := e.CreateMove(0, 2)
		if err != nil {
			t.Fatalf("CreateMove() error = %v", err)
		}
		move.StartTime = 100
		e.buckets.Add(100, 0, bob.Possession, 40)

		if err := e.AddMove(alice, move); err != ErrNotOwner {
			t.Errorf("AddMove() error = %v, want ErrNotOwner", err)
		}
		if !e.Game.State.Planets[0].OwnedBy(bob.Possession) {
			t.Errorf("planet 0 possession = %v, want %d", e.Game.State.Planets[0].Possession, bob.Possession)
		}
		if len(e.Game.State.Moves) != 0 {
			t.Errorf("moves = %d, want 0", len(e.Game.State.Moves))
		}
	})
}

func TestResolve_CombatBoundary(t *testing.T) {
	tests := []struct {
		name      string
		defenders float64
		attackers int
		wantOwner int
		wantValue float64
	}{
		{name: "attackers equal defenders", defenders: 5, attackers: 5, wantOwner: 2, wantValue: 0},
		{name: "one more attacker", defenders: 5, attackers: 6, wantOwner: 1, wantValue: 1},
		{name: "fewer attackers", defenders: 5, attackers: 3, wantOwner: 2, wantValue: 2},
		{name: "empty planet", defenders: 0, attackers: 1, wantOwner: 1, wantValue: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, _, _ := newStartedExecutor(t, duelMapJSON)
			e.Game.State.Planets[1].Value = tt.defenders

			e.resolve(1, 1, tt.attackers)

			planet := e.Game.State.Planets[1]
			if !planet.OwnedBy(tt.wantOwner) {
				t.Errorf("owner = %v, want %d", planet.Possession, tt.wantOwner)
			}
			if !approxEqual(planet.Value, tt.wantValue) {
				t.Errorf("value = %v, want %v", planet.Value, tt.wantValue)
			}
		})
	}
}

func TestStepTo_OverlappingPlanetsLoseNoShips(t *testing.T) {
	data := `{
		"size": {"x": 40, "y": 40},
		"name": "overlap",
		"planets": [
			{"x": 10, "y": 10, "start_value": 40, "radius": 5, "possession": [1], "multiplier": 0},
			{"x": 13, "y": 10, "start_value": 10, "radius": 5, "possession": [1], "multiplier": 0},
			{"x": 35, "y": 35, "start_value": 10, "radius": 1, "possession": [2], "multiplier": 0}
		]
	}`
	e, _, alice, _ := newStartedExecutor(t, data)

	move := sendMove(t, e, alice, 0, 1)
	if move.ArmadaSize != 20 {
		t.Fatalf("ArmadaSize = %d, want 20", move.ArmadaSize)
	}

	planets := e.Game.State.Planets
	landed := int(planets[1].Value) - 10
	if landed+e.PendingShips() != move.ArmadaSize {
		t.Errorf("landed %d + pending %d != armada %d", landed, e.PendingShips(), move.ArmadaSize)
	}
	if landed == 0 {
		t.Error("expected some ships to land immediately")
	}

	e.StepTo(move.EndTime())
	if !approxEqual(planets[1].Value, 30) {
		t.Errorf("destination value = %v, want 30", planets[1].Value)
	}
}

func TestStepTo_Deterministic(t *testing.T) {
	play := func() string {
		e, clock, alice, bob := newStartedExecutor(t, duelMapJSON)
		sendMove(t, e, alice, 0, 2)
		clock.Advance(30)
		sendMove(t, e, bob, 1, 2)
		clock.Advance(45)
		sendMove(t, e, alice, 0, 1)
		e.StepTo(400)
		return e.Game.State.Digest()
	}

	first := play()
	for i := 0; i < 3; i++ {
		if got := play(); got != first {
			t.Fatalf("run %d digest = %s, want %s", i+1, got, first)
		}
	}
}

func TestDigest_IndependentOfStepIntervals(t *testing.T) {
	coarse, _, _, _ := newStartedExecutor(t, duelMapJSON)
	fine, _, _, _ := newStartedExecutor(t, duelMapJSON)

	coarse.StepTo(997)
	for tick := Tick(1); tick <= 997; tick += 7 {
		fine.StepTo(tick)
	}
	fine.StepTo(997)

	if coarse.Game.State.Digest() != fine.Game.State.Digest() {
		t.Error("digest depends on how the galaxy was stepped")
	}
}

func TestGalaxy_Matches(t *testing.T) {
	e, _, alice, _ := newStartedExecutor(t, duelMapJSON)
	sendMove(t, e, alice, 0, 2)
	e.StepTo(40)
	base := e.Game.State

	tests := []struct {
		name   string
		change func(g *Galaxy)
		want   bool
	}{
		{name: "identical", change: func(*Galaxy) {}, want: true},
		{name: "value drift within tolerance", change: func(g *Galaxy) { g.Planets[1].Value += 1e-9 }, want: true},
		{name: "value drift beyond tolerance", change: func(g *Galaxy) { g.Planets[1].Value += 1e-3 }, want: false},
		{name: "owner", change: func(g *Galaxy) { g.Planets[2].Possession = possessionPtr(alice.Possession) }, want: false},
		{name: "time", change: func(g *Galaxy) { g.Time++ }, want: false},
		{name: "moves", change: func(g *Galaxy) { g.Moves = g.Moves[:0] }, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := base.Clone()
			tt.change(other)
			if got := base.Matches(other, 1e-6); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewGameExecutor_ResumesFromSnapshot(t *testing.T) {
	live, clock, alice, bob := newStartedExecutor(t, duelMapJSON)
	sendMove(t, live, alice, 0, 1)
	clock.Advance(10)
	sendMove(t, live, bob, 1, 2)
	clock.Advance(40)
	live.StepTo(live.GetTime())

	snapshot := live.Game.Clone()
	resumed := NewGameExecutor(snapshot, "resumed")

	if resumed.CompletedMoves() != 2 {
		t.Errorf("completed moves = %d, want 2", resumed.CompletedMoves())
	}
	if resumed.PendingShips() != live.PendingShips() {
		t.Errorf("pending ships = %d, want %d", resumed.PendingShips(), live.PendingShips())
	}

	live.StepTo(300)
	resumed.StepTo(300)
	if live.Game.State.Digest() != resumed.Game.State.Digest() {
		t.Error("resumed executor diverged from the live one")
	}
}

func TestSetGame_ReplacesState(t *testing.T) {
	source, _, alice, _ := newStartedExecutor(t, duelMapJSON)
	sendMove(t, source, alice, 0, 1)

	e, _ := newExecutor(t, duelMapJSON)
	e.SetGame(source.Game.Clone())

	if !e.Started() {
		t.Fatal("Started() = false after SetGame")
	}
	if e.PendingShips() != source.PendingShips() {
		t.Errorf("pending ships = %d, want %d", e.PendingShips(), source.PendingShips())
	}
}

func TestRemovePlayer_KeepsPlanets(t *testing.T) {
	e, _, alice, _ := newStartedExecutor(t, duelMapJSON)

	var left *Player
	e.Events.OnEvent(func(event GameEvent, game *Game) {
		if event.Type == EventPlayerLeave {
			left = event.Player
		}
	})

	if !e.RemovePlayer(alice.Possession) {
		t.Fatal("RemovePlayer() = false")
	}
	if e.RemovePlayer(alice.Possession) {
		t.Error("second RemovePlayer() = true")
	}
	if left == nil || left.Name != "alice" {
		t.Errorf("player_leave event = %+v", left)
	}
	if !e.Game.State.Planets[0].OwnedBy(alice.Possession) {
		t.Error("departed player's planet was reassigned")
	}
}
