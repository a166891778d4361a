package game

// Tick is the discrete simulation time unit.
type Tick uint64

const (
	// ShipSpeed is the distance a ship travels per tick, in map units.
	ShipSpeed = 0.5
	// ShipTicks is the growth divisor: a planet produces
	// multiplier*radius ships every ShipTicks ticks.
	ShipTicks = 1000.0
	// TimeDivisor is the number of wall-clock milliseconds per tick.
	TimeDivisor = 10
	// PlacementSeed seeds ship placement for every move.
	PlacementSeed = 42
)

type Planet struct {
	Index      int     `json:"index" msgpack:"index"`
	X          float64 `json:"x" msgpack:"x"`
	Y          float64 `json:"y" msgpack:"y"`
	Radius     float64 `json:"radius" msgpack:"radius"`
	Multiplier float64 `json:"multiplier" msgpack:"multiplier"`
	Value      float64 `json:"value" msgpack:"value"`
	Possession *int    `json:"possession" msgpack:"possession"`
}

// OwnedBy reports whether the planet belongs to the given possession index.
func (p *Planet) OwnedBy(possession int) bool {
	return p.Possession != nil && *p.Possession == possession
}

type Player struct {
	Name       string `json:"name" msgpack:"name"`
	Possession int    `json:"possession" msgpack:"possession"`
}

// Move is a transfer order. From and To are snapshots taken when the
// move was created; the live planets may change before it resolves.
type Move struct {
	From       Planet `json:"from" msgpack:"from"`
	To         Planet `json:"to" msgpack:"to"`
	ArmadaSize int    `json:"armada_size" msgpack:"armada_size"`
	StartTime  Tick   `json:"start_time" msgpack:"start_time"`
}

// Attacker returns the possession index the armada fights for.
func (m *Move) Attacker() int {
	if m.From.Possession == nil {
		return 0
	}
	return *m.From.Possession
}

type Galaxy struct {
	Time    Tick     `json:"time" msgpack:"time"`
	Planets []Planet `json:"planets" msgpack:"planets"`
	Moves   []Move   `json:"moves" msgpack:"moves"`
}

type GameConfig struct {
	MinPlayers int `json:"min_players" msgpack:"min_players"`
}

// Game is the serializable aggregate shared with clients. State is nil
// until the game starts.
type Game struct {
	Map     Map        `json:"map" msgpack:"map"`
	State   *Galaxy    `json:"state" msgpack:"state"`
	Players []Player   `json:"players" msgpack:"players"`
	Config  GameConfig `json:"config" msgpack:"config"`
}

func NewGame(m Map, config GameConfig) *Game {
	if config.MinPlayers < 2 {
		config.MinPlayers = 2
	}
	return &Game{
		Map:     m,
		Players: []Player{},
		Config:  config,
	}
}

func (g *Game) Started() bool {
	return g.State != nil
}

// Player looks up a joined player by possession index.
func (g *Game) Player(possession int) (Player, bool) {
	for _, p := range g.Players {
		if p.Possession == possession {
			return p, true
		}
	}
	return Player{}, false
}

// nextPossession returns an index not held by any remaining player or
// planet, so a departed player's planets are never inherited.
func (g *Game) nextPossession() int {
	highest := 0
	for _, p := range g.Players {
		if p.Possession > highest {
			highest = p.Possession
		}
	}
	if g.State != nil {
		for _, planet := range g.State.Planets {
			if planet.Possession != nil && *planet.Possession > highest {
				highest = *planet.Possession
			}
		}
	}
	return highest + 1
}

// Clone returns a deep copy safe to hand to another goroutine.
func (g *Game) Clone() *Game {
	clone := &Game{
		Map:     g.Map.clone(),
		Players: append([]Player{}, g.Players...),
		Config:  g.Config,
	}
	if g.State != nil {
		clone.State = g.State.Clone()
	}
	return clone
}

func (g *Galaxy) Clone() *Galaxy {
	clone := &Galaxy{
		Time:    g.Time,
		Planets: make([]Planet, len(g.Planets)),
		Moves:   make([]Move, len(g.Moves)),
	}
	for i, p := range g.Planets {
		clone.Planets[i] = p.clone()
	}
	for i, m := range g.Moves {
		clone.Moves[i] = m.Clone()
	}
	return clone
}

func (m Move) Clone() Move {
	m.From = m.From.clone()
	m.To = m.To.clone()
	return m
}

func (p Planet) clone() Planet {
	if p.Possession != nil {
		owner := *p.Possession
		p.Possession = &owner
	}
	return p
}

func possessionPtr(possession int) *int {
	return &possession
}
