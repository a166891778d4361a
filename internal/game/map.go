package game

import (
	"encoding/json"

	"ipg-server/internal/shared/errors"
)

// MapPlanet is a planet as declared by a map file. Possession is indexed
// by player count minus two; 0 means neutral and n means the n-th player
// to join.
type MapPlanet struct {
	X          float64 `json:"x" msgpack:"x" jsonschema:"minimum=0"`
	Y          float64 `json:"y" msgpack:"y" jsonschema:"minimum=0"`
	StartValue float64 `json:"start_value" msgpack:"start_value" jsonschema:"minimum=0"`
	Radius     float64 `json:"radius" msgpack:"radius"`
	Possession []int   `json:"possession" msgpack:"possession"`
	Multiplier float64 `json:"multiplier" msgpack:"multiplier"`
}

type MapSize struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// Map is the Inter Planet Game map format (v0.4).
type Map struct {
	Size    MapSize     `json:"size" msgpack:"size"`
	Name    string      `json:"name" msgpack:"name" jsonschema:"minLength=1"`
	Planets []MapPlanet `json:"planets" msgpack:"planets" jsonschema:"minItems=1"`
}

// ParseMap decodes and validates a map document.
func ParseMap(data []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.WrapValidation("map is not valid JSON", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the structural rules every playable map must satisfy.
func (m *Map) Validate() error {
	if m.Name == "" {
		return errors.Validation("map has no name")
	}
	if len(m.Planets) == 0 {
		return errors.Validationf("map %q has no planets", m.Name)
	}
	width := len(m.Planets[0].Possession)
	for i, p := range m.Planets {
		if p.Radius <= 0 {
			return errors.Validationf("map %q: planet %d has non-positive radius", m.Name, i)
		}
		if p.StartValue < 0 {
			return errors.Validationf("map %q: planet %d has negative start value", m.Name, i)
		}
		if len(p.Possession) != width {
			return errors.Validationf("map %q: planet %d possession table has %d entries, expected %d",
				m.Name, i, len(p.Possession), width)
		}
	}
	return nil
}

// MaxPlayers is the largest player count the possession tables support.
func (m *Map) MaxPlayers() int {
	if len(m.Planets) == 0 || len(m.Planets[0].Possession) == 0 {
		return 0
	}
	return len(m.Planets[0].Possession) + 1
}

// ToGalaxy generates the initial galaxy for the given players, in join
// order.
func (m *Map) ToGalaxy(players []Player) (*Galaxy, error) {
	if len(players) < 2 {
		return nil, errors.Validation("invalid map configuration: at least two players are required to create a galaxy")
	}

	planets := make([]Planet, 0, len(m.Planets))
	for index, mp := range m.Planets {
		column := len(players) - 2
		if column >= len(mp.Possession) {
			return nil, errors.Validationf("map %q: planet %d does not support %d players", m.Name, index, len(players))
		}

		var possession *int
		switch slot := mp.Possession[column]; {
		case slot == 0:
		case slot > 0 && slot <= len(players):
			possession = possessionPtr(players[slot-1].Possession)
		default:
			return nil, errors.Validationf("map %q: planet %d specifies player %d of %d players",
				m.Name, index, slot, len(players))
		}

		planets = append(planets, Planet{
			Index:      index,
			X:          mp.X,
			Y:          mp.Y,
			Radius:     mp.Radius,
			Multiplier: mp.Multiplier,
			Value:      mp.StartValue,
			Possession: possession,
		})
	}

	return &Galaxy{
		Time:    0,
		Planets: planets,
		Moves:   []Move{},
	}, nil
}

func (m Map) clone() Map {
	planets := make([]MapPlanet, len(m.Planets))
	for i, p := range m.Planets {
		p.Possession = append([]int(nil), p.Possession...)
		planets[i] = p
	}
	m.Planets = planets
	return m
}
