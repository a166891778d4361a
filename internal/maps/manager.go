package maps

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"ipg-server/internal/game"
	"ipg-server/internal/shared/errors"
)

// Manager resolves map ids to playable maps.
type Manager interface {
	MapIDs() []string
	MapByID(id string) (game.Map, bool)
}

// Summary is the lobby listing of a map.
type Summary struct {
	ID         string       `json:"id" msgpack:"id"`
	Size       game.MapSize `json:"size" msgpack:"size"`
	Planets    int          `json:"planets" msgpack:"planets"`
	MaxPlayers int          `json:"max_players" msgpack:"max_players"`
}

// FileSystem serves the maps found in a directory, keyed by map name.
type FileSystem struct {
	dir  string
	maps map[string]game.Map
}

// NewFileSystem loads every *.json file in dir. Any unreadable or invalid
// map fails the whole load.
func NewFileSystem(dir string) (*FileSystem, error) {
	logger := slog.With("component", "map_manager", "operation", "load", "dir", dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.WrapInternal("unable to read maps directory", err)
	}

	maps := make(map[string]game.Map)
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapInternal("unable to read map "+entry.Name(), err)
		}

		m, err := game.ParseMap(data)
		if err != nil {
			logger.Error("Invalid map file", "file", entry.Name(), "error", err)
			return nil, errors.WrapValidation("invalid map "+entry.Name(), err)
		}
		if _, dup := maps[m.Name]; dup {
			return nil, errors.Validationf("map name %q is used by more than one file", m.Name)
		}

		maps[m.Name] = *m
		logger.Debug("Loaded map", "file", entry.Name(), "name", m.Name, "planets", len(m.Planets))
	}

	logger.Info("Maps loaded", "count", len(maps))
	return &FileSystem{dir: dir, maps: maps}, nil
}

// MapIDs returns the map ids in lexical order.
func (f *FileSystem) MapIDs() []string {
	ids := make([]string, 0, len(f.maps))
	for id := range f.maps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (f *FileSystem) MapByID(id string) (game.Map, bool) {
	m, ok := f.maps[id]
	return m, ok
}

func (f *FileSystem) Summaries() []Summary {
	return Summaries(f)
}

// Summaries lists every map served by m.
func Summaries(m Manager) []Summary {
	ids := m.MapIDs()
	sort.Strings(ids)

	summaries := make([]Summary, 0, len(ids))
	for _, id := range ids {
		gm, ok := m.MapByID(id)
		if !ok {
			continue
		}
		summaries = append(summaries, Summary{
			ID:         id,
			Size:       gm.Size,
			Planets:    len(gm.Planets),
			MaxPlayers: gm.MaxPlayers(),
		})
	}
	return summaries
}
