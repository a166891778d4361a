package lobby

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"ipg-server/internal/game"
	"ipg-server/internal/maps"
	"ipg-server/internal/shared/errors"
)

// Listener is notified when games appear in or leave the lobby.
type Listener interface {
	GameCreated(info GameInfo)
	GameRemoved(id string)
}

// Lobby is the registry of running rooms.
type Lobby struct {
	mu        sync.RWMutex
	rooms     map[string]*Room
	members   map[string]int
	listeners map[int]Listener
	nextID    int
	hooks     []func(*Room)
	removals  []func(*Room)

	maps     maps.Manager
	defaults game.GameConfig
	now      func() time.Time
	logger   *slog.Logger
}

func New(manager maps.Manager, defaults game.GameConfig) *Lobby {
	return &Lobby{
		rooms:     make(map[string]*Room),
		members:   make(map[string]int),
		listeners: make(map[int]Listener),
		maps:      manager,
		defaults:  defaults,
		now:       time.Now,
		logger:    slog.With("component", "lobby"),
	}
}

// OnRoomCreated registers a hook run for every new room before it is
// listed. Hooks may subscribe to the room's executor through Do.
func (l *Lobby) OnRoomCreated(hook func(*Room)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, hook)
}

// OnRoomRemoved registers a hook run for every room leaving the lobby,
// while the room can still serve Do.
func (l *Lobby) OnRoomRemoved(hook func(*Room)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removals = append(l.removals, hook)
}

func (l *Lobby) Subscribe(listener Listener) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	l.listeners[l.nextID] = listener
	return l.nextID
}

func (l *Lobby) Unsubscribe(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.listeners, id)
}

func (l *Lobby) CreateGame(mapID string, config *game.GameConfig) (*Room, error) {
	logger := l.logger.With("operation", "create_game", "map_id", mapID)

	m, ok := l.maps.MapByID(mapID)
	if !ok {
		return nil, errors.NotFoundf("map %q not found", mapID)
	}

	cfg := l.defaults
	if config != nil && config.MinPlayers > 0 {
		cfg.MinPlayers = config.MinPlayers
	}
	if max := m.MaxPlayers(); cfg.MinPlayers > max {
		return nil, errors.Validationf("map %q supports at most %d players", mapID, max)
	}

	id := ulid.Make().String()
	g := game.NewGame(m, cfg)
	room := newRoom(id, mapID, game.NewGameExecutor(g, id), l.now(), l.roomFailed)

	l.mu.Lock()
	hooks := append([]func(*Room){}, l.hooks...)
	l.mu.Unlock()
	for _, hook := range hooks {
		hook(room)
	}

	l.mu.Lock()
	l.rooms[id] = room
	listeners := l.snapshotListeners()
	l.mu.Unlock()

	logger.Info("Game created", "game_id", id, "min_players", cfg.MinPlayers)

	info := room.Info()
	for _, listener := range listeners {
		listener.GameCreated(info)
	}
	return room, nil
}

// Join looks up a room and counts the caller as connected to it.
func (l *Lobby) Join(id string) (*Room, error) {
	if _, err := ulid.ParseStrict(id); err != nil {
		return nil, errors.WrapValidation("invalid game id", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	room, ok := l.rooms[id]
	if !ok {
		return nil, errors.NotFoundf("game %s not found", id)
	}
	l.members[id]++
	return room, nil
}

// Leave releases a Join. The room is removed once nobody is connected;
// the count and the removal are decided under the same lock so a
// concurrent Join either keeps the room alive or finds it gone.
func (l *Lobby) Leave(room *Room) {
	l.mu.Lock()
	if l.rooms[room.ID] != room {
		l.mu.Unlock()
		return
	}
	l.members[room.ID]--
	if l.members[room.ID] > 0 {
		l.mu.Unlock()
		return
	}
	listeners, removals := l.unlistLocked(room.ID)
	l.mu.Unlock()

	l.retire(room, listeners, removals)
}

func (l *Lobby) Room(id string) (*Room, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	room, ok := l.rooms[id]
	return room, ok
}

func (l *Lobby) RemoveGame(id string) bool {
	l.mu.Lock()
	room, ok := l.rooms[id]
	if !ok {
		l.mu.Unlock()
		return false
	}
	listeners, removals := l.unlistLocked(id)
	l.mu.Unlock()

	l.retire(room, listeners, removals)
	return true
}

// roomFailed drops a room whose executor broke. It runs on the room's
// goroutine after the room has closed.
func (l *Lobby) roomFailed(room *Room) {
	l.mu.Lock()
	if l.rooms[room.ID] != room {
		l.mu.Unlock()
		return
	}
	listeners, removals := l.unlistLocked(room.ID)
	l.mu.Unlock()

	l.retire(room, listeners, removals)
}

// unlistLocked removes id from the registry. l.mu must be held.
func (l *Lobby) unlistLocked(id string) ([]Listener, []func(*Room)) {
	delete(l.rooms, id)
	delete(l.members, id)
	return l.snapshotListeners(), append([]func(*Room){}, l.removals...)
}

func (l *Lobby) retire(room *Room, listeners []Listener, removals []func(*Room)) {
	for _, hook := range removals {
		hook(room)
	}
	room.Close()
	l.logger.Info("Game removed", "game_id", room.ID)
	for _, listener := range listeners {
		listener.GameRemoved(room.ID)
	}
}

// List returns every room, oldest first.
func (l *Lobby) List() []GameInfo {
	l.mu.RLock()
	infos := make([]GameInfo, 0, len(l.rooms))
	for _, room := range l.rooms {
		infos = append(infos, room.Info())
	}
	l.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Close stops every room.
func (l *Lobby) Close(ctx context.Context) {
	l.mu.Lock()
	rooms := l.rooms
	l.rooms = make(map[string]*Room)
	l.members = make(map[string]int)
	removals := append([]func(*Room){}, l.removals...)
	l.mu.Unlock()

	for _, room := range rooms {
		for _, hook := range removals {
			hook(room)
		}
		room.Close()
	}
	l.logger.InfoContext(ctx, "Lobby closed", "rooms", len(rooms))
}

func (l *Lobby) snapshotListeners() []Listener {
	listeners := make([]Listener, 0, len(l.listeners))
	for _, listener := range l.listeners {
		listeners = append(listeners, listener)
	}
	return listeners
}
