package lobby

import (
	"context"
	"sync"
	"testing"
	"time"

	"ipg-server/internal/game"
	"ipg-server/internal/shared/errors"
)

type staticMaps map[string]game.Map

func (s staticMaps) MapIDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	return ids
}

func (s staticMaps) MapByID(id string) (game.Map, bool) {
	m, ok := s[id]
	return m, ok
}

func testMaps(t *testing.T) staticMaps {
	t.Helper()
	m, err := game.ParseMap([]byte(`{
		"size": {"x": 100, "y": 100},
		"name": "square",
		"planets": [
			{"x": 10, "y": 10, "start_value": 20, "radius": 3, "possession": [1, 1, 1], "multiplier": 1},
			{"x": 90, "y": 10, "start_value": 20, "radius": 3, "possession": [2, 2, 2], "multiplier": 1},
			{"x": 90, "y": 90, "start_value": 20, "radius": 3, "possession": [0, 3, 3], "multiplier": 1},
			{"x": 10, "y": 90, "start_value": 20, "radius": 3, "possession": [0, 0, 4], "multiplier": 1}
		]
	}`))
	if err != nil {
		t.Fatalf("ParseMap() error = %v", err)
	}
	return staticMaps{"square": *m}
}

type recordingListener struct {
	mu      sync.Mutex
	created []string
	removed []string
}

func (l *recordingListener) GameCreated(info GameInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.created = append(l.created, info.ID)
}

func (l *recordingListener) GameRemoved(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removed = append(l.removed, id)
}

func newTestLobby(t *testing.T) *Lobby {
	t.Helper()
	l := New(testMaps(t), game.GameConfig{MinPlayers: 2})
	t.Cleanup(func() { l.Close(context.Background()) })
	return l
}

func TestCreateGame(t *testing.T) {
	l := newTestLobby(t)
	listener := &recordingListener{}
	l.Subscribe(listener)

	room, err := l.CreateGame("square", &game.GameConfig{MinPlayers: 3})
	if err != nil {
		t.Fatalf("CreateGame() error = %v", err)
	}

	info := room.Info()
	if info.MapID != "square" || info.MinPlayers != 3 || info.MaxPlayers != 4 || info.Started {
		t.Errorf("Info() = %+v", info)
	}
	if len(listener.created) != 1 || listener.created[0] != room.ID {
		t.Errorf("listener created = %v", listener.created)
	}
	if got := l.List(); len(got) != 1 || got[0].ID != room.ID {
		t.Errorf("List() = %+v", got)
	}
}

func TestCreateGame_Errors(t *testing.T) {
	l := newTestLobby(t)

	if _, err := l.CreateGame("missing", nil); errors.GetType(err) != errors.ErrorTypeNotFound {
		t.Errorf("unknown map error = %v, want not found", err)
	}
	if _, err := l.CreateGame("square", &game.GameConfig{MinPlayers: 5}); errors.GetType(err) != errors.ErrorTypeValidation {
		t.Errorf("oversized min players error = %v, want validation", err)
	}
}

func TestCreateGame_RunsHooks(t *testing.T) {
	l := newTestLobby(t)
	events := make(chan game.EventType, 4)
	l.OnRoomCreated(func(room *Room) {
		room.Do(context.Background(), func(e *game.GameExecutor) error {
			e.Events.OnEvent(func(event game.GameEvent, _ *game.Game) {
				events <- event.Type
			})
			return nil
		})
	})

	room, _ := l.CreateGame("square", nil)
	room.Do(context.Background(), func(e *game.GameExecutor) error {
		_, err := e.AddPlayer(game.Player{Name: "alice"})
		return err
	})

	select {
	case got := <-events:
		if got != game.EventPlayer {
			t.Errorf("event = %s, want player", got)
		}
	case <-time.After(time.Second):
		t.Fatal("hook handler never saw the player event")
	}
}

func TestRemoveGame_RunsRemovalHooksBeforeClosing(t *testing.T) {
	l := newTestLobby(t)
	var players []int
	l.OnRoomRemoved(func(room *Room) {
		err := room.Do(context.Background(), func(e *game.GameExecutor) error {
			players = append(players, len(e.Game.Players))
			return nil
		})
		if err != nil {
			t.Errorf("Do() in removal hook error = %v", err)
		}
	})

	room, _ := l.CreateGame("square", nil)
	room.Do(context.Background(), func(e *game.GameExecutor) error {
		_, err := e.AddPlayer(game.Player{Name: "alice"})
		return err
	})

	if !l.RemoveGame(room.ID) {
		t.Fatal("RemoveGame() = false")
	}
	if len(players) != 1 || players[0] != 1 {
		t.Errorf("removal hook saw players %v, want [1]", players)
	}
	if err := room.Do(context.Background(), func(*game.GameExecutor) error { return nil }); err != ErrRoomClosed {
		t.Errorf("Do() after removal error = %v, want ErrRoomClosed", err)
	}
	if l.RemoveGame(room.ID) {
		t.Error("second RemoveGame() = true")
	}
	if len(players) != 1 {
		t.Errorf("removal hook ran %d times", len(players))
	}
}

func TestRoom_DoSerialisesAccess(t *testing.T) {
	l := newTestLobby(t)
	room, _ := l.CreateGame("square", nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- room.Do(ctx, func(e *game.GameExecutor) error {
				_, err := e.AddPlayer(game.Player{Name: "p"})
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)

	joined, full := 0, 0
	for err := range errs {
		switch err {
		case nil:
			joined++
		case game.ErrGameFull:
			full++
		default:
			t.Errorf("unexpected error %v", err)
		}
	}
	if joined != 4 || full != 4 {
		t.Errorf("joined=%d full=%d, want 4 and 4", joined, full)
	}
	if room.Info().Players != 4 {
		t.Errorf("Info().Players = %d, want 4", room.Info().Players)
	}
}

func TestRoom_PanicClosesRoom(t *testing.T) {
	l := newTestLobby(t)
	room, _ := l.CreateGame("square", nil)
	ctx := context.Background()

	err := room.Do(ctx, func(e *game.GameExecutor) error {
		panic("broken invariant")
	})
	if errors.GetType(err) != errors.ErrorTypeInternal {
		t.Errorf("Do() error = %v, want internal error", err)
	}

	select {
	case <-room.Done():
	case <-time.After(time.Second):
		t.Fatal("room still running after panic")
	}
	if err := room.Do(ctx, func(*game.GameExecutor) error { return nil }); err != ErrRoomClosed {
		t.Errorf("Do() on closed room = %v, want ErrRoomClosed", err)
	}
}

func TestRoom_PanicRemovesRoomFromLobby(t *testing.T) {
	l := newTestLobby(t)
	listener := &recordingListener{}
	l.Subscribe(listener)
	var detached []string
	l.OnRoomRemoved(func(r *Room) {
		detached = append(detached, r.ID)
	})
	room, _ := l.CreateGame("square", nil)
	if _, err := l.Join(room.ID); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	room.Do(context.Background(), func(e *game.GameExecutor) error {
		panic("broken invariant")
	})

	if !room.Failed() {
		t.Error("Failed() = false after panic")
	}
	if _, ok := l.Room(room.ID); ok {
		t.Error("failed room still registered")
	}
	if len(l.List()) != 0 {
		t.Errorf("List() = %v, want empty", l.List())
	}
	if _, err := l.Join(room.ID); errors.GetType(err) != errors.ErrorTypeNotFound {
		t.Errorf("Join() failed room error = %v, want not found", err)
	}
	if len(detached) != 1 || len(listener.removed) != 1 {
		t.Errorf("removal hooks ran %d times, listeners told %d times", len(detached), len(listener.removed))
	}

	l.Leave(room)
	if len(l.members) != 0 {
		t.Errorf("members = %v after leaving a failed room", l.members)
	}
}

func TestRoom_DoHonoursContext(t *testing.T) {
	l := newTestLobby(t)
	room, _ := l.CreateGame("square", nil)

	release := make(chan struct{})
	go room.Do(context.Background(), func(*game.GameExecutor) error {
		<-release
		return nil
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Wait until the blocking op holds the room.
	time.Sleep(5 * time.Millisecond)
	if err := room.Do(ctx, func(*game.GameExecutor) error { return nil }); err != context.DeadlineExceeded {
		t.Errorf("Do() error = %v, want deadline exceeded", err)
	}
}

func TestJoinLeave_RemovesEmptyRoom(t *testing.T) {
	l := newTestLobby(t)
	listener := &recordingListener{}
	l.Subscribe(listener)
	room, _ := l.CreateGame("square", nil)

	if _, err := l.Join(room.ID); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if _, err := l.Join(room.ID); err != nil {
		t.Fatalf("second Join() error = %v", err)
	}

	l.Leave(room)
	if _, ok := l.Room(room.ID); !ok {
		t.Fatal("room removed while a member remains")
	}

	l.Leave(room)
	if _, ok := l.Room(room.ID); ok {
		t.Fatal("room kept after last member left")
	}
	if len(listener.removed) != 1 || listener.removed[0] != room.ID {
		t.Errorf("listener removed = %v", listener.removed)
	}
	if _, err := l.Join(room.ID); errors.GetType(err) != errors.ErrorTypeNotFound {
		t.Errorf("Join() removed room error = %v, want not found", err)
	}
}

func TestJoin_InvalidID(t *testing.T) {
	l := newTestLobby(t)
	if _, err := l.Join("not-a-ulid"); errors.GetType(err) != errors.ErrorTypeValidation {
		t.Errorf("Join() error = %v, want validation error", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	l := newTestLobby(t)
	listener := &recordingListener{}
	id := l.Subscribe(listener)
	l.Unsubscribe(id)

	l.CreateGame("square", nil)
	if len(listener.created) != 0 {
		t.Errorf("unsubscribed listener saw %v", listener.created)
	}
}

func TestLeave_JoinDuringRemovalFindsRoomGone(t *testing.T) {
	l := newTestLobby(t)
	var rejoinErr error
	l.OnRoomRemoved(func(r *Room) {
		// A Join racing the last Leave must not resurrect the room.
		_, rejoinErr = l.Join(r.ID)
	})
	room, _ := l.CreateGame("square", nil)
	if _, err := l.Join(room.ID); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	l.Leave(room)

	if errors.GetType(rejoinErr) != errors.ErrorTypeNotFound {
		t.Errorf("Join() during removal error = %v, want not found", rejoinErr)
	}
	if _, ok := l.Room(room.ID); ok {
		t.Error("room still registered after last Leave")
	}
}

func TestLeave_RemovedRoomIsIgnored(t *testing.T) {
	l := newTestLobby(t)
	listener := &recordingListener{}
	l.Subscribe(listener)
	room, _ := l.CreateGame("square", nil)
	l.Join(room.ID)

	if !l.RemoveGame(room.ID) {
		t.Fatal("RemoveGame() = false")
	}
	l.Leave(room)
	l.Leave(room)

	if len(l.members) != 0 {
		t.Errorf("members = %v, want empty", l.members)
	}
	if len(listener.removed) != 1 {
		t.Errorf("removed notifications = %d, want 1", len(listener.removed))
	}
}

func TestJoinLeave_ConcurrentMembersKeepRoom(t *testing.T) {
	l := newTestLobby(t)
	room, _ := l.CreateGame("square", nil)
	if _, err := l.Join(room.ID); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r, err := l.Join(room.ID)
				if err != nil {
					t.Errorf("Join() while held error = %v", err)
					return
				}
				l.Leave(r)
			}
		}()
	}
	wg.Wait()

	if _, ok := l.Room(room.ID); !ok {
		t.Fatal("room removed while a member remained")
	}
	if l.members[room.ID] != 1 {
		t.Errorf("members = %d, want 1", l.members[room.ID])
	}

	l.Leave(room)
	if _, ok := l.Room(room.ID); ok {
		t.Error("room kept after last member left")
	}
	if len(l.members) != 0 {
		t.Errorf("members = %v, want empty", l.members)
	}
}
