package game

// EventType identifies a state-changing game event.
type EventType string

const (
	EventStart       EventType = "start"
	EventMove        EventType = "move"
	EventPlayer      EventType = "player"
	EventPlayerLeave EventType = "player_leave"
)

type GameEvent struct {
	Type   EventType
	Move   *Move
	Player *Player
}

// EventHandler is invoked synchronously for every emitted event. It must
// not retain the game pointer after it returns; copy what it needs.
type EventHandler func(event GameEvent, game *Game)

type subscription struct {
	id      int
	handler EventHandler
}

// EventSource is an ordered, synchronous observer list.
type EventSource struct {
	handlers []subscription
	nextID   int
}

func NewEventSource() *EventSource {
	return &EventSource{nextID: 1}
}

// OnEvent registers a handler and returns its subscription id.
func (s *EventSource) OnEvent(handler EventHandler) int {
	id := s.nextID
	s.nextID++
	s.handlers = append(s.handlers, subscription{id: id, handler: handler})
	return id
}

// Off removes a handler. It reports whether the id was registered.
func (s *EventSource) Off(id int) bool {
	for i, sub := range s.handlers {
		if sub.id == id {
			s.handlers = append(s.handlers[:i:i], s.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Emit runs every handler to completion, in registration order.
func (s *EventSource) Emit(event GameEvent, game *Game) {
	handlers := append([]subscription(nil), s.handlers...)
	for _, sub := range handlers {
		sub.handler(event, game)
	}
}

func (s *EventSource) Len() int {
	return len(s.handlers)
}
