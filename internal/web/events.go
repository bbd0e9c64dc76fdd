package web

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// EventBroadcaster fans published events out to websocket listeners. Each
// subscriber gets a small buffer; a listener that falls behind loses
// events rather than slowing the pipeline.
type EventBroadcaster struct {
	mu     sync.RWMutex
	subs   map[int]chan []byte
	nextID int
}

func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{subs: make(map[int]chan []byte)}
}

// Publish offers the event to every subscriber without blocking.
func (b *EventBroadcaster) Publish(msg []byte) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (b *EventBroadcaster) Subscribe(buffer int) (int, <-chan []byte) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan []byte, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *EventBroadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// SubscriberCount reports the number of live listeners.
func (b *EventBroadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

var upgrader = websocket.Upgrader{
	// The feed carries no credentials and is already reachable without a
	// browser; cross-origin dashboards are the expected consumers.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handle upgrades the request and streams events until the client goes
// away.
func (b *EventBroadcaster) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id, ch := b.Subscribe(64)
	defer b.Unsubscribe(id)

	for {
		select {
		case msg := <-ch:
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
