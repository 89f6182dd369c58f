package oauth

import (
	"sync"

	"github.com/timmy/hubexport/internal/domain"
)

// MessageBus carries cross-window messages from the callback server to
// whichever handshake is currently listening. Listeners are scoped to a
// handshake: Subscribe on entry, release on every exit path.
type MessageBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan domain.CallbackMessage
}

// NewMessageBus creates an empty bus.
func NewMessageBus() *MessageBus {
	return &MessageBus{subs: make(map[int]chan domain.CallbackMessage)}
}

// Subscribe registers a listener. The returned release func is idempotent.
func (b *MessageBus) Subscribe() (<-chan domain.CallbackMessage, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan domain.CallbackMessage, 4)
	b.subs[id] = ch

	var once sync.Once
	release := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
	return ch, release
}

// Publish delivers msg to every current listener and returns how many
// received it. A listener whose buffer is full misses the message.
func (b *MessageBus) Publish(msg domain.CallbackMessage) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for _, ch := range b.subs {
		select {
		case ch <- msg:
			delivered++
		default:
		}
	}
	return delivered
}

// Listeners returns the number of registered listeners.
func (b *MessageBus) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
