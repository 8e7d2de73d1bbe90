package attendance

import (
	"sync"

	"github.com/kozaktomas/attendance-tracker/internal/constants"
)

// Event is pushed to listeners whenever the coordinator changes something.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Broadcaster fans values out to listeners. Slow listeners miss values
// instead of blocking the sender. The zero value is ready to use.
type Broadcaster[T any] struct {
	listeners []chan T
	mu        sync.RWMutex
}

// EventBroadcaster carries coordinator events.
type EventBroadcaster = Broadcaster[Event]

// AddListener adds a listener.
func (b *Broadcaster[T]) AddListener() chan T {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan T, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes and closes a listener.
func (b *Broadcaster[T]) RemoveListener(ch chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends v to all listeners.
func (b *Broadcaster[T]) SendEvent(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- v:
		default:
			// Listener buffer full, skip.
		}
	}
}
