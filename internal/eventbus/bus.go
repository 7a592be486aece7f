package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"announcer/internal/host"
)

// Bus is an in-memory fan-out of host events. It implements
// host.EventSource, so the plugin can subscribe to it exactly the way it
// would subscribe to a real host's event dispatcher.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
type Bus interface {
	host.EventSource
	Publish(e host.Event)
}

// New returns a simple in-memory fanout bus.
//
// It intentionally does not own any background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan host.Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan host.Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e host.Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot subscribers so Publish doesn't hold locks while attempting sends.
	b.mu.RLock()
	chs := make([]chan host.Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// Non-blocking delivery. If subscriber is slow, we drop.
		// If a subscriber unsubscribes concurrently and the channel closes,
		// recover from a possible panic (send on closed channel).
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan host.Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan host.Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			// Closing is safe because Publish recovers from send panics.
			close(ch)
		})
	}
	return ch, unsub
}
