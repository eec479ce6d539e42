package buffer

import (
	"context"
	"sync"

	"coldchain/pkg/platform/events"
)

const defaultCapacity = 10000

// RingBuffer is a bounded, thread-safe queue of events. When full, the oldest
// events are dropped to make room for new ones. It satisfies events.Sink so a
// service can publish into it without blocking on a broker.
type RingBuffer struct {
	mu       sync.Mutex
	events   []events.Event
	head     int // next write position
	tail     int // next read position
	count    int
	capacity int
	dropped  int64

	// ready is signalled (non-blocking) on every enqueue.
	ready chan struct{}
}

// NewRingBuffer creates a ring buffer with the given capacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &RingBuffer{
		events:   make([]events.Event, capacity),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// Publish enqueues the event. It never fails.
func (b *RingBuffer) Publish(_ context.Context, event events.Event) error {
	b.Enqueue(event)
	return nil
}

// Enqueue adds an event, dropping the oldest if necessary.
func (b *RingBuffer) Enqueue(event events.Event) {
	b.mu.Lock()
	if b.count >= b.capacity {
		b.tail = (b.tail + 1) % b.capacity
		b.count--
		b.dropped++
	}
	b.events[b.head] = event
	b.head = (b.head + 1) % b.capacity
	b.count++
	b.mu.Unlock()

	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// DequeueBatch removes up to n events from the buffer, oldest first.
func (b *RingBuffer) DequeueBatch(n int) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	if n <= 0 || n > b.count {
		n = b.count
	}

	result := make([]events.Event, n)
	for i := 0; i < n; i++ {
		result[i] = b.events[b.tail]
		b.events[b.tail] = events.Event{}
		b.tail = (b.tail + 1) % b.capacity
	}
	b.count -= n
	return result
}

// Ready fires after an enqueue. Consumers should still poll with
// DequeueBatch; one signal may cover many events.
func (b *RingBuffer) Ready() <-chan struct{} {
	return b.ready
}

func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Dropped returns the total number of events evicted because the buffer was full.
func (b *RingBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
