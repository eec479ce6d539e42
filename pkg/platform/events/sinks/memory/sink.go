package memory

import (
	"context"
	"sync"

	"coldchain/pkg/platform/events"
)

// Sink keeps published events in memory, grouped by aggregate.
type Sink struct {
	mu     sync.RWMutex
	all    []events.Event
	byAggr map[string][]events.Event
}

func New() *Sink {
	return &Sink{byAggr: make(map[string][]events.Event)}
}

func (s *Sink) Publish(_ context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = append(s.all, event)
	key := aggregateKey(event.AggregateType, event.AggregateID)
	s.byAggr[key] = append(s.byAggr[key], event)
	return nil
}

// ListByAggregate returns events about one aggregate in publish order.
func (s *Sink) ListByAggregate(aggregateType, aggregateID string) []events.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]events.Event{}, s.byAggr[aggregateKey(aggregateType, aggregateID)]...)
}

func (s *Sink) ListAll() []events.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]events.Event{}, s.all...)
}

// Kinds lists the kinds of all events in publish order.
func (s *Sink) Kinds() []events.Kind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kinds := make([]events.Kind, len(s.all))
	for i, e := range s.all {
		kinds[i] = e.Kind
	}
	return kinds
}

func (s *Sink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = nil
	s.byAggr = make(map[string][]events.Event)
}

func aggregateKey(aggregateType, aggregateID string) string {
	return aggregateType + "/" + aggregateID
}
