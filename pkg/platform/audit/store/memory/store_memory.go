package memory

import (
	"context"
	"maps"
	"sync"

	id "actarchive/pkg/domain"
	audit "actarchive/pkg/platform/audit"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.DocumentID][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.DocumentID][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.DocumentID][]audit.Event)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.Details = maps.Clone(event.Details)
	s.events[event.DocumentID] = append(s.events[event.DocumentID], event)
	return nil
}

// ListByDocument returns a document's events in append order.
func (s *InMemoryStore) ListByDocument(_ context.Context, documentID id.DocumentID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.events[documentID]
	out := make([]audit.Event, len(stored))
	for i, e := range stored {
		e.Details = maps.Clone(e.Details)
		out[i] = e
	}
	return out, nil
}
