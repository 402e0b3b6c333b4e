package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"actarchive/internal/access"
	"actarchive/internal/document/models"
	id "actarchive/pkg/domain"
	"actarchive/pkg/platform/sentinel"
)

// InMemory keeps documents in a map. Callers always receive copies so a
// mutation outside UpdateIfStatus never leaks into the store.
type InMemory struct {
	mu     sync.RWMutex
	nextID int64
	docs   map[id.DocumentID]*models.Document
}

func NewInMemory() *InMemory {
	return &InMemory{docs: make(map[id.DocumentID]*models.Document)}
}

// Create assigns the next ID to doc and stores a copy.
func (s *InMemory) Create(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	doc.ID = id.DocumentID(s.nextID)
	s.docs[doc.ID] = doc.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, documentID id.DocumentID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[documentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return doc.Clone(), nil
}

// FindByIDForUpdate is FindByID; row locking is the caller's RunInTx shard.
func (s *InMemory) FindByIDForUpdate(ctx context.Context, documentID id.DocumentID) (*models.Document, error) {
	return s.FindByID(ctx, documentID)
}

// UpdateIfStatus replaces the stored document only while its status still
// equals expected.
func (s *InMemory) UpdateIfStatus(_ context.Context, doc *models.Document, expected models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.docs[doc.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Status != expected {
		return sentinel.ErrInvalidState
	}
	if doc.VirtualPath != "" {
		for otherID, other := range s.docs {
			if otherID != doc.ID && other.VirtualPath == doc.VirtualPath {
				return sentinel.ErrConflict
			}
		}
	}
	s.docs[doc.ID] = doc.Clone()
	return nil
}

func (s *InMemory) Delete(_ context.Context, documentID id.DocumentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[documentID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.docs, documentID)
	return nil
}

// List returns one page of visible documents ordered by ID, plus the total.
func (s *InMemory) List(_ context.Context, filter models.ListFilter, scope access.Scope) ([]*models.Document, int, error) {
	s.mu.RLock()
	matched := make([]*models.Document, 0)
	for _, doc := range s.docs {
		if filter.Matches(doc) && scope.Allows(doc.UploadedBy, doc.Bureau) {
			matched = append(matched, doc.Clone())
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *models.Document) int {
		return cmp.Compare(a.ID, b.ID)
	})
	total := len(matched)
	if filter.Offset >= total {
		return []*models.Document{}, total, nil
	}
	end := min(filter.Offset+filter.Limit, total)
	if filter.Limit <= 0 {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}

// ListStoredKeys returns the keys of visible documents in status stored.
// Documents that moved on to processing or fields_extracted do not count.
func (s *InMemory) ListStoredKeys(_ context.Context, filter id.KeyFilter, scope access.Scope) ([]id.ClassificationKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]id.ClassificationKey, 0)
	for _, doc := range s.docs {
		if doc.Status != models.StatusStored || !filter.Matches(doc.ClassificationKey) {
			continue
		}
		if !scope.Allows(doc.UploadedBy, doc.Bureau) {
			continue
		}
		keys = append(keys, doc.ClassificationKey)
	}
	return keys, nil
}
