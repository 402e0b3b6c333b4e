// Package store persists inventory batches and their records.
package store

import (
	"context"
	"slices"
	"sync"

	"actarchive/internal/access"
	"actarchive/internal/inventory/models"
	id "actarchive/pkg/domain"
	"actarchive/pkg/platform/sentinel"
)

type batchEntry struct {
	batch   models.Batch
	records []models.Record
}

// InMemory keeps batches in a map guarded by one RWMutex.
type InMemory struct {
	mu      sync.RWMutex
	batches map[id.BatchID]*batchEntry
}

func NewInMemory() *InMemory {
	return &InMemory{batches: make(map[id.BatchID]*batchEntry)}
}

// CreateBatch stores the batch and all its records atomically.
func (s *InMemory) CreateBatch(_ context.Context, batch *models.Batch, records []models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.batches[batch.ID]; exists {
		return sentinel.ErrConflict
	}
	s.batches[batch.ID] = &batchEntry{batch: *batch, records: slices.Clone(records)}
	return nil
}

func (s *InMemory) FindBatch(_ context.Context, batchID id.BatchID) (*models.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.batches[batchID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	batch := entry.batch
	return &batch, nil
}

// ListBatches returns every batch, newest first.
func (s *InMemory) ListBatches(_ context.Context) ([]*models.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Batch, 0, len(s.batches))
	for _, entry := range s.batches {
		batch := entry.batch
		out = append(out, &batch)
	}
	slices.SortFunc(out, compareBatches)
	return out, nil
}

// ListRecords returns the batch's records in row order.
func (s *InMemory) ListRecords(_ context.Context, batchID id.BatchID) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.batches[batchID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return slices.Clone(entry.records), nil
}

// ListKeys returns the keys of the batch's records that pass filter and scope.
func (s *InMemory) ListKeys(_ context.Context, batchID id.BatchID, filter id.KeyFilter, scope access.Scope) ([]id.ClassificationKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.batches[batchID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	keys := make([]id.ClassificationKey, 0, len(entry.records))
	for _, rec := range entry.records {
		if filter.Matches(rec.ClassificationKey) && scope.AllowsBureau(rec.Bureau) {
			keys = append(keys, rec.ClassificationKey)
		}
	}
	return keys, nil
}

func (s *InMemory) DeleteBatch(_ context.Context, batchID id.BatchID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[batchID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.batches, batchID)
	return nil
}

func compareBatches(a, b *models.Batch) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return slices.Compare(a.ID[:], b.ID[:])
}
