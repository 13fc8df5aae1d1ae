// Package memory contains in-memory store implementations for tests and
// local development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/welanie/dealpipe/internal/product"
)

// RecordStore keeps stored records in memory with the same duplicate
// semantics as the Postgres store: one record per fingerprint, one record
// per non-empty image content.
type RecordStore struct {
	mu      sync.Mutex
	records []product.StoredRecord
	nextID  int
}

// NewRecordStore returns an empty store.
func NewRecordStore() *RecordStore {
	return &RecordStore{}
}

// TryInsert adds the record unless its fingerprint or image is already
// present.
func (s *RecordStore) TryInsert(
	_ context.Context,
	rec product.CandidateRecord,
	fingerprint string,
) (product.InsertResult, string, error) {
	if fingerprint == "" {
		return product.ResultDuplicate, "", fmt.Errorf("fingerprint is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records {
		if existing.Fingerprint == fingerprint {
			return product.ResultDuplicate, "", nil
		}
		if rec.Image != "" && existing.Image == rec.Image {
			return product.ResultDuplicate, "", nil
		}
	}
	s.nextID++
	id := fmt.Sprintf("mem-%d", s.nextID)
	s.records = append(s.records, product.StoredRecord{
		ID:              id,
		Fingerprint:     fingerprint,
		CandidateRecord: rec,
	})
	return product.ResultInserted, id, nil
}

// List returns stored records newest first.
func (s *RecordStore) List(_ context.Context, limit int) ([]product.StoredRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []product.StoredRecord
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// Len reports the number of stored records.
func (s *RecordStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
