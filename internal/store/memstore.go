package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/askelund/forma/model"

	"github.com/askelund/forma/internal/wire"
)

// MemoryLayoutStore is an in-memory LayoutStore for tests and single-node use.
type MemoryLayoutStore struct {
	mu      sync.RWMutex
	records map[string]LayoutRecord // key: LayoutRef.Key()
	renames map[string][]IDChange
}

// NewMemoryLayoutStore creates a new in-memory layout store.
func NewMemoryLayoutStore() *MemoryLayoutStore {
	return &MemoryLayoutStore{
		records: make(map[string]LayoutRecord),
		renames: make(map[string][]IDChange),
	}
}

// Save creates or updates a layout page with optimistic locking.
func (s *MemoryLayoutStore) Save(_ context.Context, ref LayoutRef, req SaveRequest) (LayoutRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	existing, exists := s.records[ref.Key()]

	if req.Version == 0 {
		if exists {
			return LayoutRecord{}, model.NewConflictError(
				fmt.Sprintf("layout %q already exists", ref.Key()),
			)
		}
		existing = LayoutRecord{Ref: ref, CreatedAt: now}
	} else {
		if !exists {
			return LayoutRecord{}, model.NewLayoutNotFoundError(ref.Key())
		}
		if existing.Version != req.Version {
			return LayoutRecord{}, model.NewConflictError(
				fmt.Sprintf("layout %q version conflict (expected %d, got %d)", ref.Key(), req.Version, existing.Version),
			)
		}
	}

	payload, err := copyLayout(req.Layout)
	if err != nil {
		return LayoutRecord{}, err
	}
	existing.Layout = payload
	existing.Version++
	existing.SavedBy = req.SavedBy
	existing.UpdatedAt = now
	s.records[ref.Key()] = existing

	if len(req.ComponentIDsChange) > 0 {
		s.renames[ref.Key()] = append(s.renames[ref.Key()], req.ComponentIDsChange...)
	}
	return existing, nil
}

// Get retrieves a layout page.
func (s *MemoryLayoutStore) Get(_ context.Context, ref LayoutRef) (LayoutRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[ref.Key()]
	if !exists {
		return LayoutRecord{}, model.NewLayoutNotFoundError(ref.Key())
	}
	payload, err := copyLayout(rec.Layout)
	if err != nil {
		return LayoutRecord{}, err
	}
	rec.Layout = payload
	return rec, nil
}

// List returns every stored page of a layout set, ordered by page name.
func (s *MemoryLayoutStore) List(_ context.Context, org, app, layoutSet string) ([]LayoutRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []LayoutRecord
	for _, rec := range s.records {
		if rec.Ref.Org != org || rec.Ref.App != app || rec.Ref.LayoutSet != layoutSet {
			continue
		}
		payload, err := copyLayout(rec.Layout)
		if err != nil {
			return nil, err
		}
		rec.Layout = payload
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.Page < out[j].Ref.Page })
	return out, nil
}

// Delete removes a layout page and its rename trail.
func (s *MemoryLayoutStore) Delete(_ context.Context, ref LayoutRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[ref.Key()]; !exists {
		return model.NewLayoutNotFoundError(ref.Key())
	}
	delete(s.records, ref.Key())
	delete(s.renames, ref.Key())
	return nil
}

// Renames returns the page's rename audit trail, oldest first.
func (s *MemoryLayoutStore) Renames(_ context.Context, ref LayoutRef) ([]IDChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.records[ref.Key()]; !exists {
		return nil, model.NewLayoutNotFoundError(ref.Key())
	}
	return append([]IDChange(nil), s.renames[ref.Key()]...), nil
}

// Len returns the number of stored pages. For testing.
func (s *MemoryLayoutStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// copyLayout detaches a stored payload from the caller's value by a JSON
// round trip, so neither side can mutate the other through shared maps.
func copyLayout(in *wire.ExternalLayout) (*wire.ExternalLayout, error) {
	if in == nil {
		return nil, nil
	}
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("copy layout: %w", err)
	}
	var out wire.ExternalLayout
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("copy layout: %w", err)
	}
	return &out, nil
}
