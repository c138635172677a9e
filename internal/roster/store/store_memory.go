package store

import (
	"bytes"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"checkin/internal/roster/models"
	"checkin/pkg/platform/sentinel"
)

// InMemory is a process-local candidate store. Updates are linearized per store
// with a version compare under the write lock, matching the Postgres CAS.
type InMemory struct {
	mu         sync.RWMutex
	candidates map[uuid.UUID]*models.Candidate
}

func NewInMemory() *InMemory {
	return &InMemory{candidates: make(map[uuid.UUID]*models.Candidate)}
}

// Insert adds a raw roster row. IDs are time-ordered so id order is import order.
func (s *InMemory) Insert(_ context.Context, fields models.Record) (*models.Candidate, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	c := &models.Candidate{
		ID:        id,
		Fields:    fields.Clone(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates[id] = c
	return c.Clone(), nil
}

func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candidates[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

// FindByAliasValue returns candidates holding value under any of keys, in id order.
func (s *InMemory) FindByAliasValue(_ context.Context, keys []string, value string) ([]*models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Candidate
	for _, c := range s.candidates {
		for _, k := range keys {
			if c.Fields.Get(k) == value {
				out = append(out, c.Clone())
				break
			}
		}
	}
	sortByID(out)
	return out, nil
}

// UpdateIfVersion persists c when the stored version still equals c.Version.
// On success c.Version is advanced to the new stored version.
func (s *InMemory) UpdateIfVersion(_ context.Context, c *models.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.candidates[c.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != c.Version {
		return sentinel.ErrConflict
	}
	next := c.Clone()
	next.Version = c.Version + 1
	next.UpdatedAt = time.Now()
	s.candidates[c.ID] = next
	c.Version = next.Version
	c.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *InMemory) ListAll(_ context.Context) ([]*models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Candidate, 0, len(s.candidates))
	for _, c := range s.candidates {
		out = append(out, c.Clone())
	}
	sortByID(out)
	return out, nil
}

// Count returns the number of stored candidates.
func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.candidates), nil
}

func sortByID(cs []*models.Candidate) {
	slices.SortFunc(cs, func(a, b *models.Candidate) int {
		return bytes.Compare(a.ID[:], b.ID[:])
	})
}
