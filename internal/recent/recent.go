// Package recent tracks the products a session looked at most recently.
package recent

import (
	"slices"
	"sync"

	"github.com/htkfoods/storefront/internal/models"
)

const DefaultCapacity = 8

type Store struct {
	mu       sync.Mutex
	capacity int
	items    []models.SavedProduct
}

func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity}
}

// Add moves p to the front, dropping an earlier view of the same product
// and anything beyond capacity.
func (s *Store) Add(p models.SavedProduct) []models.SavedProduct {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = slices.DeleteFunc(s.items, func(seen models.SavedProduct) bool { return seen.ID == p.ID })
	s.items = slices.Insert(s.items, 0, p)
	if len(s.items) > s.capacity {
		s.items = s.items[:s.capacity]
	}

	return slices.Clone(s.items)
}

func (s *Store) Items() []models.SavedProduct {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.items)
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
}
