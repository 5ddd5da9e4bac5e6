// Package memory provides the default transient result store: an in-process
// LRU-bounded map from result id to result.
package memory

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/johnmichaelkuczynski/texteval/internal/domain"
)

// DefaultCapacity bounds the store when no capacity is given.
const DefaultCapacity = 512

// Store is a thread-safe LRU-bounded in-memory result store.
type Store struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recently used
	items    map[string]*list.Element
}

type entry struct {
	id  string
	res domain.AnalysisResult
}

// NewStore constructs a Store holding at most capacity results; the oldest
// entry is evicted on overflow.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Put stores r by id. Each id is written once by its owning analyze call.
func (s *Store) Put(_ context.Context, r domain.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.items[r.ID]; ok {
		el.Value = entry{id: r.ID, res: r}
		s.order.MoveToFront(el)
		return nil
	}
	s.items[r.ID] = s.order.PushFront(entry{id: r.ID, res: r})
	if s.order.Len() > s.capacity {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(entry).id)
	}
	return nil
}

// Get returns the result stored under id.
func (s *Store) Get(_ context.Context, id string) (domain.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.items[id]
	if !ok {
		return domain.AnalysisResult{}, fmt.Errorf("%w: result %s", domain.ErrNotFound, id)
	}
	s.order.MoveToFront(el)
	return el.Value.(entry).res, nil
}

// Len reports the number of stored results.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}
