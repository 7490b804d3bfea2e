// Package deadletter keeps records the pipeline could not forward so an
// operator can inspect or replay them.
package deadletter

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Entry is one dropped record keyed by its stream id.
type Entry struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Reason  string `json:"reason"`
	Topic   string `json:"topic,omitempty"`
	Key     []byte `json:"key,omitempty"`
	Payload []byte `json:"payload"`
	At      int64  `json:"at"`
}

func (e Entry) Time() time.Time { return time.Unix(e.At, 0).UTC() }

// Store abstracts the dead-letter backend.
type Store interface {
	Put(id string, e Entry) error
	Get(id string) (Entry, bool)
	Delete(id string) error
	Range(fn func(id string, e Entry) error) error
	Close() error
}

// InMemoryStore is a thread-safe map store used by tests and smoke runs.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string]Entry)}
}

func (s *InMemoryStore) Put(id string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = e
	return nil
}

func (s *InMemoryStore) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[id]
	return e, ok
}

func (s *InMemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// Range visits entries in id order, matching the Pebble iterator.
func (s *InMemoryStore) Range(fn func(id string, e Entry) error) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	for _, id := range ids {
		e, ok := s.Get(id)
		if !ok {
			continue
		}
		if err := fn(id, e); err != nil {
			return fmt.Errorf("range callback failed: %w", err)
		}
	}
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
