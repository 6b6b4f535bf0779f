package reminders

import (
	"context"
	"sort"
	"sync"
	"time"
)

type InMemoryStore struct {
	mu      sync.Mutex
	pending map[string]Reminder
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{pending: make(map[string]Reminder)}
}

func (s *InMemoryStore) Add(_ context.Context, r Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[r.ID] = r
	return nil
}

func (s *InMemoryStore) List(_ context.Context, userID string) ([]Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Reminder
	for _, r := range s.pending {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sortByDue(out)
	return out, nil
}

func (s *InMemoryStore) TakeDue(_ context.Context, now time.Time) ([]Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Reminder
	for id, r := range s.pending {
		if !r.DueAt.After(now) {
			out = append(out, r)
			delete(s.pending, id)
		}
	}
	sortByDue(out)
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

func sortByDue(rs []Reminder) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].DueAt.Equal(rs[j].DueAt) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].DueAt.Before(rs[j].DueAt)
	})
}
