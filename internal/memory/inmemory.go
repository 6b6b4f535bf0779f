package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process memory store for local/dev use.
type InMemoryStore struct {
	mu       sync.RWMutex
	records  map[string][]TurnRecord
	facts    map[string][]Fact
	diary    map[string][]DiaryEntry
	profiles map[string]Profile
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records:  make(map[string][]TurnRecord),
		facts:    make(map[string][]Fact),
		diary:    make(map[string][]DiaryEntry),
		profiles: make(map[string]Profile),
	}
}

func (s *InMemoryStore) SaveTurn(_ context.Context, record TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.records[record.UserID] = append(s.records[record.UserID], record)
	return nil
}

func (s *InMemoryStore) RecentContext(_ context.Context, userID string, limit int) ([]TurnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.records[userID], limit), nil
}

func (s *InMemoryStore) SaveFact(_ context.Context, fact Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fact.ID == "" {
		fact.ID = uuid.NewString()
	}
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = time.Now().UTC()
	}
	for _, existing := range s.facts[fact.UserID] {
		if existing.Content == fact.Content {
			return nil
		}
	}
	s.facts[fact.UserID] = append(s.facts[fact.UserID], fact)
	return nil
}

func (s *InMemoryStore) Facts(_ context.Context, userID string, limit int) ([]Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.facts[userID], limit), nil
}

func (s *InMemoryStore) SaveDiary(_ context.Context, entry DiaryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.diary[entry.UserID] = append(s.diary[entry.UserID], entry)
	return nil
}

func (s *InMemoryStore) DiaryEntries(_ context.Context, userID string, limit int) ([]DiaryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.diary[userID], limit), nil
}

func (s *InMemoryStore) Profile(_ context.Context, userID string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (s *InMemoryStore) SaveProfile(_ context.Context, profile Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = time.Now().UTC()
	}
	s.profiles[profile.UserID] = profile
	return nil
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }

func (s *InMemoryStore) Close() error { return nil }
