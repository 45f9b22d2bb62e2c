package otp

import (
	"context"
	"sync"
)

// MemoryStore keeps challenges in process. Used by tests and by
// deployments that accept losing in-flight codes on restart.
type MemoryStore struct {
	mu         sync.Mutex
	challenges map[string]*Challenge
	byKey      map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		challenges: make(map[string]*Challenge),
		byKey:      make(map[string][]string),
	}
}

func key(subjectID, purpose string) string { return subjectID + "\x00" + purpose }

func (s *MemoryStore) LiveChallenge(ctx context.Context, subjectID, purpose string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.byKey[key(subjectID, purpose)]
	for i := len(ids) - 1; i >= 0; i-- {
		c := s.challenges[ids[i]]
		if c != nil && c.ConsumedAt == nil && c.InvalidatedAt == nil {
			// Expired challenges still surface so Verify can report
			// expiry; expiry is evaluated lazily by the caller.
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) SaveChallenge(ctx context.Context, c *Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.challenges[c.ID] = &cp
	k := key(c.SubjectID, c.Purpose)
	s.byKey[k] = append(s.byKey[k], c.ID)
	return nil
}

func (s *MemoryStore) UpdateChallenge(ctx context.Context, c *Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.challenges[c.ID] = &cp
	return nil
}
