package engine

import (
	"context"
	"sync"
	"time"

	"github.com/AlCisse/immo-guinee-sub004/pkg/domain"
)

// MemoryStore backs tests and local development.
type MemoryStore struct {
	mu       sync.Mutex
	payments map[string]Payment
	byRef    map[string]string
	events   map[string][]Event
	idem     map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments: make(map[string]Payment),
		byRef:    make(map[string]string),
		events:   make(map[string][]Event),
		idem:     make(map[string]string),
	}
}

func (s *MemoryStore) CreatePayment(ctx context.Context, p Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.ID] = p
	if p.ProviderRef != "" {
		s.byRef[p.ProviderRef] = p.ID
	}
	return nil
}

func (s *MemoryStore) GetPayment(ctx context.Context, id string) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return Payment{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) GetPaymentByProviderRef(ctx context.Context, ref string) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byRef[ref]
	if !ok {
		return Payment{}, domain.ErrNotFound
	}
	return s.payments[id], nil
}

func (s *MemoryStore) UpdatePayment(ctx context.Context, p Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.ID]; !ok {
		return domain.ErrNotFound
	}
	s.payments[p.ID] = p
	if p.ProviderRef != "" {
		s.byRef[p.ProviderRef] = p.ID
	}
	return nil
}

func (s *MemoryStore) ListAutoReleaseDue(ctx context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, p := range s.payments {
		if p.Status == domain.PaymentEscrow && p.EscrowExpiry != nil && !now.Before(*p.EscrowExpiry) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *MemoryStore) ListProcessing(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, p := range s.payments {
		if p.Status == domain.PaymentProcessing {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *MemoryStore) AddEvent(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.PaymentID] = append(s.events[ev.PaymentID], ev)
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, paymentID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events[paymentID]))
	copy(out, s.events[paymentID])
	return out, nil
}

func (s *MemoryStore) GetIdempotencyRecord(ctx context.Context, actorID, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.idem[actorID+"\x00"+key]
	return id, ok, nil
}

func (s *MemoryStore) SaveIdempotencyRecord(ctx context.Context, actorID, key, paymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idem[actorID+"\x00"+key] = paymentID
	return nil
}
