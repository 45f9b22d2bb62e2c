package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/AlCisse/immo-guinee-sub004/pkg/domain"
	"github.com/AlCisse/immo-guinee-sub004/pkg/invoice"
)

// MemoryStore backs tests and local development.
type MemoryStore struct {
	mu        sync.Mutex
	contracts map[string]Contract
	invoices  map[string]invoice.Invoice
	events    map[string][]Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contracts: make(map[string]Contract),
		invoices:  make(map[string]invoice.Invoice),
		events:    make(map[string][]Event),
	}
}

func (s *MemoryStore) CreateContract(ctx context.Context, c Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts[c.ID] = c
	return nil
}

func (s *MemoryStore) GetContract(ctx context.Context, id string) (Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return Contract{}, domain.ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) UpdateContract(ctx context.Context, c Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contracts[c.ID]; !ok {
		return domain.ErrNotFound
	}
	s.contracts[c.ID] = c
	return nil
}

func (s *MemoryStore) AddSignature(ctx context.Context, c Contract, _ domain.SignatureRecord) error {
	return s.UpdateContract(ctx, c)
}

func (s *MemoryStore) ListRetractionExpired(ctx context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, c := range s.contracts {
		if c.Status == domain.ContractSigned && c.RetractionExpiry != nil && !now.Before(*c.RetractionExpiry) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *MemoryStore) SaveInvoice(ctx context.Context, inv invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices[inv.ContractID] = inv
	return nil
}

func (s *MemoryStore) GetInvoice(ctx context.Context, contractID string) (invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[contractID]
	if !ok {
		return invoice.Invoice{}, domain.ErrNotFound
	}
	return inv, nil
}

func (s *MemoryStore) AddEvent(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ContractID] = append(s.events[ev.ContractID], ev)
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, contractID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events[contractID]))
	copy(out, s.events[contractID])
	return out, nil
}
