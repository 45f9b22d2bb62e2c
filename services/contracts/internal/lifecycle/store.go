package lifecycle

import (
	"context"
	"time"

	"github.com/AlCisse/immo-guinee-sub004/pkg/domain"
	"github.com/AlCisse/immo-guinee-sub004/pkg/invoice"
)

// Contract is the aggregate this service owns. It holds its signature
// records and is the sole authority for its status.
type Contract struct {
	ID             string              `json:"contract_id"`
	Type           domain.ContractType `json:"type"`
	OwnerID        string              `json:"owner_id"`
	CounterpartyID string              `json:"counterparty_id"`

	// BaseAmount is the monthly rent for leases and mandates, the sale
	// price for sale promises, in GNF.
	BaseAmount    int64 `json:"base_amount"`
	BuiltProperty bool  `json:"built_property,omitempty"`
	AdvanceMonths int   `json:"advance_months"`
	DepositMonths int   `json:"deposit_months"`

	DurationMode   domain.DurationMode `json:"duration_mode"`
	DurationMonths int                 `json:"duration_months,omitempty"`
	EndDate        *time.Time          `json:"end_date,omitempty"`

	PayerTier domain.Tier           `json:"payer_tier"`
	Status    domain.ContractStatus `json:"status"`

	Signatures       []domain.SignatureRecord `json:"signatures"`
	RetractionExpiry *time.Time               `json:"retraction_expiry,omitempty"`
	CancelReason     string                   `json:"cancel_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Party reports whether id is one of the two signing parties.
func (c Contract) Party(id string) bool {
	return id != "" && (id == c.OwnerID || id == c.CounterpartyID)
}

func (c Contract) SignedBy(partyID string) bool {
	for _, s := range c.Signatures {
		if s.PartyID == partyID {
			return true
		}
	}
	return false
}

type Event struct {
	ContractID string         `json:"contract_id"`
	Type       string         `json:"type"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	At         time.Time      `json:"at"`
}

type Store interface {
	CreateContract(ctx context.Context, c Contract) error
	GetContract(ctx context.Context, id string) (Contract, error)
	UpdateContract(ctx context.Context, c Contract) error

	// AddSignature appends the record and persists the contract fields
	// touched by the signing step in the same transaction.
	AddSignature(ctx context.Context, c Contract, rec domain.SignatureRecord) error

	// ListRetractionExpired returns ids of SIGNED contracts whose
	// retraction expiry is at or before now.
	ListRetractionExpired(ctx context.Context, now time.Time) ([]string, error)

	SaveInvoice(ctx context.Context, inv invoice.Invoice) error
	GetInvoice(ctx context.Context, contractID string) (invoice.Invoice, error)

	AddEvent(ctx context.Context, ev Event) error
	ListEvents(ctx context.Context, contractID string) ([]Event, error)
}
