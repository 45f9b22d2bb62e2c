package engine

import (
	"context"
	"time"

	"github.com/AlCisse/immo-guinee-sub004/pkg/domain"
)

// Payment is owned by this engine. It references a contract but the
// contract service never writes payment rows.
type Payment struct {
	ID         string               `json:"payment_id"`
	ContractID string               `json:"contract_id"`
	Method     domain.PaymentMethod `json:"method"`
	Phone      string               `json:"phone,omitempty"`

	Amounts     domain.Amounts       `json:"amounts"`
	Status      domain.PaymentStatus `json:"status"`
	Beneficiary string               `json:"beneficiary"`

	// DisclosureAccepted records the cash payer's acceptance of the
	// non-refundable-commission notice.
	DisclosureAccepted bool `json:"disclosure_accepted,omitempty"`

	ProviderRef        string     `json:"provider_ref,omitempty"`
	ProcessingDeadline *time.Time `json:"processing_deadline,omitempty"`
	EscrowExpiry       *time.Time `json:"escrow_expiry,omitempty"`
	EscrowValidatedAt  *time.Time `json:"escrow_validated_at,omitempty"`
	FailReason         string     `json:"fail_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Event struct {
	PaymentID string         `json:"payment_id"`
	Type      string         `json:"type"`
	ActorID   string         `json:"actor_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	At        time.Time      `json:"at"`
}

type Store interface {
	CreatePayment(ctx context.Context, p Payment) error
	GetPayment(ctx context.Context, id string) (Payment, error)
	GetPaymentByProviderRef(ctx context.Context, ref string) (Payment, error)
	UpdatePayment(ctx context.Context, p Payment) error

	// ListAutoReleaseDue returns ESCROW payment ids whose hold expiry
	// is at or before now. Disputed rows never appear.
	ListAutoReleaseDue(ctx context.Context, now time.Time) ([]string, error)

	// ListProcessing returns PROCESSING payment ids for the poll sweep.
	ListProcessing(ctx context.Context) ([]string, error)

	AddEvent(ctx context.Context, ev Event) error
	ListEvents(ctx context.Context, paymentID string) ([]Event, error)

	// Idempotent submission replay, keyed by actor and idempotency key.
	GetIdempotencyRecord(ctx context.Context, actorID, key string) (string, bool, error)
	SaveIdempotencyRecord(ctx context.Context, actorID, key, paymentID string) error
}
