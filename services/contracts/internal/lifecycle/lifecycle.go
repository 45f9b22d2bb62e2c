// Package lifecycle drives a contract from draft through OTP-gated dual
// signature, the statutory retraction window, and activation.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AlCisse/immo-guinee-sub004/pkg/docsnap"
	"github.com/AlCisse/immo-guinee-sub004/pkg/domain"
	"github.com/AlCisse/immo-guinee-sub004/pkg/invoice"
	"github.com/AlCisse/immo-guinee-sub004/pkg/keylock"
	"github.com/AlCisse/immo-guinee-sub004/pkg/otp"
)

// DefaultRetraction is the legally mandated cooling-off duration after
// the second signature.
const DefaultRetraction = 48 * time.Hour

// Notifier delivers OTP codes and status notices. Delivery failures are
// logged, never fatal to a transition.
type Notifier interface {
	Send(ctx context.Context, subject, message string) error
}

// Renderer produces the immutable document snapshot a signature binds
// to. The default renders the contract terms canonically; production
// wires the PDF renderer.
type Renderer interface {
	Render(ctx context.Context, c Contract) ([]byte, error)
}

type Service struct {
	Store      Store
	OTP        *otp.Issuer
	Locks      *keylock.KeyLock
	Notifier   Notifier
	Renderer   Renderer
	Retraction time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

func NewService(store Store, issuer *otp.Issuer, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		Store:      store,
		OTP:        issuer,
		Locks:      keylock.New(),
		Notifier:   notifier,
		Renderer:   termsRenderer{},
		Retraction: DefaultRetraction,
		Logger:     logger,
		Now:        time.Now,
	}
}

type termsRenderer struct{}

func (termsRenderer) Render(_ context.Context, c Contract) ([]byte, error) {
	hash, err := docsnap.CanonicalSHA256(struct {
		ID             string              `json:"contract_id"`
		Type           domain.ContractType `json:"type"`
		OwnerID        string              `json:"owner_id"`
		CounterpartyID string              `json:"counterparty_id"`
		BaseAmount     int64               `json:"base_amount"`
		AdvanceMonths  int                 `json:"advance_months"`
		DepositMonths  int                 `json:"deposit_months"`
	}{c.ID, c.Type, c.OwnerID, c.CounterpartyID, c.BaseAmount, c.AdvanceMonths, c.DepositMonths})
	if err != nil {
		return nil, err
	}
	return []byte(hash), nil
}

type CreateParams struct {
	Type           domain.ContractType
	OwnerID        string
	CounterpartyID string
	BaseAmount     int64
	BuiltProperty  bool
	AdvanceMonths  int
	DepositMonths  int
	DurationMode   domain.DurationMode
	DurationMonths int
	EndDate        *time.Time
	PayerTier      domain.Tier
}

func (s *Service) Create(ctx context.Context, p CreateParams) (Contract, error) {
	if !p.Type.Valid() {
		return Contract{}, fmt.Errorf("invalid contract type %q", p.Type)
	}
	if p.OwnerID == "" || p.CounterpartyID == "" || p.OwnerID == p.CounterpartyID {
		return Contract{}, fmt.Errorf("a contract needs two distinct parties")
	}
	if p.BaseAmount <= 0 {
		return Contract{}, fmt.Errorf("base amount must be positive")
	}
	if !p.PayerTier.Valid() {
		return Contract{}, fmt.Errorf("invalid tier %d", p.PayerTier)
	}
	now := s.Now().UTC()
	c := Contract{
		ID:             "ctr_" + uuid.NewString(),
		Type:           p.Type,
		OwnerID:        p.OwnerID,
		CounterpartyID: p.CounterpartyID,
		BaseAmount:     p.BaseAmount,
		BuiltProperty:  p.BuiltProperty,
		AdvanceMonths:  p.AdvanceMonths,
		DepositMonths:  p.DepositMonths,
		DurationMode:   p.DurationMode,
		DurationMonths: p.DurationMonths,
		EndDate:        p.EndDate,
		PayerTier:      p.PayerTier,
		Status:         domain.ContractDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.Store.CreateContract(ctx, c); err != nil {
		return Contract{}, err
	}
	s.event(ctx, c.ID, "CONTRACT_CREATED", p.OwnerID, map[string]any{"type": string(p.Type)})
	return c, nil
}

// SendForSignature moves DRAFT to AWAITING_SIGNATURE.
func (s *Service) SendForSignature(ctx context.Context, contractID, actorID string) (Contract, error) {
	var out Contract
	err := s.Locks.Do(contractID, func() error {
		c, err := s.Store.GetContract(ctx, contractID)
		if err != nil {
			return err
		}
		if err := c.Status.CheckTransition(domain.ContractAwaitingSignature); err != nil {
			return err
		}
		c.Status = domain.ContractAwaitingSignature
		c.UpdatedAt = s.Now().UTC()
		if err := s.Store.UpdateContract(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return Contract{}, err
	}
	s.event(ctx, contractID, "SENT_FOR_SIGNATURE", actorID, nil)
	return out, nil
}

func (s *Service) Get(ctx context.Context, contractID string) (Contract, error) {
	return s.Store.GetContract(ctx, contractID)
}

func (s *Service) Invoice(ctx context.Context, contractID string) (invoice.Invoice, error) {
	return s.Store.GetInvoice(ctx, contractID)
}

func (s *Service) Events(ctx context.Context, contractID string) ([]Event, error) {
	return s.Store.ListEvents(ctx, contractID)
}

// Cancel writes CANCELLED during the retraction window. The window-open
// and not-yet-active checks run atomically under the entity lock, so a
// race against the activation sweep resolves to exactly one winner.
func (s *Service) Cancel(ctx context.Context, contractID, partyID, reason string) (Contract, error) {
	if reason == "" {
		return Contract{}, fmt.Errorf("cancellation requires a reason")
	}
	var out Contract
	err := s.Locks.Do(contractID, func() error {
		c, err := s.Store.GetContract(ctx, contractID)
		if err != nil {
			return err
		}
		if !c.Party(partyID) {
			return domain.ErrNotFound
		}
		if err := c.Status.CheckTransition(domain.ContractCancelled); err != nil {
			return err
		}
		if !(Window{Expiry: c.RetractionExpiry}).Open(s.Now().UTC()) {
			return domain.ErrRetractionClosed
		}
		c.Status = domain.ContractCancelled
		c.CancelReason = reason
		c.UpdatedAt = s.Now().UTC()
		if err := s.Store.UpdateContract(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return Contract{}, err
	}
	s.event(ctx, contractID, "CONTRACT_CANCELLED", partyID, map[string]any{"reason": reason})
	s.notify(ctx, contractID, fmt.Sprintf("contract %s cancelled: %s", contractID, reason))
	return out, nil
}

// TerminationCause is external input: natural expiry, mutual agreement,
// or a dispute resolution outcome.
type TerminationCause string

const (
	TerminationNaturalExpiry TerminationCause = "NATURAL_EXPIRY"
	TerminationMutual        TerminationCause = "MUTUAL"
	TerminationDispute       TerminationCause = "DISPUTE_RESOLUTION"
)

func (s *Service) Terminate(ctx context.Context, contractID, actorID string, cause TerminationCause) (Contract, error) {
	var out Contract
	err := s.Locks.Do(contractID, func() error {
		c, err := s.Store.GetContract(ctx, contractID)
		if err != nil {
			return err
		}
		if err := c.Status.CheckTransition(domain.ContractTerminated); err != nil {
			return err
		}
		c.Status = domain.ContractTerminated
		c.UpdatedAt = s.Now().UTC()
		if err := s.Store.UpdateContract(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return Contract{}, err
	}
	s.event(ctx, contractID, "CONTRACT_TERMINATED", actorID, map[string]any{"cause": string(cause)})
	return out, nil
}

// ActivateExpired flips SIGNED contracts whose retraction window has
// closed to ACTIVE. Idempotent: rows already moved on by a cancellation
// or a previous run are skipped.
func (s *Service) ActivateExpired(ctx context.Context) (int, error) {
	now := s.Now().UTC()
	ids, err := s.Store.ListRetractionExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	activated := 0
	for _, id := range ids {
		err := s.Locks.Do(id, func() error {
			c, err := s.Store.GetContract(ctx, id)
			if err != nil {
				return err
			}
			if c.Status != domain.ContractSigned {
				return nil
			}
			if (Window{Expiry: c.RetractionExpiry}).Open(now) {
				return nil
			}
			c.Status = domain.ContractActive
			c.UpdatedAt = s.Now().UTC()
			if err := s.Store.UpdateContract(ctx, c); err != nil {
				return err
			}
			s.event(ctx, id, "CONTRACT_ACTIVATED", "SYSTEM", nil)
			activated++
			return nil
		})
		if err != nil {
			s.Logger.Error("activate sweep failed", "contract_id", id, "err", err)
		}
	}
	return activated, nil
}

func (s *Service) event(ctx context.Context, contractID, typ, actorID string, payload map[string]any) {
	ev := Event{ContractID: contractID, Type: typ, ActorID: actorID, Payload: payload, At: s.Now().UTC()}
	if err := s.Store.AddEvent(ctx, ev); err != nil {
		s.Logger.Error("record event", "contract_id", contractID, "type", typ, "err", err)
	}
}

func (s *Service) notify(ctx context.Context, subject, message string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Send(ctx, subject, message); err != nil {
		s.Logger.Warn("notification failed", "subject", subject, "err", err)
	}
}
