// Package engine orchestrates payment collection, the escrow hold, and
// release or refund under time-bounded rules.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AlCisse/immo-guinee-sub004/pkg/domain"
	"github.com/AlCisse/immo-guinee-sub004/pkg/keylock"
	"github.com/AlCisse/immo-guinee-sub004/services/escrow/internal/momo"
)

const (
	// DefaultHold is how long escrowed funds wait for owner validation
	// before automatic release.
	DefaultHold = 48 * time.Hour

	// DefaultProcessingTTL bounds how long a collection may sit
	// unconfirmed before the engine fails it.
	DefaultProcessingTTL = 30 * time.Minute
)

// ErrDisclosureRequired rejects a cash payment submitted without the
// payer's acceptance of the non-refundable-commission notice.
var ErrDisclosureRequired = errors.New("commission disclosure not accepted")

type Notifier interface {
	Send(ctx context.Context, subject, message string) error
}

// InvoiceSource resolves the authoritative payment components for a
// contract. The payer never supplies amounts: a submission that could
// name its own commission would sidestep the non-refundable fee.
type InvoiceSource interface {
	InvoiceAmounts(ctx context.Context, contractID string) (domain.Amounts, error)
}

type Engine struct {
	Store         Store
	Rails         momo.Rails
	Prefixes      *momo.PrefixRegistry
	Invoices      InvoiceSource
	Locks         *keylock.KeyLock
	Notifier      Notifier
	Hold          time.Duration
	ProcessingTTL time.Duration
	Logger        *slog.Logger
	Now           func() time.Time
}

func New(store Store, rails momo.Rails, prefixes *momo.PrefixRegistry, invoices InvoiceSource, notifier Notifier, logger *slog.Logger) *Engine {
	return &Engine{
		Store:         store,
		Rails:         rails,
		Prefixes:      prefixes,
		Invoices:      invoices,
		Locks:         keylock.New(),
		Notifier:      notifier,
		Hold:          DefaultHold,
		ProcessingTTL: DefaultProcessingTTL,
		Logger:        logger,
		Now:           time.Now,
	}
}

type SubmitParams struct {
	ContractID         string
	Method             domain.PaymentMethod
	Phone              string
	Beneficiary        string
	DisclosureAccepted bool
	ActorID            string
	IdempotencyKey     string
}

// Submit starts a payment. Mobile-money submissions validate the phone
// prefix before any external call, then initiate the collection; the
// outcome (escrow or failure) arrives by provider callback or the poll
// sweep. Cash confirms directly once the disclosure is accepted.
func (e *Engine) Submit(ctx context.Context, p SubmitParams) (Payment, error) {
	if p.IdempotencyKey != "" {
		id, found, err := e.Store.GetIdempotencyRecord(ctx, p.ActorID, p.IdempotencyKey)
		if err != nil {
			return Payment{}, err
		}
		if found {
			return e.Store.GetPayment(ctx, id)
		}
	}

	if !p.Method.Valid() {
		return Payment{}, fmt.Errorf("invalid payment method %q", p.Method)
	}
	if p.ContractID == "" || p.Beneficiary == "" {
		return Payment{}, fmt.Errorf("contract and beneficiary are required")
	}

	// Fail fast, before any row or external call.
	if p.Method.MobileMoney() {
		if err := e.Prefixes.Validate(p.Method, p.Phone); err != nil {
			return Payment{}, err
		}
	}
	if p.Method == domain.Cash && !p.DisclosureAccepted {
		return Payment{}, ErrDisclosureRequired
	}

	amounts, err := e.Invoices.InvoiceAmounts(ctx, p.ContractID)
	if err != nil {
		return Payment{}, fmt.Errorf("resolve invoice for %s: %w", p.ContractID, err)
	}

	now := e.Now().UTC()
	pay := Payment{
		ID:                 "pay_" + uuid.NewString(),
		ContractID:         p.ContractID,
		Method:             p.Method,
		Phone:              momo.NormalizePhone(p.Phone),
		Amounts:            amounts,
		Status:             domain.PaymentPending,
		Beneficiary:        p.Beneficiary,
		DisclosureAccepted: p.DisclosureAccepted,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := pay.Amounts.Check(); err != nil {
		return Payment{}, err
	}
	if err := e.Store.CreatePayment(ctx, pay); err != nil {
		return Payment{}, err
	}
	e.event(ctx, pay.ID, "PAYMENT_SUBMITTED", p.ActorID, map[string]any{"method": string(p.Method), "total": pay.Amounts.Total})

	if p.Method == domain.Cash {
		pay, err = e.confirmCash(ctx, pay.ID, p.ActorID)
	} else {
		pay, err = e.initiateCollection(ctx, pay.ID, p.ActorID)
	}
	if err != nil {
		return pay, err
	}

	if p.IdempotencyKey != "" {
		if err := e.Store.SaveIdempotencyRecord(ctx, p.ActorID, p.IdempotencyKey, pay.ID); err != nil {
			e.Logger.Error("save idempotency record", "payment_id", pay.ID, "err", err)
		}
	}
	return pay, nil
}

// confirmCash moves a cash payment straight to CONFIRMED: there is no
// third-party rail to escrow through.
func (e *Engine) confirmCash(ctx context.Context, paymentID, actorID string) (Payment, error) {
	var out Payment
	err := e.Locks.Do(paymentID, func() error {
		pay, err := e.Store.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		for _, next := range []domain.PaymentStatus{domain.PaymentProcessing, domain.PaymentConfirmed} {
			if err := pay.Status.CheckTransition(next); err != nil {
				return err
			}
			pay.Status = next
		}
		pay.UpdatedAt = e.Now().UTC()
		if err := e.Store.UpdatePayment(ctx, pay); err != nil {
			return err
		}
		out = pay
		return nil
	})
	if err != nil {
		return Payment{}, err
	}
	e.event(ctx, paymentID, "CASH_RECORDED", actorID, nil)
	return out, nil
}

// initiateCollection transitions to PROCESSING, then calls the rail
// with the entity lock released so a hung provider never pins the row.
func (e *Engine) initiateCollection(ctx context.Context, paymentID, actorID string) (Payment, error) {
	var pay Payment
	err := e.Locks.Do(paymentID, func() error {
		p, err := e.Store.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if err := p.Status.CheckTransition(domain.PaymentProcessing); err != nil {
			return err
		}
		p.Status = domain.PaymentProcessing
		deadline := e.Now().UTC().Add(e.ProcessingTTL)
		p.ProcessingDeadline = &deadline
		p.UpdatedAt = e.Now().UTC()
		if err := e.Store.UpdatePayment(ctx, p); err != nil {
			return err
		}
		pay = p
		return nil
	})
	if err != nil {
		return Payment{}, err
	}

	rail, ok := e.Rails[pay.Method]
	if !ok {
		return e.failPayment(ctx, paymentID, "no rail configured", domain.ErrProviderRejected)
	}
	ref, callErr := rail.Initiate(ctx, pay.Phone, pay.Amounts.Total)
	if callErr != nil {
		reason := "provider rejected"
		if errors.Is(callErr, domain.ErrProviderTimeout) {
			reason = "provider timeout"
		}
		return e.failPayment(ctx, paymentID, reason, callErr)
	}

	err = e.Locks.Do(paymentID, func() error {
		p, err := e.Store.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.Status != domain.PaymentProcessing {
			// The callback beat us; keep whatever it wrote.
			pay = p
			return nil
		}
		p.ProviderRef = ref
		p.UpdatedAt = e.Now().UTC()
		if err := e.Store.UpdatePayment(ctx, p); err != nil {
			return err
		}
		pay = p
		return nil
	})
	if err != nil {
		return Payment{}, err
	}
	e.event(ctx, paymentID, "COLLECTION_INITIATED", actorID, map[string]any{"provider_ref": ref})
	return pay, nil
}

// failPayment marks PROCESSING -> FAILED and surfaces cause. A new
// submission is the only retry path; the engine never retries a rail.
func (e *Engine) failPayment(ctx context.Context, paymentID, reason string, cause error) (Payment, error) {
	var out Payment
	err := e.Locks.Do(paymentID, func() error {
		p, err := e.Store.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.Status != domain.PaymentProcessing {
			out = p
			return nil
		}
		p.Status = domain.PaymentFailed
		p.FailReason = reason
		p.UpdatedAt = e.Now().UTC()
		if err := e.Store.UpdatePayment(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return Payment{}, err
	}
	e.event(ctx, paymentID, "PAYMENT_FAILED", "SYSTEM", map[string]any{"reason": reason})
	return out, cause
}

// ApplyProviderStatus applies a provider outcome (from a verified
// callback or the poll sweep) to a PROCESSING payment. Idempotent:
// rows already moved on are left untouched.
func (e *Engine) ApplyProviderStatus(ctx context.Context, providerRef string, status momo.TxStatus) (Payment, error) {
	pay, err := e.Store.GetPaymentByProviderRef(ctx, providerRef)
	if err != nil {
		return Payment{}, err
	}
	var escrowed bool
	var out Payment
	err = e.Locks.Do(pay.ID, func() error {
		p, err := e.Store.GetPayment(ctx, pay.ID)
		if err != nil {
			return err
		}
		out = p
		if p.Status != domain.PaymentProcessing || status == momo.TxPending {
			return nil
		}
		now := e.Now().UTC()
		switch status {
		case momo.TxConfirmed:
			p.Status = domain.PaymentEscrow
			expiry := now.Add(e.Hold)
			p.EscrowExpiry = &expiry
			escrowed = true
		case momo.TxFailed:
			p.Status = domain.PaymentFailed
			p.FailReason = "provider reported failure"
		}
		p.UpdatedAt = now
		if err := e.Store.UpdatePayment(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return Payment{}, err
	}
	if escrowed {
		e.event(ctx, out.ID, "FUNDS_ESCROWED", "SYSTEM", map[string]any{"escrow_expiry": out.EscrowExpiry})
		e.notify(ctx, out.Beneficiary, fmt.Sprintf("payment %s received in escrow", out.ID))
	} else if out.Status == domain.PaymentFailed {
		e.event(ctx, out.ID, "PAYMENT_FAILED", "SYSTEM", map[string]any{"reason": out.FailReason})
	}
	return out, nil
}

func (e *Engine) Get(ctx context.Context, paymentID string) (Payment, error) {
	return e.Store.GetPayment(ctx, paymentID)
}

func (e *Engine) Events(ctx context.Context, paymentID string) ([]Event, error) {
	return e.Store.ListEvents(ctx, paymentID)
}

func (e *Engine) event(ctx context.Context, paymentID, typ, actorID string, payload map[string]any) {
	ev := Event{PaymentID: paymentID, Type: typ, ActorID: actorID, Payload: payload, At: e.Now().UTC()}
	if err := e.Store.AddEvent(ctx, ev); err != nil {
		e.Logger.Error("record event", "payment_id", paymentID, "type", typ, "err", err)
	}
}

func (e *Engine) notify(ctx context.Context, subject, message string) {
	if e.Notifier == nil {
		return
	}
	if err := e.Notifier.Send(ctx, subject, message); err != nil {
		e.Logger.Warn("notification failed", "subject", subject, "err", err)
	}
}
