package engine

import (
	"context"
	"fmt"

	"github.com/AlCisse/immo-guinee-sub004/pkg/domain"
	"github.com/AlCisse/immo-guinee-sub004/services/escrow/internal/momo"
)

// Validate releases escrowed funds on explicit owner validation. If the
// auto-release already fired, the call is a benign no-op: both paths
// converge on CONFIRMED and only the first writer applies.
func (e *Engine) Validate(ctx context.Context, paymentID, actorID string) (Payment, error) {
	return e.release(ctx, paymentID, actorID, "OWNER_VALIDATED")
}

// AutoReleaseDue releases every escrow hold whose window elapsed with
// no validation. Idempotent; disputed payments are frozen and never
// listed.
func (e *Engine) AutoReleaseDue(ctx context.Context) (int, error) {
	ids, err := e.Store.ListAutoReleaseDue(ctx, e.Now().UTC())
	if err != nil {
		return 0, err
	}
	released := 0
	for _, id := range ids {
		p, err := e.release(ctx, id, "SYSTEM", "AUTO_RELEASED")
		if err != nil {
			e.Logger.Error("auto release", "payment_id", id, "err", err)
			continue
		}
		if p.Status == domain.PaymentConfirmed && p.EscrowValidatedAt == nil {
			released++
		}
	}
	return released, nil
}

func (e *Engine) release(ctx context.Context, paymentID, actorID, eventType string) (Payment, error) {
	var out Payment
	var applied bool
	err := e.Locks.Do(paymentID, func() error {
		p, err := e.Store.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		out = p
		if p.Status == domain.PaymentConfirmed {
			// The other release path won the race; nothing to do.
			return nil
		}
		if err := p.Status.CheckTransition(domain.PaymentConfirmed); err != nil {
			return err
		}
		now := e.Now().UTC()
		p.Status = domain.PaymentConfirmed
		if eventType == "OWNER_VALIDATED" {
			p.EscrowValidatedAt = &now
		}
		p.UpdatedAt = now
		if err := p.Amounts.Check(); err != nil {
			e.Logger.Error("money-safety check failed on release", "payment_id", paymentID, "err", err)
			return err
		}
		if err := e.Store.UpdatePayment(ctx, p); err != nil {
			return err
		}
		out = p
		applied = true
		return nil
	})
	if err != nil {
		return Payment{}, err
	}
	if applied {
		e.event(ctx, paymentID, eventType, actorID, nil)
		e.notify(ctx, out.Beneficiary, fmt.Sprintf("escrow released for payment %s", paymentID))
	}
	return out, nil
}

// Dispute freezes the escrow hold. Raising disputes is external; the
// engine only accepts the transition and stops auto-release.
func (e *Engine) Dispute(ctx context.Context, paymentID, actorID string) (Payment, error) {
	var out Payment
	err := e.Locks.Do(paymentID, func() error {
		p, err := e.Store.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if err := p.Status.CheckTransition(domain.PaymentDisputed); err != nil {
			return err
		}
		p.Status = domain.PaymentDisputed
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
	e.event(ctx, paymentID, "DISPUTE_RAISED", actorID, nil)
	return out, nil
}

// Refund zeroes the refundable components. The commission component is
// realized revenue and is never zeroed; violating that is a loud
// invariant failure, not a correctable condition.
func (e *Engine) Refund(ctx context.Context, paymentID, actorID, reason string) (Payment, error) {
	var out Payment
	err := e.Locks.Do(paymentID, func() error {
		p, err := e.Store.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if err := p.Status.CheckTransition(domain.PaymentRefunded); err != nil {
			return err
		}
		refunded := p.Amounts.Refund()
		if refunded.Commission != p.Amounts.Commission {
			err := &domain.InvariantViolationError{Reason: "refund altered the commission component"}
			e.Logger.Error("money-safety violation", "payment_id", paymentID, "err", err)
			return err
		}
		p.Amounts = refunded
		p.Status = domain.PaymentRefunded
		p.FailReason = reason
		p.UpdatedAt = e.Now().UTC()
		if err := p.Amounts.Check(); err != nil {
			e.Logger.Error("money-safety check failed on refund", "payment_id", paymentID, "err", err)
			return err
		}
		if err := e.Store.UpdatePayment(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return Payment{}, err
	}
	e.event(ctx, paymentID, "PAYMENT_REFUNDED", actorID, map[string]any{"reason": reason})
	return out, nil
}

// PollProcessing resolves PROCESSING payments: asks the rail for the
// outcome and fails rows whose processing deadline elapsed without one.
func (e *Engine) PollProcessing(ctx context.Context) error {
	ids, err := e.Store.ListProcessing(ctx)
	if err != nil {
		return err
	}
	now := e.Now().UTC()
	for _, id := range ids {
		p, err := e.Store.GetPayment(ctx, id)
		if err != nil {
			e.Logger.Error("poll processing", "payment_id", id, "err", err)
			continue
		}
		if p.ProviderRef != "" {
			rail, ok := e.Rails[p.Method]
			if ok {
				status, err := rail.Status(ctx, p.ProviderRef)
				if err == nil && status != momo.TxPending {
					if _, err := e.ApplyProviderStatus(ctx, p.ProviderRef, status); err != nil {
						e.Logger.Error("apply provider status", "payment_id", id, "err", err)
					}
					continue
				}
				if err != nil {
					e.Logger.Warn("provider status poll failed", "payment_id", id, "err", err)
				}
			}
		}
		if p.ProcessingDeadline != nil && !now.Before(*p.ProcessingDeadline) {
			if _, err := e.failPayment(ctx, id, "processing deadline elapsed", nil); err != nil {
				e.Logger.Error("expire processing", "payment_id", id, "err", err)
			}
		}
	}
	return nil
}
