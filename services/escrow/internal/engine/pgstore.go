package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AlCisse/immo-guinee-sub004/pkg/domain"
)

type PGStore struct{ DB *pgxpool.Pool }

func NewPGStore(db *pgxpool.Pool) *PGStore { return &PGStore{DB: db} }

func (s *PGStore) CreatePayment(ctx context.Context, p Payment) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO payments(payment_id,contract_id,method,phone,rent,deposit,commission,total,
  status,beneficiary,disclosure_accepted,provider_ref,processing_deadline,escrow_expiry,
  escrow_validated_at,fail_reason,created_at,updated_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		p.ID, p.ContractID, p.Method, p.Phone,
		p.Amounts.Rent, p.Amounts.Deposit, p.Amounts.Commission, p.Amounts.Total,
		p.Status, p.Beneficiary, p.DisclosureAccepted, nullIfEmpty(p.ProviderRef),
		p.ProcessingDeadline, p.EscrowExpiry, p.EscrowValidatedAt, p.FailReason,
		p.CreatedAt, p.UpdatedAt)
	return err
}

func (s *PGStore) GetPayment(ctx context.Context, id string) (Payment, error) {
	return s.getPayment(ctx, `WHERE payment_id=$1`, id)
}

func (s *PGStore) GetPaymentByProviderRef(ctx context.Context, ref string) (Payment, error) {
	return s.getPayment(ctx, `WHERE provider_ref=$1`, ref)
}

func (s *PGStore) getPayment(ctx context.Context, where string, arg any) (Payment, error) {
	var p Payment
	var ref *string
	err := s.DB.QueryRow(ctx, `
SELECT payment_id,contract_id,method,phone,rent,deposit,commission,total,
  status,beneficiary,disclosure_accepted,provider_ref,processing_deadline,escrow_expiry,
  escrow_validated_at,fail_reason,created_at,updated_at
FROM payments `+where, arg).
		Scan(&p.ID, &p.ContractID, &p.Method, &p.Phone,
			&p.Amounts.Rent, &p.Amounts.Deposit, &p.Amounts.Commission, &p.Amounts.Total,
			&p.Status, &p.Beneficiary, &p.DisclosureAccepted, &ref,
			&p.ProcessingDeadline, &p.EscrowExpiry, &p.EscrowValidatedAt, &p.FailReason,
			&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, domain.ErrNotFound
	}
	if err != nil {
		return Payment{}, err
	}
	if ref != nil {
		p.ProviderRef = *ref
	}
	return p, nil
}

func (s *PGStore) UpdatePayment(ctx context.Context, p Payment) error {
	tag, err := s.DB.Exec(ctx, `
UPDATE payments SET rent=$2, deposit=$3, commission=$4, total=$5, status=$6,
  provider_ref=$7, processing_deadline=$8, escrow_expiry=$9, escrow_validated_at=$10,
  fail_reason=$11, updated_at=$12
WHERE payment_id=$1`,
		p.ID, p.Amounts.Rent, p.Amounts.Deposit, p.Amounts.Commission, p.Amounts.Total,
		p.Status, nullIfEmpty(p.ProviderRef), p.ProcessingDeadline, p.EscrowExpiry,
		p.EscrowValidatedAt, p.FailReason, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *PGStore) ListAutoReleaseDue(ctx context.Context, now time.Time) ([]string, error) {
	return s.listIDs(ctx, `
SELECT payment_id FROM payments
WHERE status=$1 AND escrow_expiry IS NOT NULL AND escrow_expiry<=$2`,
		domain.PaymentEscrow, now)
}

func (s *PGStore) ListProcessing(ctx context.Context) ([]string, error) {
	return s.listIDs(ctx, `SELECT payment_id FROM payments WHERE status=$1`, domain.PaymentProcessing)
}

func (s *PGStore) listIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PGStore) AddEvent(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO payment_events(payment_id,type,actor_id,payload,at)
VALUES($1,$2,$3,$4::jsonb,$5)`,
		ev.PaymentID, ev.Type, ev.ActorID, string(payload), ev.At)
	return err
}

func (s *PGStore) ListEvents(ctx context.Context, paymentID string) ([]Event, error) {
	rows, err := s.DB.Query(ctx, `
SELECT payment_id,type,actor_id,payload,at FROM payment_events
WHERE payment_id=$1 ORDER BY at`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var ev Event
		var payload []byte
		if err := rows.Scan(&ev.PaymentID, &ev.Type, &ev.ActorID, &payload, &ev.At); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &ev.Payload)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *PGStore) GetIdempotencyRecord(ctx context.Context, actorID, key string) (string, bool, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
SELECT payment_id FROM payment_idempotency WHERE actor_id=$1 AND idem_key=$2`,
		actorID, key).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (s *PGStore) SaveIdempotencyRecord(ctx context.Context, actorID, key, paymentID string) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO payment_idempotency(actor_id,idem_key,payment_id,created_at)
VALUES($1,$2,$3,now())
ON CONFLICT (actor_id,idem_key) DO NOTHING`,
		actorID, key, paymentID)
	return err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
