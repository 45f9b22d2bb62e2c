package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AlCisse/immo-guinee-sub004/pkg/domain"
	"github.com/AlCisse/immo-guinee-sub004/pkg/invoice"
)

type PGStore struct{ DB *pgxpool.Pool }

func NewPGStore(db *pgxpool.Pool) *PGStore { return &PGStore{DB: db} }

func (s *PGStore) CreateContract(ctx context.Context, c Contract) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO contracts(contract_id,type,owner_id,counterparty_id,base_amount,built_property,
  advance_months,deposit_months,duration_mode,duration_months,end_date,payer_tier,status,created_at,updated_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		c.ID, c.Type, c.OwnerID, c.CounterpartyID, c.BaseAmount, c.BuiltProperty,
		c.AdvanceMonths, c.DepositMonths, c.DurationMode, c.DurationMonths, c.EndDate,
		int(c.PayerTier), c.Status, c.CreatedAt, c.UpdatedAt)
	return err
}

func (s *PGStore) GetContract(ctx context.Context, id string) (Contract, error) {
	var c Contract
	var tier int
	err := s.DB.QueryRow(ctx, `
SELECT contract_id,type,owner_id,counterparty_id,base_amount,built_property,
  advance_months,deposit_months,duration_mode,duration_months,end_date,payer_tier,status,
  retraction_expiry,cancel_reason,created_at,updated_at
FROM contracts WHERE contract_id=$1`, id).
		Scan(&c.ID, &c.Type, &c.OwnerID, &c.CounterpartyID, &c.BaseAmount, &c.BuiltProperty,
			&c.AdvanceMonths, &c.DepositMonths, &c.DurationMode, &c.DurationMonths, &c.EndDate, &tier,
			&c.Status, &c.RetractionExpiry, &c.CancelReason, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contract{}, domain.ErrNotFound
	}
	if err != nil {
		return Contract{}, err
	}
	c.PayerTier = domain.Tier(tier)

	rows, err := s.DB.Query(ctx, `
SELECT party_id,code_hash,verified_at,signed_at,document_hash
FROM contract_signatures WHERE contract_id=$1 ORDER BY signed_at`, id)
	if err != nil {
		return Contract{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var rec domain.SignatureRecord
		if err := rows.Scan(&rec.PartyID, &rec.CodeHash, &rec.VerifiedAt, &rec.SignedAt, &rec.DocumentHash); err != nil {
			return Contract{}, err
		}
		c.Signatures = append(c.Signatures, rec)
	}
	return c, rows.Err()
}

func (s *PGStore) UpdateContract(ctx context.Context, c Contract) error {
	tag, err := s.DB.Exec(ctx, `
UPDATE contracts SET status=$2, retraction_expiry=$3, cancel_reason=$4, updated_at=$5
WHERE contract_id=$1`,
		c.ID, c.Status, c.RetractionExpiry, c.CancelReason, c.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AddSignature writes the record and the contract fields touched by the
// signing step in one transaction. Signature rows are append-only.
func (s *PGStore) AddSignature(ctx context.Context, c Contract, rec domain.SignatureRecord) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
INSERT INTO contract_signatures(contract_id,party_id,code_hash,verified_at,signed_at,document_hash)
VALUES($1,$2,$3,$4,$5,$6)`,
		c.ID, rec.PartyID, rec.CodeHash, rec.VerifiedAt, rec.SignedAt, rec.DocumentHash); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
UPDATE contracts SET status=$2, retraction_expiry=$3, updated_at=$4 WHERE contract_id=$1`,
		c.ID, c.Status, c.RetractionExpiry, c.UpdatedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) ListRetractionExpired(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
SELECT contract_id FROM contracts
WHERE status=$1 AND retraction_expiry IS NOT NULL AND retraction_expiry<=$2`,
		domain.ContractSigned, now)
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

func (s *PGStore) SaveInvoice(ctx context.Context, inv invoice.Invoice) error {
	sections, err := json.Marshal(inv.Sections)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO invoices(invoice_id,contract_id,sections,total,payer_tier,issued_at)
VALUES($1,$2,$3::jsonb,$4,$5,$6)
ON CONFLICT (contract_id) DO NOTHING`,
		inv.ID, inv.ContractID, string(sections), inv.Total, int(inv.PayerTier), inv.IssuedAt)
	return err
}

func (s *PGStore) GetInvoice(ctx context.Context, contractID string) (invoice.Invoice, error) {
	var inv invoice.Invoice
	var sections []byte
	var tier int
	err := s.DB.QueryRow(ctx, `
SELECT invoice_id,contract_id,sections,total,payer_tier,issued_at
FROM invoices WHERE contract_id=$1`, contractID).
		Scan(&inv.ID, &inv.ContractID, &sections, &inv.Total, &tier, &inv.IssuedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return invoice.Invoice{}, domain.ErrNotFound
	}
	if err != nil {
		return invoice.Invoice{}, err
	}
	if err := json.Unmarshal(sections, &inv.Sections); err != nil {
		return invoice.Invoice{}, err
	}
	inv.PayerTier = domain.Tier(tier)
	return inv, nil
}

func (s *PGStore) AddEvent(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO contract_events(contract_id,type,actor_id,payload,at)
VALUES($1,$2,$3,$4::jsonb,$5)`,
		ev.ContractID, ev.Type, ev.ActorID, string(payload), ev.At)
	return err
}

func (s *PGStore) ListEvents(ctx context.Context, contractID string) ([]Event, error) {
	rows, err := s.DB.Query(ctx, `
SELECT contract_id,type,actor_id,payload,at FROM contract_events
WHERE contract_id=$1 ORDER BY at`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var ev Event
		var payload []byte
		if err := rows.Scan(&ev.ContractID, &ev.Type, &ev.ActorID, &payload, &ev.At); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &ev.Payload)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
