// Package invoice assembles the itemized invoice a contract becomes
// payable under: rent/advance, security deposit, and the platform
// commission.
package invoice

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AlCisse/immo-guinee-sub004/pkg/commission"
	"github.com/AlCisse/immo-guinee-sub004/pkg/domain"
)

type SectionKind string

const (
	SectionRentAdvance SectionKind = "RENT_ADVANCE"
	SectionDeposit     SectionKind = "DEPOSIT"
	SectionCommission  SectionKind = "COMMISSION"
)

type Section struct {
	Kind          SectionKind `json:"kind"`
	Amount        int64       `json:"amount"`
	NonRefundable bool        `json:"non_refundable"`
}

// Invoice freezes the payer's tier at composition time. Later tier
// changes never alter an already-issued invoice.
type Invoice struct {
	ID         string      `json:"invoice_id"`
	ContractID string      `json:"contract_id"`
	Sections   []Section   `json:"sections"`
	Total      int64       `json:"total"`
	PayerTier  domain.Tier `json:"payer_tier"`
	IssuedAt   time.Time   `json:"issued_at"`
}

func (inv Invoice) Section(kind SectionKind) (Section, bool) {
	for _, s := range inv.Sections {
		if s.Kind == kind {
			return s, true
		}
	}
	return Section{}, false
}

// Amounts maps the invoice onto payment components.
func (inv Invoice) Amounts() domain.Amounts {
	var a domain.Amounts
	for _, s := range inv.Sections {
		switch s.Kind {
		case SectionRentAdvance:
			a.Rent = s.Amount
		case SectionDeposit:
			a.Deposit = s.Amount
		case SectionCommission:
			a.Commission = s.Amount
		}
	}
	a.Total = a.Sum()
	return a
}

// Terms is the contract context an invoice is composed from.
type Terms struct {
	ContractID    string
	Type          domain.ContractType
	BuiltProperty bool
	// MonthlyRent for leases and mandates, sale price for sale promises.
	BaseAmount    int64
	AdvanceMonths int
	DepositMonths int
	PayerTier     domain.Tier
}

// Compose builds the three sections and computes the total as the exact
// sum of the rounded section amounts, so the total always equals the
// displayed line-item sum.
func Compose(terms Terms, now time.Time) (Invoice, error) {
	if !terms.Type.Valid() {
		return Invoice{}, fmt.Errorf("invalid contract type %q", terms.Type)
	}
	if terms.BaseAmount <= 0 {
		return Invoice{}, fmt.Errorf("base amount must be positive, got %d", terms.BaseAmount)
	}
	if terms.AdvanceMonths < 0 || terms.DepositMonths < 0 {
		return Invoice{}, fmt.Errorf("negative month counts")
	}

	kind := commission.KindFor(terms.Type, terms.BuiltProperty)
	fee, err := commission.Calculate(kind, terms.BaseAmount, terms.PayerTier)
	if err != nil {
		return Invoice{}, err
	}

	// Sale promises carry only the commission here; the price itself is
	// settled at the notary, outside the escrow rails.
	var rentAdvance, deposit int64
	if terms.Type.IsLease() || terms.Type == domain.ManagementMandate {
		rentAdvance = terms.BaseAmount * int64(terms.AdvanceMonths)
		deposit = terms.BaseAmount * int64(terms.DepositMonths)
	}

	sections := []Section{
		{Kind: SectionRentAdvance, Amount: rentAdvance},
		{Kind: SectionDeposit, Amount: deposit},
		{Kind: SectionCommission, Amount: fee, NonRefundable: true},
	}
	var total int64
	for _, s := range sections {
		total += s.Amount
	}
	return Invoice{
		ID:         "inv_" + uuid.NewString(),
		ContractID: terms.ContractID,
		Sections:   sections,
		Total:      total,
		PayerTier:  terms.PayerTier,
		IssuedAt:   now.UTC(),
	}, nil
}
