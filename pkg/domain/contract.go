package domain

import "time"

type ContractType string

const (
	LeaseResidential   ContractType = "LEASE_RESIDENTIAL"
	LeaseCommercial    ContractType = "LEASE_COMMERCIAL"
	SalePromise        ContractType = "SALE_PROMISE"
	ManagementMandate  ContractType = "MANAGEMENT_MANDATE"
	DepositAttestation ContractType = "DEPOSIT_ATTESTATION"
)

func (t ContractType) Valid() bool {
	switch t {
	case LeaseResidential, LeaseCommercial, SalePromise, ManagementMandate, DepositAttestation:
		return true
	}
	return false
}

func (t ContractType) IsLease() bool {
	return t == LeaseResidential || t == LeaseCommercial
}

type DurationMode string

const (
	DurationFixedEndDate DurationMode = "FIXED_END_DATE"
	DurationMonths       DurationMode = "MONTHS"
	DurationIndefinite   DurationMode = "INDEFINITE"
)

type ContractStatus string

const (
	ContractDraft             ContractStatus = "DRAFT"
	ContractAwaitingSignature ContractStatus = "AWAITING_SIGNATURE"
	ContractSigned            ContractStatus = "SIGNED"
	ContractActive            ContractStatus = "ACTIVE"
	ContractCancelled         ContractStatus = "CANCELLED"
	ContractTerminated        ContractStatus = "TERMINATED"
)

// contractTransitions is the authoritative legality table. A pair absent
// from the table is an illegal transition, no exceptions.
var contractTransitions = map[ContractStatus][]ContractStatus{
	ContractDraft:             {ContractAwaitingSignature},
	ContractAwaitingSignature: {ContractSigned},
	ContractSigned:            {ContractActive, ContractCancelled},
	ContractActive:            {ContractTerminated},
	ContractCancelled:         {},
	ContractTerminated:        {},
}

func (s ContractStatus) Terminal() bool {
	return len(contractTransitions[s]) == 0
}

// CanTransition reports whether from -> to is a legal contract transition.
func (s ContractStatus) CanTransition(to ContractStatus) bool {
	for _, next := range contractTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns an *InvalidTransitionError for illegal pairs.
func (s ContractStatus) CheckTransition(to ContractStatus) error {
	if !s.CanTransition(to) {
		return &InvalidTransitionError{Entity: "contract", From: string(s), To: string(to)}
	}
	return nil
}

// Tier is the payer's loyalty/certification level. Higher tiers earn a
// larger commission discount.
type Tier int

const (
	Tier0 Tier = iota
	Tier1
	Tier2
	Tier3
)

func (t Tier) Valid() bool { return t >= Tier0 && t <= Tier3 }

// DiscountPercent is the commission discount granted by the tier,
// multiplicative on the base rate.
func (t Tier) DiscountPercent() int64 {
	switch t {
	case Tier1:
		return 5
	case Tier2:
		return 10
	case Tier3:
		return 15
	default:
		return 0
	}
}

// SignatureRecord is immutable once written: a party may not re-sign.
type SignatureRecord struct {
	PartyID      string    `json:"party_id"`
	CodeHash     string    `json:"code_hash"`
	VerifiedAt   time.Time `json:"verified_at"`
	SignedAt     time.Time `json:"signed_at"`
	DocumentHash string    `json:"document_hash"`
}
