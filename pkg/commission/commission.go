// Package commission computes the platform fee retained on every
// completed transaction. The fee is never refundable.
package commission

import (
	"fmt"

	"github.com/AlCisse/immo-guinee-sub004/pkg/domain"
)

// Kind is the transaction kind the fee schedule is keyed on. Sales split
// into land and built property because their rates differ.
type Kind string

const (
	KindLease     Kind = "LEASE"
	KindLandSale  Kind = "LAND_SALE"
	KindBuiltSale Kind = "BUILT_SALE"
	KindMandate   Kind = "MANAGEMENT_MANDATE"
)

// Base rates in basis points of the base amount: lease 50% of one
// month's rent, land sale 1%, built-property sale 2%, management
// mandate 8% of monthly rent (recurring).
var baseRateBps = map[Kind]int64{
	KindLease:     5000,
	KindLandSale:  100,
	KindBuiltSale: 200,
	KindMandate:   800,
}

// Calculate returns the commission in whole GNF. The tier discount is
// multiplicative on the base rate and rounding to the nearest whole
// currency unit happens exactly once, on the final product.
func Calculate(kind Kind, baseAmount int64, tier domain.Tier) (int64, error) {
	rate, ok := baseRateBps[kind]
	if !ok {
		return 0, fmt.Errorf("unknown transaction kind %q", kind)
	}
	if baseAmount < 0 {
		return 0, fmt.Errorf("negative base amount %d", baseAmount)
	}
	if !tier.Valid() {
		return 0, fmt.Errorf("invalid tier %d", tier)
	}
	mult := 100 - tier.DiscountPercent()
	// commission = base * rate/10000 * mult/100, rounded half up in one
	// integer step. Max operand: 1e13 GNF * 5000 * 100 < 2^63.
	n := baseAmount * rate * mult
	const den = 10000 * 100
	return (n + den/2) / den, nil
}

// KindFor maps a contract type onto its fee schedule kind. Sale
// promises need the land/built distinction supplied by the listing.
func KindFor(typ domain.ContractType, builtProperty bool) Kind {
	switch typ {
	case domain.SalePromise:
		if builtProperty {
			return KindBuiltSale
		}
		return KindLandSale
	case domain.ManagementMandate:
		return KindMandate
	default:
		return KindLease
	}
}
