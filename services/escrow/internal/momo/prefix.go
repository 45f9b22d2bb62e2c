package momo

import (
	"strings"

	"github.com/AlCisse/immo-guinee-sub004/pkg/domain"
)

// Guinean numbering plan: the two leading subscriber digits identify
// the operator. Overridable per deployment.
var defaultPrefixes = map[domain.PaymentMethod][]string{
	domain.OrangeMoney: {"60", "61", "62"},
	domain.MTNMoMo:     {"66", "67"},
}

type PrefixRegistry struct {
	prefixes map[domain.PaymentMethod][]string
}

func NewPrefixRegistry(overrides map[domain.PaymentMethod][]string) *PrefixRegistry {
	p := make(map[domain.PaymentMethod][]string, len(defaultPrefixes))
	for m, set := range defaultPrefixes {
		p[m] = set
	}
	for m, set := range overrides {
		if len(set) > 0 {
			p[m] = set
		}
	}
	return &PrefixRegistry{prefixes: p}
}

// NormalizePhone strips spaces, dashes and the +224 country code.
func NormalizePhone(phone string) string {
	s := strings.NewReplacer(" ", "", "-", "", ".", "").Replace(strings.TrimSpace(phone))
	s = strings.TrimPrefix(s, "+224")
	s = strings.TrimPrefix(s, "00224")
	return s
}

// Validate rejects a phone whose prefix does not belong to the chosen
// provider. Runs before any external call.
func (r *PrefixRegistry) Validate(method domain.PaymentMethod, phone string) error {
	set, ok := r.prefixes[method]
	if !ok {
		return domain.ErrProviderMismatch
	}
	n := NormalizePhone(phone)
	if len(n) != 9 {
		return domain.ErrProviderMismatch
	}
	for _, p := range set {
		if strings.HasPrefix(n, p) {
			return nil
		}
	}
	return domain.ErrProviderMismatch
}
