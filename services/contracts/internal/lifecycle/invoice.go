package lifecycle

import (
	"context"

	"github.com/AlCisse/immo-guinee-sub004/pkg/invoice"
)

// issueInvoice composes and stores the payable invoice when the
// contract reaches SIGNED. The payer tier is frozen on the invoice row.
func (s *Service) issueInvoice(ctx context.Context, c Contract) error {
	inv, err := invoice.Compose(invoice.Terms{
		ContractID:    c.ID,
		Type:          c.Type,
		BuiltProperty: c.BuiltProperty,
		BaseAmount:    c.BaseAmount,
		AdvanceMonths: c.AdvanceMonths,
		DepositMonths: c.DepositMonths,
		PayerTier:     c.PayerTier,
	}, s.Now())
	if err != nil {
		return err
	}
	if err := s.Store.SaveInvoice(ctx, inv); err != nil {
		return err
	}
	s.event(ctx, c.ID, "INVOICE_ISSUED", "SYSTEM", map[string]any{"invoice_id": inv.ID, "total": inv.Total})
	return nil
}
