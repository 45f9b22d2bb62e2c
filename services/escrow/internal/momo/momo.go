// Package momo talks to the mobile-money rails. Each provider exposes
// the same two calls: initiate a collection and poll its status.
package momo

import (
	"context"

	"github.com/AlCisse/immo-guinee-sub004/pkg/domain"
)

type TxStatus string

const (
	TxPending   TxStatus = "PENDING"
	TxConfirmed TxStatus = "CONFIRMED"
	TxFailed    TxStatus = "FAILED"
)

// Rail is one provider's collection API.
type Rail interface {
	// Initiate starts a collection and returns the provider reference.
	// The payer confirms on their handset; the outcome arrives by
	// callback or Status poll.
	Initiate(ctx context.Context, phone string, amount int64) (string, error)
	Status(ctx context.Context, reference string) (TxStatus, error)
}

// Rails maps a payment method onto its provider client.
type Rails map[domain.PaymentMethod]Rail
