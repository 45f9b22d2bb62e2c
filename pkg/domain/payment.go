package domain

type PaymentMethod string

const (
	OrangeMoney PaymentMethod = "ORANGE_MONEY"
	MTNMoMo     PaymentMethod = "MTN_MOMO"
	Cash        PaymentMethod = "CASH"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case OrangeMoney, MTNMoMo, Cash:
		return true
	}
	return false
}

func (m PaymentMethod) MobileMoney() bool {
	return m == OrangeMoney || m == MTNMoMo
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentProcessing PaymentStatus = "PROCESSING"
	PaymentEscrow     PaymentStatus = "ESCROW"
	PaymentFailed     PaymentStatus = "FAILED"
	PaymentConfirmed  PaymentStatus = "CONFIRMED"
	PaymentRefunded   PaymentStatus = "REFUNDED"
	PaymentDisputed   PaymentStatus = "DISPUTED"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:    {PaymentProcessing},
	PaymentProcessing: {PaymentEscrow, PaymentFailed, PaymentConfirmed},
	PaymentEscrow:     {PaymentConfirmed, PaymentRefunded, PaymentDisputed},
	PaymentDisputed:   {PaymentConfirmed, PaymentRefunded},
	PaymentFailed:     {},
	PaymentConfirmed:  {},
	PaymentRefunded:   {},
}

func (s PaymentStatus) Terminal() bool {
	return len(paymentTransitions[s]) == 0
}

func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	for _, next := range paymentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s PaymentStatus) CheckTransition(to PaymentStatus) error {
	if !s.CanTransition(to) {
		return &InvalidTransitionError{Entity: "payment", From: string(s), To: string(to)}
	}
	return nil
}

// Amounts carries the payment components in GNF. Total must always equal
// the component sum; Check enforces it after every transition.
type Amounts struct {
	Rent       int64 `json:"rent"`
	Deposit    int64 `json:"deposit"`
	Commission int64 `json:"commission"`
	Total      int64 `json:"total"`
}

func (a Amounts) Sum() int64 { return a.Rent + a.Deposit + a.Commission }

func (a Amounts) Check() error {
	if a.Total != a.Sum() {
		return &InvariantViolationError{Reason: "payment total does not equal component sum"}
	}
	return nil
}

// Refund zeroes the refundable components. Commission is realized revenue
// and survives every refund.
func (a Amounts) Refund() Amounts {
	out := Amounts{Commission: a.Commission}
	out.Total = out.Sum()
	return out
}
