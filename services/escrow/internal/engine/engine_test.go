package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/AlCisse/immo-guinee-sub004/pkg/domain"
	"github.com/AlCisse/immo-guinee-sub004/services/escrow/internal/momo"
)

type fakeRail struct {
	initiates   int
	initiateErr error
	statuses    int
	status      momo.TxStatus
	statusErr   error
	lastPhone   string
	lastAmount  int64
}

func (f *fakeRail) Initiate(ctx context.Context, phone string, amount int64) (string, error) {
	f.initiates++
	f.lastPhone, f.lastAmount = phone, amount
	if f.initiateErr != nil {
		return "", f.initiateErr
	}
	return "ref-001", nil
}

func (f *fakeRail) Status(ctx context.Context, reference string) (momo.TxStatus, error) {
	f.statuses++
	if f.statusErr != nil {
		return "", f.statusErr
	}
	return f.status, nil
}

type fakeInvoices struct {
	amounts domain.Amounts
	err     error
}

func (f *fakeInvoices) InvoiceAmounts(ctx context.Context, contractID string) (domain.Amounts, error) {
	if f.err != nil {
		return domain.Amounts{}, f.err
	}
	return f.amounts, nil
}

type fakeNotifier struct {
	sent []string
	fail bool
}

func (f *fakeNotifier) Send(ctx context.Context, subject, message string) error {
	if f.fail {
		return errors.New("sms gateway down")
	}
	f.sent = append(f.sent, subject+": "+message)
	return nil
}

type fixture struct {
	eng      *Engine
	store    *MemoryStore
	rail     *fakeRail
	invoices *fakeInvoices
	notifier *fakeNotifier
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: NewMemoryStore(),
		rail:  &fakeRail{status: momo.TxPending},
		invoices: &fakeInvoices{
			amounts: domain.Amounts{Rent: 5_000_000, Deposit: 5_000_000, Commission: 1_250_000, Total: 11_250_000},
		},
		notifier: &fakeNotifier{},
		now:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	rails := momo.Rails{domain.OrangeMoney: f.rail, domain.MTNMoMo: f.rail}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.eng = New(f.store, rails, momo.NewPrefixRegistry(nil), f.invoices, f.notifier, logger)
	f.eng.Now = func() time.Time { return f.now }
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) submitOrange(t *testing.T) Payment {
	t.Helper()
	p, err := f.eng.Submit(context.Background(), SubmitParams{
		ContractID:  "ctr_1",
		Method:      domain.OrangeMoney,
		Phone:       "+224 621 23 45 67",
		Beneficiary: "prt_owner",
		ActorID:     "prt_tenant",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return p
}

// escrow walks a payment through provider confirmation.
func (f *fixture) escrow(t *testing.T) Payment {
	t.Helper()
	p := f.submitOrange(t)
	out, err := f.eng.ApplyProviderStatus(context.Background(), p.ProviderRef, momo.TxConfirmed)
	if err != nil {
		t.Fatalf("ApplyProviderStatus: %v", err)
	}
	return out
}

func checkAmounts(t *testing.T, p Payment) {
	t.Helper()
	if err := p.Amounts.Check(); err != nil {
		t.Fatalf("amounts invariant broken on %s payment: %v", p.Status, err)
	}
}

func TestSubmitMobileMoneyToEscrow(t *testing.T) {
	f := newFixture(t)
	p := f.submitOrange(t)

	if p.Status != domain.PaymentProcessing {
		t.Fatalf("status = %s, want %s", p.Status, domain.PaymentProcessing)
	}
	if p.ProviderRef != "ref-001" {
		t.Fatalf("provider ref = %q", p.ProviderRef)
	}
	if f.rail.lastPhone != "621234567" {
		t.Fatalf("rail called with phone %q, want normalized", f.rail.lastPhone)
	}
	if f.rail.lastAmount != 11_250_000 {
		t.Fatalf("rail called with amount %d", f.rail.lastAmount)
	}
	checkAmounts(t, p)

	out, err := f.eng.ApplyProviderStatus(context.Background(), p.ProviderRef, momo.TxConfirmed)
	if err != nil {
		t.Fatalf("ApplyProviderStatus: %v", err)
	}
	if out.Status != domain.PaymentEscrow {
		t.Fatalf("status = %s, want %s", out.Status, domain.PaymentEscrow)
	}
	wantExpiry := f.now.Add(DefaultHold)
	if out.EscrowExpiry == nil || !out.EscrowExpiry.Equal(wantExpiry) {
		t.Fatalf("escrow expiry = %v, want %v", out.EscrowExpiry, wantExpiry)
	}
	checkAmounts(t, out)
	if len(f.notifier.sent) == 0 {
		t.Fatal("beneficiary not notified of escrowed funds")
	}
}

func TestSubmitRejectsWrongPrefix(t *testing.T) {
	f := newFixture(t)
	_, err := f.eng.Submit(context.Background(), SubmitParams{
		ContractID:  "ctr_1",
		Method:      domain.MTNMoMo,
		Phone:       "621234567", // Orange prefix on an MTN payment
		Beneficiary: "prt_owner",
		ActorID:     "prt_tenant",
	})
	if !errors.Is(err, domain.ErrProviderMismatch) {
		t.Fatalf("err = %v, want ErrProviderMismatch", err)
	}
	if f.rail.initiates != 0 {
		t.Fatal("rail called despite prefix mismatch")
	}
}

func TestCashRequiresDisclosure(t *testing.T) {
	f := newFixture(t)
	params := SubmitParams{
		ContractID:  "ctr_1",
		Method:      domain.Cash,
		Beneficiary: "prt_owner",
		ActorID:     "prt_tenant",
	}
	if _, err := f.eng.Submit(context.Background(), params); !errors.Is(err, ErrDisclosureRequired) {
		t.Fatalf("err = %v, want ErrDisclosureRequired", err)
	}

	params.DisclosureAccepted = true
	p, err := f.eng.Submit(context.Background(), params)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if p.Status != domain.PaymentConfirmed {
		t.Fatalf("cash status = %s, want %s", p.Status, domain.PaymentConfirmed)
	}
	checkAmounts(t, p)
}

func TestSubmitFailsOnProviderRejection(t *testing.T) {
	f := newFixture(t)
	f.rail.initiateErr = domain.ErrProviderRejected

	p, err := f.eng.Submit(context.Background(), SubmitParams{
		ContractID:  "ctr_1",
		Method:      domain.OrangeMoney,
		Phone:       "621234567",
		Beneficiary: "prt_owner",
		ActorID:     "prt_tenant",
	})
	if !errors.Is(err, domain.ErrProviderRejected) {
		t.Fatalf("err = %v, want ErrProviderRejected", err)
	}
	if p.Status != domain.PaymentFailed {
		t.Fatalf("status = %s, want %s", p.Status, domain.PaymentFailed)
	}
}

func TestSubmitFailsOnProviderTimeout(t *testing.T) {
	f := newFixture(t)
	f.rail.initiateErr = domain.ErrProviderTimeout

	p, err := f.eng.Submit(context.Background(), SubmitParams{
		ContractID:  "ctr_1",
		Method:      domain.OrangeMoney,
		Phone:       "621234567",
		Beneficiary: "prt_owner",
		ActorID:     "prt_tenant",
	})
	if !errors.Is(err, domain.ErrProviderTimeout) {
		t.Fatalf("err = %v, want ErrProviderTimeout", err)
	}
	if p.Status != domain.PaymentFailed {
		t.Fatalf("status = %s, want %s", p.Status, domain.PaymentFailed)
	}
	if p.FailReason != "provider timeout" {
		t.Fatalf("fail reason = %q", p.FailReason)
	}
}

func TestSubmitIdempotencyReplay(t *testing.T) {
	f := newFixture(t)
	params := SubmitParams{
		ContractID:     "ctr_1",
		Method:         domain.OrangeMoney,
		Phone:          "621234567",
		Beneficiary:    "prt_owner",
		ActorID:        "prt_tenant",
		IdempotencyKey: "idem-1",
	}
	p1, err := f.eng.Submit(context.Background(), params)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	p2, err := f.eng.Submit(context.Background(), params)
	if err != nil {
		t.Fatalf("replay Submit: %v", err)
	}
	if p1.ID != p2.ID {
		t.Fatalf("replay created a second payment: %s vs %s", p1.ID, p2.ID)
	}
	if f.rail.initiates != 1 {
		t.Fatalf("rail called %d times, want 1", f.rail.initiates)
	}
}

func TestSubmitResolvesAmountsFromInvoice(t *testing.T) {
	f := newFixture(t)
	p := f.submitOrange(t)

	// Components are the invoice's, not the caller's: SubmitParams has
	// no way to name an amount.
	if p.Amounts != f.invoices.amounts {
		t.Fatalf("amounts = %+v, want the invoice's %+v", p.Amounts, f.invoices.amounts)
	}
	if p.Amounts.Commission != 1_250_000 {
		t.Fatalf("commission = %d", p.Amounts.Commission)
	}
}

func TestSubmitFailsWithoutInvoice(t *testing.T) {
	f := newFixture(t)
	f.invoices.err = domain.ErrNotFound

	_, err := f.eng.Submit(context.Background(), SubmitParams{
		ContractID:  "ctr_unsigned",
		Method:      domain.OrangeMoney,
		Phone:       "621234567",
		Beneficiary: "prt_owner",
		ActorID:     "prt_tenant",
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if f.rail.initiates != 0 {
		t.Fatal("rail called for a contract with no issued invoice")
	}
}

func TestCallbackIdempotent(t *testing.T) {
	f := newFixture(t)
	p := f.escrow(t)
	firstExpiry := *p.EscrowExpiry

	f.advance(time.Hour)
	again, err := f.eng.ApplyProviderStatus(context.Background(), p.ProviderRef, momo.TxConfirmed)
	if err != nil {
		t.Fatalf("second ApplyProviderStatus: %v", err)
	}
	if again.Status != domain.PaymentEscrow {
		t.Fatalf("status = %s after duplicate callback", again.Status)
	}
	if !again.EscrowExpiry.Equal(firstExpiry) {
		t.Fatal("duplicate callback moved the escrow expiry")
	}
}

func TestOwnerValidation(t *testing.T) {
	f := newFixture(t)
	p := f.escrow(t)

	out, err := f.eng.Validate(context.Background(), p.ID, "prt_owner")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if out.Status != domain.PaymentConfirmed {
		t.Fatalf("status = %s, want %s", out.Status, domain.PaymentConfirmed)
	}
	if out.EscrowValidatedAt == nil {
		t.Fatal("validation timestamp not recorded")
	}
	checkAmounts(t, out)

	// Validation beats auto-release; the sweep finds nothing to do.
	f.advance(DefaultHold + time.Hour)
	n, err := f.eng.AutoReleaseDue(context.Background())
	if err != nil {
		t.Fatalf("AutoReleaseDue: %v", err)
	}
	if n != 0 {
		t.Fatalf("auto-release fired after validation, n=%d", n)
	}

	// A second validation is a benign no-op.
	again, err := f.eng.Validate(context.Background(), p.ID, "prt_owner")
	if err != nil {
		t.Fatalf("repeat Validate: %v", err)
	}
	if !again.EscrowValidatedAt.Equal(*out.EscrowValidatedAt) {
		t.Fatal("repeat validation rewrote the timestamp")
	}
}

func TestAutoRelease(t *testing.T) {
	f := newFixture(t)
	p := f.escrow(t)

	// Before the hold elapses nothing is due.
	n, err := f.eng.AutoReleaseDue(context.Background())
	if err != nil {
		t.Fatalf("AutoReleaseDue: %v", err)
	}
	if n != 0 {
		t.Fatalf("released %d before the hold elapsed", n)
	}

	f.advance(DefaultHold)
	n, err = f.eng.AutoReleaseDue(context.Background())
	if err != nil {
		t.Fatalf("AutoReleaseDue: %v", err)
	}
	if n != 1 {
		t.Fatalf("released %d, want 1", n)
	}
	out, _ := f.eng.Get(context.Background(), p.ID)
	if out.Status != domain.PaymentConfirmed {
		t.Fatalf("status = %s, want %s", out.Status, domain.PaymentConfirmed)
	}
	if out.EscrowValidatedAt != nil {
		t.Fatal("auto release must not record a validation timestamp")
	}
	checkAmounts(t, out)

	// Second run observes no due rows and changes nothing.
	n, err = f.eng.AutoReleaseDue(context.Background())
	if err != nil {
		t.Fatalf("second AutoReleaseDue: %v", err)
	}
	if n != 0 {
		t.Fatalf("second sweep released %d", n)
	}

	// And validation after release is a no-op, not an error.
	again, err := f.eng.Validate(context.Background(), p.ID, "prt_owner")
	if err != nil {
		t.Fatalf("Validate after auto-release: %v", err)
	}
	if again.EscrowValidatedAt != nil {
		t.Fatal("late validation rewrote an auto-released payment")
	}
}

func TestDisputeFreezesAutoRelease(t *testing.T) {
	f := newFixture(t)
	p := f.escrow(t)

	out, err := f.eng.Dispute(context.Background(), p.ID, "prt_tenant")
	if err != nil {
		t.Fatalf("Dispute: %v", err)
	}
	if out.Status != domain.PaymentDisputed {
		t.Fatalf("status = %s, want %s", out.Status, domain.PaymentDisputed)
	}

	f.advance(DefaultHold + time.Hour)
	n, err := f.eng.AutoReleaseDue(context.Background())
	if err != nil {
		t.Fatalf("AutoReleaseDue: %v", err)
	}
	if n != 0 {
		t.Fatalf("auto-release touched a disputed payment, n=%d", n)
	}
	got, _ := f.eng.Get(context.Background(), p.ID)
	if got.Status != domain.PaymentDisputed {
		t.Fatalf("status = %s, dispute did not hold", got.Status)
	}
}

func TestRefundPreservesCommission(t *testing.T) {
	f := newFixture(t)
	p := f.escrow(t)

	out, err := f.eng.Refund(context.Background(), p.ID, "adm_1", "tenant retracted")
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if out.Status != domain.PaymentRefunded {
		t.Fatalf("status = %s, want %s", out.Status, domain.PaymentRefunded)
	}
	if out.Amounts.Rent != 0 || out.Amounts.Deposit != 0 {
		t.Fatalf("refund left refundable components: %+v", out.Amounts)
	}
	if out.Amounts.Commission != 1_250_000 {
		t.Fatalf("commission = %d, must survive the refund", out.Amounts.Commission)
	}
	if out.Amounts.Total != 1_250_000 {
		t.Fatalf("total = %d, want commission only", out.Amounts.Total)
	}
	checkAmounts(t, out)
}

func TestRefundFromDispute(t *testing.T) {
	f := newFixture(t)
	p := f.escrow(t)
	if _, err := f.eng.Dispute(context.Background(), p.ID, "prt_tenant"); err != nil {
		t.Fatalf("Dispute: %v", err)
	}

	out, err := f.eng.Refund(context.Background(), p.ID, "adm_1", "resolved for tenant")
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if out.Status != domain.PaymentRefunded {
		t.Fatalf("status = %s, want %s", out.Status, domain.PaymentRefunded)
	}
	if out.Amounts.Commission != 1_250_000 {
		t.Fatalf("commission = %d after dispute refund", out.Amounts.Commission)
	}
	checkAmounts(t, out)
}

func TestRefundRejectedBeforeEscrow(t *testing.T) {
	f := newFixture(t)
	p := f.submitOrange(t) // still PROCESSING

	_, err := f.eng.Refund(context.Background(), p.ID, "adm_1", "too early")
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestPollProcessingResolvesViaStatus(t *testing.T) {
	f := newFixture(t)
	p := f.submitOrange(t)
	f.rail.status = momo.TxConfirmed

	if err := f.eng.PollProcessing(context.Background()); err != nil {
		t.Fatalf("PollProcessing: %v", err)
	}
	out, _ := f.eng.Get(context.Background(), p.ID)
	if out.Status != domain.PaymentEscrow {
		t.Fatalf("status = %s, want %s", out.Status, domain.PaymentEscrow)
	}
}

func TestPollProcessingExpiresStuckRows(t *testing.T) {
	f := newFixture(t)
	p := f.submitOrange(t)
	f.rail.status = momo.TxPending

	f.advance(DefaultProcessingTTL + time.Minute)
	if err := f.eng.PollProcessing(context.Background()); err != nil {
		t.Fatalf("PollProcessing: %v", err)
	}
	out, _ := f.eng.Get(context.Background(), p.ID)
	if out.Status != domain.PaymentFailed {
		t.Fatalf("status = %s, want %s", out.Status, domain.PaymentFailed)
	}
	if out.FailReason != "processing deadline elapsed" {
		t.Fatalf("fail reason = %q", out.FailReason)
	}
}

func TestEventsRecordTheTrail(t *testing.T) {
	f := newFixture(t)
	p := f.escrow(t)
	if _, err := f.eng.Validate(context.Background(), p.ID, "prt_owner"); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	evs, err := f.eng.Events(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	var types []string
	for _, ev := range evs {
		types = append(types, ev.Type)
	}
	want := []string{"PAYMENT_SUBMITTED", "COLLECTION_INITIATED", "FUNDS_ESCROWED", "OWNER_VALIDATED"}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event[%d] = %s, want %s", i, types[i], want[i])
		}
	}
}
