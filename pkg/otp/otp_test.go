package otp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AlCisse/immo-guinee-sub004/pkg/domain"
)

func testIssuer(now *time.Time) *Issuer {
	i := NewIssuer(NewMemoryStore())
	i.Now = func() time.Time { return *now }
	return i
}

func TestIssueAndVerify(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	i := testIssuer(&now)
	ctx := context.Background()

	c, code, err := i.Issue(ctx, "prt_1", "contract-sign:ctr_1:prt_1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("code %q is not 6 digits", code)
	}
	if c.MaxAttempts != DefaultMaxAttempts {
		t.Fatalf("max attempts = %d, want %d", c.MaxAttempts, DefaultMaxAttempts)
	}

	got, err := i.Verify(ctx, "prt_1", "contract-sign:ctr_1:prt_1", code)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.ConsumedAt == nil {
		t.Fatal("challenge not marked consumed")
	}
}

func TestVerifyConsumedNeverSucceedsTwice(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	i := testIssuer(&now)
	ctx := context.Background()

	_, code, err := i.Issue(ctx, "prt_1", "p")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := i.Verify(ctx, "prt_1", "p", code); err != nil {
		t.Fatalf("first Verify: %v", err)
	}
	if _, err := i.Verify(ctx, "prt_1", "p", code); !errors.Is(err, domain.ErrCodeExpired) {
		t.Fatalf("second Verify with same code: got %v, want ErrCodeExpired", err)
	}
}

func TestVerifyCodeMismatch(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	i := testIssuer(&now)
	ctx := context.Background()

	_, code, err := i.Issue(ctx, "prt_1", "p")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	if _, err := i.Verify(ctx, "prt_1", "p", wrong); !errors.Is(err, domain.ErrCodeMismatch) {
		t.Fatalf("got %v, want ErrCodeMismatch", err)
	}
	// Correct code still works within the attempt budget.
	if _, err := i.Verify(ctx, "prt_1", "p", code); err != nil {
		t.Fatalf("Verify after one mismatch: %v", err)
	}
}

func TestVerifyAttemptsExceeded(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	i := testIssuer(&now)
	ctx := context.Background()

	_, code, err := i.Issue(ctx, "prt_1", "p")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	for n := 0; n < DefaultMaxAttempts-1; n++ {
		if _, err := i.Verify(ctx, "prt_1", "p", wrong); !errors.Is(err, domain.ErrCodeMismatch) {
			t.Fatalf("attempt %d: got %v, want ErrCodeMismatch", n+1, err)
		}
	}
	// Final wrong attempt exhausts the budget and invalidates.
	if _, err := i.Verify(ctx, "prt_1", "p", wrong); !errors.Is(err, domain.ErrAttemptsExceeded) {
		t.Fatalf("got %v, want ErrAttemptsExceeded", err)
	}
	// The right code is now useless; the challenge is gone.
	if _, err := i.Verify(ctx, "prt_1", "p", code); !errors.Is(err, domain.ErrCodeExpired) {
		t.Fatalf("got %v, want ErrCodeExpired after invalidation", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	i := testIssuer(&now)
	ctx := context.Background()

	_, code, err := i.Issue(ctx, "prt_1", "p")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	now = now.Add(DefaultTTL + time.Second)
	if _, err := i.Verify(ctx, "prt_1", "p", code); !errors.Is(err, domain.ErrCodeExpired) {
		t.Fatalf("got %v, want ErrCodeExpired", err)
	}
}

func TestReissueInvalidatesPrior(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	i := testIssuer(&now)
	ctx := context.Background()

	_, first, err := i.Issue(ctx, "prt_1", "p")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, second, err := i.Issue(ctx, "prt_1", "p")
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}
	if first == second {
		t.Skip("codes collided; nothing to assert")
	}
	if _, err := i.Verify(ctx, "prt_1", "p", first); err == nil {
		t.Fatal("prior challenge code must not verify after reissue")
	}
	if _, err := i.Verify(ctx, "prt_1", "p", second); err != nil {
		t.Fatalf("fresh challenge: %v", err)
	}
}

func TestConcurrentIssueLeavesOneLiveChallenge(t *testing.T) {
	store := NewMemoryStore()
	i := NewIssuer(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := i.Issue(ctx, "prt_1", "contract-sign:ctr_1:prt_1"); err != nil {
				t.Errorf("Issue: %v", err)
			}
		}()
	}
	wg.Wait()

	now := time.Now().UTC()
	store.mu.Lock()
	live := 0
	for _, c := range store.challenges {
		if c.Live(now) {
			live++
		}
	}
	store.mu.Unlock()
	if live != 1 {
		t.Fatalf("%d live challenges for one key, want exactly 1", live)
	}
}

func TestChallengesAreKeyScoped(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	i := testIssuer(&now)
	ctx := context.Background()

	_, codeA, err := i.Issue(ctx, "prt_a", "contract-sign:ctr_1:prt_a")
	if err != nil {
		t.Fatalf("Issue A: %v", err)
	}
	if _, _, err := i.Issue(ctx, "prt_b", "contract-sign:ctr_1:prt_b"); err != nil {
		t.Fatalf("Issue B: %v", err)
	}
	// B's challenge does not disturb A's.
	if _, err := i.Verify(ctx, "prt_a", "contract-sign:ctr_1:prt_a", codeA); err != nil {
		t.Fatalf("Verify A: %v", err)
	}
}
