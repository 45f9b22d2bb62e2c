// Package otp issues and verifies short-lived one-time codes bound to a
// subject and purpose. At most one live challenge exists per
// (subject, purpose) key; a challenge is consumed or invalidated exactly
// once and never reusable afterwards.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/AlCisse/immo-guinee-sub004/pkg/domain"
	"github.com/AlCisse/immo-guinee-sub004/pkg/keylock"
)

const (
	DefaultTTL         = 5 * time.Minute
	DefaultMaxAttempts = 3
	codeDigits         = 6
)

type Challenge struct {
	ID            string     `json:"challenge_id"`
	SubjectID     string     `json:"subject_id"`
	Purpose       string     `json:"purpose"`
	CodeHash      string     `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	Attempts      int        `json:"attempts"`
	MaxAttempts   int        `json:"max_attempts"`
	ConsumedAt    *time.Time `json:"consumed_at,omitempty"`
	InvalidatedAt *time.Time `json:"invalidated_at,omitempty"`
}

// Live reports whether the challenge can still be verified.
func (c *Challenge) Live(now time.Time) bool {
	return c.ConsumedAt == nil && c.InvalidatedAt == nil && now.Before(c.ExpiresAt)
}

type Store interface {
	// LiveChallenge returns the live challenge for the key, or nil.
	LiveChallenge(ctx context.Context, subjectID, purpose string) (*Challenge, error)
	SaveChallenge(ctx context.Context, c *Challenge) error
	UpdateChallenge(ctx context.Context, c *Challenge) error
}

type Issuer struct {
	Store       Store
	TTL         time.Duration
	MaxAttempts int
	Now         func() time.Time

	// Issue and Verify serialize per (subject, purpose) so that the
	// invalidate-prior-then-insert sequence cannot interleave and leave
	// two live challenges for one key.
	locks *keylock.KeyLock
}

func NewIssuer(store Store) *Issuer {
	return &Issuer{
		Store:       store,
		TTL:         DefaultTTL,
		MaxAttempts: DefaultMaxAttempts,
		Now:         time.Now,
		locks:       keylock.New(),
	}
}

func challengeKey(subjectID, purpose string) string { return subjectID + "\x00" + purpose }

// Issue creates a fresh challenge and returns the plain code for
// delivery. Any prior live challenge for the same key is invalidated
// first, keeping the single-live-challenge guarantee.
func (i *Issuer) Issue(ctx context.Context, subjectID, purpose string) (*Challenge, string, error) {
	var out *Challenge
	var code string
	err := i.locks.Do(challengeKey(subjectID, purpose), func() error {
		var err error
		out, code, err = i.issue(ctx, subjectID, purpose)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return out, code, nil
}

func (i *Issuer) issue(ctx context.Context, subjectID, purpose string) (*Challenge, string, error) {
	now := i.Now().UTC()
	prior, err := i.Store.LiveChallenge(ctx, subjectID, purpose)
	if err != nil {
		return nil, "", err
	}
	if prior != nil {
		prior.InvalidatedAt = &now
		if err := i.Store.UpdateChallenge(ctx, prior); err != nil {
			return nil, "", err
		}
	}

	code, err := generateCode()
	if err != nil {
		return nil, "", err
	}
	c := &Challenge{
		ID:          "otp_" + uuid.NewString(),
		SubjectID:   subjectID,
		Purpose:     purpose,
		CodeHash:    HashCode(code),
		CreatedAt:   now,
		ExpiresAt:   now.Add(i.TTL),
		MaxAttempts: i.MaxAttempts,
	}
	if err := i.Store.SaveChallenge(ctx, c); err != nil {
		return nil, "", err
	}
	return c, code, nil
}

// Verify consumes the live challenge on a matching code. Expiry is
// evaluated lazily here; there is no active expiry timer.
func (i *Issuer) Verify(ctx context.Context, subjectID, purpose, code string) (*Challenge, error) {
	var out *Challenge
	err := i.locks.Do(challengeKey(subjectID, purpose), func() error {
		var err error
		out, err = i.verify(ctx, subjectID, purpose, code)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (i *Issuer) verify(ctx context.Context, subjectID, purpose, code string) (*Challenge, error) {
	now := i.Now().UTC()
	c, err := i.Store.LiveChallenge(ctx, subjectID, purpose)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.ErrCodeExpired
	}
	if !now.Before(c.ExpiresAt) {
		c.InvalidatedAt = &now
		if err := i.Store.UpdateChallenge(ctx, c); err != nil {
			return nil, err
		}
		return nil, domain.ErrCodeExpired
	}

	c.Attempts++
	if c.Attempts > c.MaxAttempts {
		c.InvalidatedAt = &now
		if err := i.Store.UpdateChallenge(ctx, c); err != nil {
			return nil, err
		}
		return nil, domain.ErrAttemptsExceeded
	}
	if HashCode(code) != c.CodeHash {
		if c.Attempts == c.MaxAttempts {
			c.InvalidatedAt = &now
		}
		if err := i.Store.UpdateChallenge(ctx, c); err != nil {
			return nil, err
		}
		if c.InvalidatedAt != nil {
			return nil, domain.ErrAttemptsExceeded
		}
		return nil, domain.ErrCodeMismatch
	}

	c.ConsumedAt = &now
	if err := i.Store.UpdateChallenge(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func generateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n), nil
}
