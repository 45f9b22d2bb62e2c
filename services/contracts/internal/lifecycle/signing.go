package lifecycle

import (
	"bytes"
	"context"
	"fmt"

	"github.com/AlCisse/immo-guinee-sub004/pkg/docsnap"
	"github.com/AlCisse/immo-guinee-sub004/pkg/domain"
	"github.com/AlCisse/immo-guinee-sub004/pkg/otp"
)

func signPurpose(contractID, partyID string) string {
	return fmt.Sprintf("contract-sign:%s:%s", contractID, partyID)
}

// signingGate rejects anything but a valid, not-yet-signed party on a
// contract awaiting signature.
func (s *Service) signingGate(c Contract, partyID string) error {
	if !c.Party(partyID) {
		return domain.ErrNotFound
	}
	if c.Status != domain.ContractAwaitingSignature {
		return &domain.InvalidTransitionError{Entity: "contract", From: string(c.Status), To: string(domain.ContractSigned)}
	}
	if c.SignedBy(partyID) {
		return domain.ErrAlreadySigned
	}
	return nil
}

// AcceptTerms is the first step of the per-party protocol. It persists
// nothing; it only confirms the party may proceed to the OTP step.
func (s *Service) AcceptTerms(ctx context.Context, contractID, partyID string) error {
	c, err := s.Store.GetContract(ctx, contractID)
	if err != nil {
		return err
	}
	return s.signingGate(c, partyID)
}

// RequestSignatureOTP issues a fresh challenge for the (contract, party)
// pair and delivers the code by SMS. A prior unconsumed challenge for
// the pair is invalidated by the issuer.
func (s *Service) RequestSignatureOTP(ctx context.Context, contractID, partyID string) (*otp.Challenge, error) {
	c, err := s.Store.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if err := s.signingGate(c, partyID); err != nil {
		return nil, err
	}
	challenge, code, err := s.OTP.Issue(ctx, partyID, signPurpose(contractID, partyID))
	if err != nil {
		return nil, err
	}
	s.event(ctx, contractID, "OTP_REQUESTED", partyID, map[string]any{"challenge_id": challenge.ID})
	s.notify(ctx, partyID, fmt.Sprintf("Votre code de signature ImmoGuinee: %s", code))
	return challenge, nil
}

// SubmitSignatureCode verifies the 6-digit code and writes the
// SignatureRecord atomically with the document snapshot hash. The
// second party's record triggers the SIGNED transition and starts the
// retraction window, set exactly once.
func (s *Service) SubmitSignatureCode(ctx context.Context, contractID, partyID, code string) (Contract, error) {
	var out Contract
	var signedNow bool
	err := s.Locks.Do(contractID, func() error {
		c, err := s.Store.GetContract(ctx, contractID)
		if err != nil {
			return err
		}
		if err := s.signingGate(c, partyID); err != nil {
			return err
		}

		verified, err := s.OTP.Verify(ctx, partyID, signPurpose(contractID, partyID), code)
		if err != nil {
			return err
		}

		doc, err := s.Renderer.Render(ctx, c)
		if err != nil {
			return fmt.Errorf("render document: %w", err)
		}
		snap, err := docsnap.Take(bytes.NewReader(doc), s.Now())
		if err != nil {
			return err
		}

		now := s.Now().UTC()
		rec := domain.SignatureRecord{
			PartyID:      partyID,
			CodeHash:     verified.CodeHash,
			VerifiedAt:   *verified.ConsumedAt,
			SignedAt:     now,
			DocumentHash: snap.Hash,
		}
		c.Signatures = append(c.Signatures, rec)
		c.UpdatedAt = now

		if len(c.Signatures) == 2 {
			if err := c.Status.CheckTransition(domain.ContractSigned); err != nil {
				return err
			}
			c.Status = domain.ContractSigned
			if c.RetractionExpiry == nil {
				expiry := now.Add(s.Retraction)
				c.RetractionExpiry = &expiry
			}
			signedNow = true
		}

		if err := s.Store.AddSignature(ctx, c, rec); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return Contract{}, err
	}

	s.event(ctx, contractID, "PARTY_SIGNED", partyID, map[string]any{"document_hash": out.Signatures[len(out.Signatures)-1].DocumentHash})
	if signedNow {
		s.event(ctx, contractID, "CONTRACT_SIGNED", "SYSTEM", map[string]any{"retraction_expiry": out.RetractionExpiry})
		if err := s.issueInvoice(ctx, out); err != nil {
			s.Logger.Error("issue invoice", "contract_id", contractID, "err", err)
		}
		s.notify(ctx, out.OwnerID, fmt.Sprintf("contract %s signed by both parties", contractID))
		s.notify(ctx, out.CounterpartyID, fmt.Sprintf("contract %s signed by both parties", contractID))
	}
	return out, nil
}
