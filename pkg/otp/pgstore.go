package otp

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGStore struct{ DB *pgxpool.Pool }

func NewPGStore(db *pgxpool.Pool) *PGStore { return &PGStore{DB: db} }

func (s *PGStore) LiveChallenge(ctx context.Context, subjectID, purpose string) (*Challenge, error) {
	var c Challenge
	err := s.DB.QueryRow(ctx, `
SELECT challenge_id,subject_id,purpose,code_hash,created_at,expires_at,attempts,max_attempts,consumed_at,invalidated_at
FROM otp_challenges
WHERE subject_id=$1 AND purpose=$2 AND consumed_at IS NULL AND invalidated_at IS NULL
ORDER BY created_at DESC LIMIT 1`, subjectID, purpose).
		Scan(&c.ID, &c.SubjectID, &c.Purpose, &c.CodeHash, &c.CreatedAt, &c.ExpiresAt,
			&c.Attempts, &c.MaxAttempts, &c.ConsumedAt, &c.InvalidatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PGStore) SaveChallenge(ctx context.Context, c *Challenge) error {
	_, err := s.DB.Exec(ctx, `
INSERT INTO otp_challenges(challenge_id,subject_id,purpose,code_hash,created_at,expires_at,attempts,max_attempts)
VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		c.ID, c.SubjectID, c.Purpose, c.CodeHash, c.CreatedAt, c.ExpiresAt, c.Attempts, c.MaxAttempts)
	return err
}

func (s *PGStore) UpdateChallenge(ctx context.Context, c *Challenge) error {
	_, err := s.DB.Exec(ctx, `
UPDATE otp_challenges SET attempts=$2, consumed_at=$3, invalidated_at=$4
WHERE challenge_id=$1`,
		c.ID, c.Attempts, c.ConsumedAt, c.InvalidatedAt)
	return err
}
