package otp

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"storefront-be/internal/logger"

	"go.uber.org/zap"
)

type repository struct {
	db *sql.DB
}

// NewRepository returns a postgres-backed Store over the otp_challenges table.
func NewRepository(db *sql.DB) Store {
	return &repository{db: db}
}

func (r *repository) Replace(ctx context.Context, c *Challenge, cooldownCutoff time.Time) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "ReplaceChallenge"),
	)

	// The WHERE on the conflict branch makes the cooldown check part of the
	// write, so two concurrent issues cannot both pass it.
	const q = `
		INSERT INTO otp_challenges (phone, code_hash, issued_at, expires_at, consumed_at)
		VALUES ($1, $2, $3, $4, NULL)
		ON CONFLICT (phone) DO UPDATE
		SET code_hash = EXCLUDED.code_hash,
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at,
			consumed_at = NULL
		WHERE otp_challenges.issued_at <= $5
	`

	res, err := r.db.ExecContext(ctx, q, c.Phone, c.CodeHash, c.IssuedAt, c.ExpiresAt, cooldownCutoff)
	if err != nil {
		log.Error("failed to upsert challenge", zap.Error(err))
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRateLimited
	}
	return nil
}

func (r *repository) Get(ctx context.Context, phone string) (*Challenge, error) {
	const q = `
		SELECT phone, code_hash, issued_at, expires_at, consumed_at
		FROM otp_challenges
		WHERE phone = $1
	`

	var c Challenge
	err := r.db.QueryRowContext(ctx, q, phone).
		Scan(&c.Phone, &c.CodeHash, &c.IssuedAt, &c.ExpiresAt, &c.ConsumedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) Consume(ctx context.Context, phone string, issuedAt, at time.Time) (bool, error) {
	const q = `
		UPDATE otp_challenges
		SET consumed_at = $3
		WHERE phone = $1
		  AND issued_at = $2
		  AND consumed_at IS NULL
	`

	res, err := r.db.ExecContext(ctx, q, phone, issuedAt, at)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
