package otp

import (
	"context"
	"time"
)

// Store persists one challenge per phone.
type Store interface {
	// Replace overwrites the phone's challenge unless the current one was
	// issued after cooldownCutoff, in which case it returns ErrRateLimited.
	// The check and write are a single conditional operation.
	Replace(ctx context.Context, c *Challenge, cooldownCutoff time.Time) error

	// Get returns ErrNotFound when the phone has no challenge.
	Get(ctx context.Context, phone string) (*Challenge, error)

	// Consume marks the challenge issued at issuedAt as used. It reports
	// false when that challenge is already consumed or has been replaced.
	Consume(ctx context.Context, phone string, issuedAt, at time.Time) (bool, error)
}
