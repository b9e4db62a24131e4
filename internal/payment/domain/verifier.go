package domain

import (
	"context"
	"errors"
)

// Verifier confirms that an external payment reached the expected recipient.
// It has no effect on engine state and is always called before a write phase.
type Verifier interface {
	Verify(ctx context.Context, externalRef, expectedRecipient string, expectedAmount int64) (bool, error)
}

var (
	ErrOracleUnavailable = errors.New("payment_oracle_unavailable")
	ErrInvalidResponse   = errors.New("payment_oracle_invalid_response")
)
