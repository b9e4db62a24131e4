package payment

import (
	"context"
	"strings"

	"github.com/smallbiznis/uplink/internal/errs"
	paymentdomain "github.com/smallbiznis/uplink/internal/payment/domain"
	"go.uber.org/zap"
)

// ProcessedChecker reports whether an external reference was already applied.
type ProcessedChecker interface {
	HasProcessed(ctx context.Context, ref string) (bool, error)
}

// Confirm runs the pre-write checks for an external payment: the reference is
// unused and the oracle saw amount reach recipient. Oracle errors count as a
// failed verification.
func Confirm(ctx context.Context, ledger ProcessedChecker, verifier paymentdomain.Verifier, log *zap.Logger, ref, recipient string, amount int64) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return errs.ErrInvalidRequest
	}

	processed, err := ledger.HasProcessed(ctx, ref)
	if err != nil {
		return err
	}
	if processed {
		return errs.ErrDuplicateExternalReference
	}

	if verifier == nil {
		return errs.ErrVerificationFailed
	}
	ok, err := verifier.Verify(ctx, ref, recipient, amount)
	if err != nil {
		log.Warn("payment verification error",
			zap.String("external_ref", ref),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
		return errs.ErrVerificationFailed
	}
	if !ok {
		return errs.ErrVerificationFailed
	}
	return nil
}
