package domain

import (
	"fmt"

	"github.com/smallbiznis/uplink/internal/errs"
)

var (
	ErrInvalidCommissionType = fmt.Errorf("%w: invalid_commission_type", errs.ErrInvalidRequest)
	ErrInvalidSourceType     = fmt.Errorf("%w: invalid_source_type", errs.ErrInvalidRequest)
	ErrInvalidEntryKey       = fmt.Errorf("%w: invalid_entry_key", errs.ErrInvalidRequest)
	ErrInvalidExternalRef    = fmt.Errorf("%w: invalid_external_ref", errs.ErrInvalidRequest)
	ErrNegativeAmount        = fmt.Errorf("%w: negative_ledger_amount", errs.ErrInvalidAmount)
)
