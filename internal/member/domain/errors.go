package domain

import (
	"fmt"

	"github.com/smallbiznis/uplink/internal/errs"
)

var (
	ErrInvalidHandle = fmt.Errorf("%w: invalid_handle", errs.ErrInvalidRequest)
	ErrInvalidEmail  = fmt.Errorf("%w: invalid_email", errs.ErrInvalidRequest)
	ErrInvalidWallet = fmt.Errorf("%w: invalid_wallet_address", errs.ErrInvalidRequest)
	ErrMemberMissing = fmt.Errorf("%w: member", errs.ErrNotFound)
	ErrSponsorAbsent = fmt.Errorf("%w: sponsor", errs.ErrNotFound)
	ErrTierMissing   = fmt.Errorf("%w: tier", errs.ErrNotFound)
)
