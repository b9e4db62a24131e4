package domain

import (
	"fmt"

	"github.com/smallbiznis/uplink/internal/errs"
)

var (
	ErrSenderMissing    = fmt.Errorf("%w: sender", errs.ErrNotFound)
	ErrRecipientMissing = fmt.Errorf("%w: recipient", errs.ErrNotFound)
	ErrMemberMissing    = fmt.Errorf("%w: member", errs.ErrNotFound)
)
