package domain

import (
	"fmt"

	"github.com/smallbiznis/uplink/internal/errs"
)

var ErrMemberMissing = fmt.Errorf("%w: member", errs.ErrNotFound)
