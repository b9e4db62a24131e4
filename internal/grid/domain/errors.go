package domain

import (
	"errors"
	"fmt"

	"github.com/smallbiznis/uplink/internal/errs"
)

var (
	ErrGridMissing = fmt.Errorf("%w: grid", errs.ErrNotFound)
	ErrOwnGrid     = fmt.Errorf("%w: cannot join own grid", errs.ErrInvalidRequest)
	ErrNotGridTier = fmt.Errorf("%w: not a grid tier", errs.ErrInvalidTier)
	ErrSeatRace    = errors.New("grid seat claimed concurrently")
)
