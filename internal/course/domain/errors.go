package domain

import (
	"fmt"

	"github.com/smallbiznis/uplink/internal/errs"
)

var ErrNotCourseTier = fmt.Errorf("%w: not a course tier", errs.ErrInvalidTier)
