package domain

import "errors"

// Sentinel errors shared across packages. Validation and not-found
// failures short-circuit a calculation before any line item exists;
// everything else is swallowed at the boundary that caught it.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrDuplicate  = errors.New("duplicate transaction id")
)
