package model

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest    = errors.New("invalid order request")
	ErrMissingParameters = fmt.Errorf("%w: missing order parameters", ErrInvalidRequest)
	ErrDuplicateOrder    = errors.New("duplicate order")
	ErrPositionConflict  = errors.New("position conflict")
)

// IsRejection reports whether err is an expected guard rejection rather than
// a failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrDuplicateOrder) || errors.Is(err, ErrPositionConflict)
}
