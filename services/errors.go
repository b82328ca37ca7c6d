package services

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the services. Callers match them with errors.Is;
// concrete errors wrap one of these with detail.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidAmount     = fmt.Errorf("%w: invalid amount", ErrInvalidInput)
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrConflict          = errors.New("conflict")
	ErrAlreadyCredited   = fmt.Errorf("%w: referral already credited", ErrConflict)
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrConflict)
	ErrUnauthorized      = errors.New("unauthorized")
)
