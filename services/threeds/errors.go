package threeds

import (
	"errors"
	"fmt"
)

// ErrConfigUnavailable is returned when the gateway is inactive. Callers treat
// it as "no payment config", not as a failure.
var ErrConfigUnavailable = errors.New("payment gateway is not active")

// SetupError means the 3DS gateway instance could not be created.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("3ds setup failed: %v", e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// VerificationError means the card verification call itself failed.
type VerificationError struct {
	Code string
	Err  error
}

func (e *VerificationError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("3ds verification failed: %v", e.Err)
	}
	return fmt.Sprintf("3ds verification failed (%s): %v", e.Code, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// AddressLineTooLongError explains a lookup validation failure caused by an
// oversized street line.
type AddressLineTooLongError struct {
	Line string
	Err  error
}

func (e *AddressLineTooLongError) Error() string {
	return fmt.Sprintf("billing/shipping %s exceeds %d characters", e.Line, MaxStreetLineLength)
}

func (e *AddressLineTooLongError) Unwrap() error { return e.Err }
