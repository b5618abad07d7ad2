package threeds

import (
	"errors"

	"checkout-3ds-api/types"
)

// Status is the terminal state of a verification.
type Status string

const (
	StatusApproved Status = "approved"
	StatusDeclined Status = "declined"
	StatusSkipped  Status = "skipped"
)

// SkipReason says why no challenge was attempted.
type SkipReason string

const (
	SkipDisabled    SkipReason = "disabled"
	SkipVaultCvv    SkipReason = "vault_cvv"
	SkipBelowAmount SkipReason = "below_threshold"
	SkipCountry     SkipReason = "country_not_eligible"
)

// Outcome is consumed once by the checkout payment step. Approved and Skipped
// let the checkout continue; Declined carries the message for the shopper.
type Outcome struct {
	Status     Status     `json:"status"`
	Nonce      string     `json:"nonce,omitempty"`
	Message    string     `json:"message,omitempty"`
	SkipReason SkipReason `json:"skipReason,omitempty"`
	Err        error      `json:"-"`
}

// Proceed reports whether the checkout may place the order with this payment.
func (o Outcome) Proceed() bool {
	return o.Status == StatusApproved || o.Status == StatusSkipped
}

func declined(t Translator, msg string, err error) Outcome {
	return Outcome{Status: StatusDeclined, Message: t.Translate(msg), Err: err}
}

// Interpret maps the liability flags of a successful verification call.
// Liability shifted to the issuer, or no shift possible at all, approves the
// payment. A shift that was possible but did not happen is a decline.
func Interpret(resp *VerifyCardResponse, t Translator) Outcome {
	if t == nil {
		t = nopTranslator{}
	}
	if resp == nil {
		return declined(t, MsgTryAnotherPayment, &VerificationError{Err: errors.New("empty verification response")})
	}
	if resp.LiabilityShifted || !resp.LiabilityShiftPossible {
		return Outcome{Status: StatusApproved, Nonce: resp.Nonce}
	}
	return declined(t, MsgTryAnotherPayment, nil)
}

// InterpretError maps a failed verification call to a decline. Lookup
// validation failures are narrowed down to an oversized street line when one
// of the addresses has one, and otherwise surface the processor message.
func InterpretError(err error, billing Address, shipping *Address, t Translator) Outcome {
	if t == nil {
		t = nopTranslator{}
	}

	var sdkErr *types.SDKError
	if !errors.As(err, &sdkErr) {
		return declined(t, MsgTryAnotherPayment, &VerificationError{Err: err})
	}

	if sdkErr.Code != types.LookupValidationError {
		return declined(t, MsgTryAnotherPayment, &VerificationError{Code: sdkErr.Code, Err: err})
	}

	if line := streetLineTooLong(billing, shipping); line != "" {
		return declined(t, lineTooLongMessage(line), &AddressLineTooLongError{Line: line, Err: err})
	}

	msg := sdkErr.OriginalMessage()
	if msg == "" {
		msg = MsgTryAnotherPayment
	}
	return declined(t, msg, &VerificationError{Code: sdkErr.Code, Err: err})
}
