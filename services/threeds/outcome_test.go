package threeds

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout-3ds-api/types"
)

func TestInterpret_LiabilityTable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		shifted, possible bool
		want              Status
	}{
		{true, true, StatusApproved},
		{true, false, StatusApproved},
		{false, false, StatusApproved},
		{false, true, StatusDeclined},
	}

	for _, tc := range cases {
		out := Interpret(&VerifyCardResponse{
			Nonce:                  "verified-nonce",
			LiabilityShifted:       tc.shifted,
			LiabilityShiftPossible: tc.possible,
		}, nil)
		assert.Equal(t, tc.want, out.Status, "shifted=%v possible=%v", tc.shifted, tc.possible)

		if tc.want == StatusApproved {
			assert.Equal(t, "verified-nonce", out.Nonce)
			assert.True(t, out.Proceed())
		} else {
			assert.Empty(t, out.Nonce)
			assert.Equal(t, MsgTryAnotherPayment, out.Message)
			assert.NoError(t, out.Err)
			assert.False(t, out.Proceed())
		}
	}
}

func TestInterpret_NilResponse(t *testing.T) {
	t.Parallel()

	out := Interpret(nil, nil)
	assert.Equal(t, StatusDeclined, out.Status)
	var verr *VerificationError
	assert.ErrorAs(t, out.Err, &verr)
}

func TestInterpretError_GenericFailures(t *testing.T) {
	t.Parallel()

	billing := Address{Street: []string{strings.Repeat("x", 60)}}

	for _, err := range []error{
		errors.New("connection reset"),
		&types.SDKError{Code: types.LookupError, Message: "lookup failed"},
		fmt.Errorf("wrapped: %w", &types.SDKError{Code: types.ChallengeCanceled}),
	} {
		out := InterpretError(err, billing, nil, nil)
		assert.Equal(t, StatusDeclined, out.Status)
		assert.Equal(t, MsgTryAnotherPayment, out.Message, "long lines only matter for lookup validation errors")

		var verr *VerificationError
		require.ErrorAs(t, out.Err, &verr)
		assert.ErrorIs(t, out.Err, err)
	}
}

func TestInterpretError_LookupValidationNamesLine1(t *testing.T) {
	t.Parallel()

	billing := Address{Street: []string{strings.Repeat("a", 55), "Suite 1"}}
	err := types.NewLookupValidationError("Billing line1 format is invalid.")

	out := InterpretError(err, billing, nil, nil)

	assert.Equal(t, StatusDeclined, out.Status)
	assert.Equal(t, "Billing/Shipping line1 must be string and less than 50 characters. Please update the address and try again.", out.Message)

	var lineErr *AddressLineTooLongError
	require.ErrorAs(t, out.Err, &lineErr)
	assert.Equal(t, "line1", lineErr.Line)
}

func TestInterpretError_LookupValidationNamesShippingLine2(t *testing.T) {
	t.Parallel()

	billing := Address{Street: []string{"1 Main St", "Suite 1"}}
	shipping := &Address{Street: []string{"2 Side St", strings.Repeat("b", 51)}}

	out := InterpretError(types.NewLookupValidationError("bad"), billing, shipping, nil)

	assert.Contains(t, out.Message, "line2")
}

func TestInterpretError_LookupValidationUsesProcessorMessage(t *testing.T) {
	t.Parallel()

	billing := Address{Street: []string{"1 Main St"}}
	err := types.NewLookupValidationError("Billing postal code is invalid for country.")

	out := InterpretError(err, billing, nil, Catalog{
		"Billing postal code is invalid for country.": "Code postal de facturation invalide.",
	})

	assert.Equal(t, "Code postal de facturation invalide.", out.Message)
	var verr *VerificationError
	require.ErrorAs(t, out.Err, &verr)
	assert.Equal(t, types.LookupValidationError, verr.Code)
}

func TestInterpretError_LookupValidationWithoutNestedMessage(t *testing.T) {
	t.Parallel()

	err := &types.SDKError{Code: types.LookupValidationError, Message: "invalid"}
	out := InterpretError(err, Address{}, nil, nil)

	assert.Equal(t, MsgTryAnotherPayment, out.Message)
}

func TestCatalog_Translate(t *testing.T) {
	t.Parallel()

	c := Catalog{MsgTryAnotherPayment: "Bitte versuchen Sie es mit einer anderen Zahlungsart.", "empty": ""}

	assert.Equal(t, "Bitte versuchen Sie es mit einer anderen Zahlungsart.", c.Translate(MsgTryAnotherPayment))
	assert.Equal(t, "unknown", c.Translate("unknown"))
	assert.Equal(t, "empty", c.Translate("empty"))
}
