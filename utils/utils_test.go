package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout-3ds-api/models"
)

func TestRoundAndFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "50.00", FormatAmount(Round(decimal.RequireFromString("49.995"))))
	assert.Equal(t, "10.10", FormatAmount(decimal.RequireFromString("10.1")))
}

func TestParseAmount(t *testing.T) {
	t.Parallel()

	d, err := ParseAmount("12.34")
	require.NoError(t, err)
	assert.Equal(t, "12.34", FormatAmount(d))

	_, err = ParseAmount("-1")
	assert.Error(t, err)
	_, err = ParseAmount("abc")
	assert.Error(t, err)
}

func TestGenerateRandomString(t *testing.T) {
	t.Parallel()

	a := GenerateRandomString(32)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, GenerateRandomString(32))
}

func TestMaskBin(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "4111**", MaskBin("411111"))
	assert.Equal(t, "****", MaskBin("41"))
}

func TestSendErrorResponse(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	SendErrorResponse(w, http.StatusBadRequest, "bad")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp models.APIResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "bad", resp.Message)
}
