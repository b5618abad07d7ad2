package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AddressRequest is a quote address as the checkout page sends it.
type AddressRequest struct {
	FirstName  string   `json:"firstname"`
	LastName   string   `json:"lastname"`
	Street     []string `json:"street"`
	City       string   `json:"city"`
	RegionCode string   `json:"region_code,omitempty"`
	Postcode   string   `json:"postcode"`
	CountryID  string   `json:"country_id"`
	Telephone  string   `json:"telephone"`
}

type QuoteRequest struct {
	GrandTotal      decimal.Decimal `json:"grand_total"`
	BillingAddress  AddressRequest  `json:"billing_address"`
	ShippingAddress *AddressRequest `json:"shipping_address,omitempty"`
	IsVirtual       bool            `json:"is_virtual"`
}

type PaymentRequest struct {
	Method string `json:"method"`
	Nonce  string `json:"nonce"`
	Bin    string `json:"bin"`
	Email  string `json:"email,omitempty"`
}

// VerifyRequest starts a 3D Secure verification for the session's quote.
type VerifyRequest struct {
	Quote   QuoteRequest   `json:"quote"`
	Payment PaymentRequest `json:"payment"`
}

// ChallengeData is handed to the browser so it can open the issuer challenge.
type ChallengeData struct {
	AcsURL    string     `json:"acs_url"`
	Payload   string     `json:"payload"`
	TransID   string     `json:"trans_id,omitempty"`
	LookupID  string     `json:"lookup_id"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// AttemptResponse is the snapshot of one verification attempt.
type AttemptResponse struct {
	AttemptID  string         `json:"attempt_id"`
	State      string         `json:"state"`
	Status     string         `json:"status,omitempty"`
	Nonce      string         `json:"nonce,omitempty"`
	Message    string         `json:"message,omitempty"`
	SkipReason string         `json:"skip_reason,omitempty"`
	Loading    bool           `json:"loading"`
	Challenge  *ChallengeData `json:"challenge,omitempty"`
}

// Terminal reports whether the attempt reached an outcome.
func (r AttemptResponse) Terminal() bool {
	return r.Status != ""
}

// ChallengeResultRequest is posted by the browser when the challenge window closes.
type ChallengeResultRequest struct {
	Payload   string `json:"payload"`
	TransID   string `json:"trans_id,omitempty"`
	Abandoned bool   `json:"abandoned"`
}
