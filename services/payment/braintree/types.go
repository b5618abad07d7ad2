package braintree

import (
	"encoding/json"

	"checkout-3ds-api/types"
)

type graphQLRequest struct {
	Query     string      `json:"query"`
	Variables interface{} `json:"variables,omitempty"`
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		ErrorClass string `json:"errorClass"`
		LegacyCode string `json:"legacyCode,omitempty"`
	} `json:"extensions"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors,omitempty"`
}

// Client token
type clientTokenInput struct {
	ClientToken *clientTokenOptions `json:"clientToken,omitempty"`
}

type clientTokenOptions struct {
	MerchantAccountID string `json:"merchantAccountId,omitempty"`
}

type clientTokenData struct {
	CreateClientToken struct {
		ClientToken string `json:"clientToken"`
	} `json:"createClientToken"`
}

type pingData struct {
	Ping string `json:"ping"`
}

// Lookup
type lookupInput struct {
	PaymentMethodID       string                          `json:"paymentMethodId"`
	Amount                string                          `json:"amount"`
	MerchantAccountID     string                          `json:"merchantAccountId,omitempty"`
	Bin                   string                          `json:"bin,omitempty"`
	Email                 string                          `json:"email,omitempty"`
	ChallengeRequested    bool                            `json:"challengeRequested"`
	CollectDeviceData     bool                            `json:"collectDeviceData"`
	BillingAddress        types.BillingAddressType        `json:"billingAddress"`
	AdditionalInformation types.AdditionalInformationType `json:"additionalInformation"`
}

type threeDSecureResult struct {
	Nonce                  string `json:"nonce"`
	LiabilityShifted       bool   `json:"liabilityShifted"`
	LiabilityShiftPossible bool   `json:"liabilityShiftPossible"`
}

type lookupResult struct {
	LookupID          string             `json:"lookupId"`
	ChallengeRequired bool               `json:"challengeRequired"`
	AcsURL            string             `json:"acsUrl"`
	Payload           string             `json:"payload"`
	TransactionID     string             `json:"transactionId"`
	Result            threeDSecureResult `json:"result"`
}

type lookupData struct {
	PerformThreeDSecureLookup lookupResult `json:"performThreeDSecureLookup"`
}

// Authentication after a challenge
type authenticateInput struct {
	LookupID string `json:"lookupId"`
	Payload  string `json:"payload"`
}

type authenticateData struct {
	AuthenticateThreeDSecure threeDSecureResult `json:"authenticateThreeDSecure"`
}

const (
	pingQuery = `query Ping { ping }`

	clientTokenMutation = `mutation ClientToken($input: CreateClientTokenInput) {
  createClientToken(input: $input) { clientToken }
}`

	lookupMutation = `mutation Lookup($input: PerformThreeDSecureLookupInput!) {
  performThreeDSecureLookup(input: $input) {
    lookupId challengeRequired acsUrl payload transactionId
    result { nonce liabilityShifted liabilityShiftPossible }
  }
}`

	authenticateMutation = `mutation Authenticate($input: AuthenticateThreeDSecureInput!) {
  authenticateThreeDSecure(input: $input) { nonce liabilityShifted liabilityShiftPossible }
}`
)
