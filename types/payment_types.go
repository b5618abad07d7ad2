package types

import "fmt"

// Error codes reported by the 3D Secure gateway.
const (
	LookupValidationError = "THREEDS_LOOKUP_VALIDATION_ERROR"
	LookupError           = "THREEDS_LOOKUP_ERROR"
	ChallengeCanceled     = "THREEDS_CHALLENGE_CANCELED"
	FrameError            = "THREEDS_FRAME_ERROR"
	AuthenticationError   = "THREEDS_AUTHENTICATION_ERROR"
)

// BillingAddressType is the billing address shape the 3DS lookup expects
type BillingAddressType struct {
	GivenName         string `json:"givenName,omitempty"`
	Surname           string `json:"surname,omitempty"`
	PhoneNumber       string `json:"phoneNumber,omitempty"`
	StreetAddress     string `json:"streetAddress,omitempty"`
	ExtendedAddress   string `json:"extendedAddress,omitempty"`
	Locality          string `json:"locality,omitempty"`
	Region            string `json:"region,omitempty"`
	PostalCode        string `json:"postalCode,omitempty"`
	CountryCodeAlpha2 string `json:"countryCodeAlpha2,omitempty"`
}

// ShippingAddressType is the shipping address nested in additional information
type ShippingAddressType struct {
	StreetAddress     string `json:"streetAddress,omitempty"`
	ExtendedAddress   string `json:"extendedAddress,omitempty"`
	Locality          string `json:"locality,omitempty"`
	Region            string `json:"region,omitempty"`
	PostalCode        string `json:"postalCode,omitempty"`
	CountryCodeAlpha2 string `json:"countryCodeAlpha2,omitempty"`
}

// AdditionalInformationType carries risk data; shipping fields are only set for
// quotes that ship something.
type AdditionalInformationType struct {
	ShippingGivenName string               `json:"shippingGivenName,omitempty"`
	ShippingSurname   string               `json:"shippingSurname,omitempty"`
	ShippingAddress   *ShippingAddressType `json:"shippingAddress,omitempty"`
	ShippingPhone     string               `json:"shippingPhone,omitempty"`
	IPAddress         string               `json:"ipAddress,omitempty"`
}

// ThreeDSResponse is the lookup data a gateway hands back before any challenge
type ThreeDSResponse struct {
	LookupID          string `json:"lookupId"`
	AcsUrl            string `json:"acsUrl,omitempty"`
	Payload           string `json:"payload,omitempty"`
	TransID           string `json:"transId,omitempty"`
	ChallengeRequired bool   `json:"challengeRequired"`
}

// ThreeDSCallback is what the browser posts back once the challenge window closes
type ThreeDSCallback struct {
	TransID   string `json:"transId,omitempty"`
	Payload   string `json:"payload,omitempty"`
	Abandoned bool   `json:"abandoned,omitempty"`
}

// ErrorBody is the innermost error object of a gateway failure
type ErrorBody struct {
	Message string `json:"message"`
}

// ErrorDetails wraps the error the gateway received from its own upstream
type ErrorDetails struct {
	OriginalError *SDKError `json:"originalError,omitempty"`
}

// SDKError mirrors the nested error structure of the hosted 3DS SDK:
// details.originalError.details.originalError.error.message holds the
// processor message for lookup validation failures.
type SDKError struct {
	Code    string        `json:"code,omitempty"`
	Message string        `json:"message,omitempty"`
	Details *ErrorDetails `json:"details,omitempty"`
	Body    *ErrorBody    `json:"error,omitempty"`
}

func (e *SDKError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// OriginalMessage digs out the processor message two levels down. It returns
// an empty string when any level is missing.
func (e *SDKError) OriginalMessage() string {
	if e == nil || e.Details == nil || e.Details.OriginalError == nil {
		return ""
	}
	inner := e.Details.OriginalError
	if inner.Details == nil || inner.Details.OriginalError == nil {
		return ""
	}
	body := inner.Details.OriginalError.Body
	if body == nil {
		return ""
	}
	return body.Message
}

// NewLookupValidationError builds a validation failure nested the same way the
// hosted SDK nests it.
func NewLookupValidationError(message string) *SDKError {
	return &SDKError{
		Code:    LookupValidationError,
		Message: "Lookup validation failed.",
		Details: &ErrorDetails{
			OriginalError: &SDKError{
				Message: "Request failed.",
				Details: &ErrorDetails{
					OriginalError: &SDKError{
						Body: &ErrorBody{Message: message},
					},
				},
			},
		},
	}
}
