package threeds

import (
	"context"
	"errors"
	"sync"

	"checkout-3ds-api/types"
)

// Gateway creates 3DS instances. Setup is the slow, one-time part of the flow
// (client authorization, API handshake).
type Gateway interface {
	Setup(ctx context.Context) (ThreeDSecure, error)
}

// ThreeDSecure runs a single card verification. Implementations call
// params.AddFrame when the issuer wants a challenge and params.RemoveFrame
// once it is over, and return when the verification reaches a terminal state.
type ThreeDSecure interface {
	VerifyCard(ctx context.Context, params *VerifyCardParams) (*VerifyCardResponse, error)
}

// LookupData is handed to OnLookupComplete before any challenge starts.
type LookupData struct {
	LookupID          string
	ChallengeRequired bool
}

// VerifyCardParams is the verification request for one payment attempt.
type VerifyCardParams struct {
	Amount                string                          `json:"amount"`
	Nonce                 string                          `json:"nonce"`
	Bin                   string                          `json:"bin,omitempty"`
	CollectDeviceData     bool                            `json:"collectDeviceData"`
	ChallengeRequested    bool                            `json:"challengeRequested"`
	Email                 string                          `json:"email,omitempty"`
	BillingAddress        types.BillingAddressType        `json:"billingAddress"`
	AdditionalInformation types.AdditionalInformationType `json:"additionalInformation"`

	OnLookupComplete func(ctx context.Context, data LookupData) error `json:"-"`
	AddFrame         func(ctx context.Context, frame *Frame) error    `json:"-"`
	RemoveFrame      func(ctx context.Context)                        `json:"-"`
}

// VerifyCardResponse is the terminal verification result.
type VerifyCardResponse struct {
	Nonce                  string `json:"nonce"`
	LiabilityShifted       bool   `json:"liabilityShifted"`
	LiabilityShiftPossible bool   `json:"liabilityShiftPossible"`
}

// ErrFrameClosed is returned by Frame.Complete when the frame already has a result.
var ErrFrameClosed = errors.New("challenge frame already completed")

// Frame is the issuer challenge the shopper must complete. The UI layer shows
// it and calls Complete with whatever the challenge window returned.
type Frame struct {
	AcsURL   string `json:"acsUrl"`
	Payload  string `json:"payload,omitempty"`
	TransID  string `json:"transId,omitempty"`
	LookupID string `json:"-"`

	once   sync.Once
	result chan types.ThreeDSCallback
}

// NewFrame returns a frame waiting for its challenge result.
func NewFrame(lookup types.ThreeDSResponse) *Frame {
	return &Frame{
		AcsURL:   lookup.AcsUrl,
		Payload:  lookup.Payload,
		TransID:  lookup.TransID,
		LookupID: lookup.LookupID,
		result:   make(chan types.ThreeDSCallback, 1),
	}
}

// Complete delivers the challenge result. Only the first call counts.
func (f *Frame) Complete(cb types.ThreeDSCallback) error {
	err := ErrFrameClosed
	f.once.Do(func() {
		f.result <- cb
		err = nil
	})
	return err
}

// Wait blocks until the challenge result arrives or ctx is done.
func (f *Frame) Wait(ctx context.Context) (types.ThreeDSCallback, error) {
	select {
	case cb := <-f.result:
		return cb, nil
	case <-ctx.Done():
		return types.ThreeDSCallback{}, ctx.Err()
	}
}
