package braintree

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"checkout-3ds-api/services/threeds"
	"checkout-3ds-api/types"
)

// DefaultChallengeTimeout bounds how long a shopper has to finish the issuer challenge.
const DefaultChallengeTimeout = 5 * time.Minute

// Gateway adapts the API client to threeds.Gateway.
type Gateway struct {
	client           *Client
	challengeTimeout time.Duration
}

func NewGateway(client *Client, challengeTimeout time.Duration) *Gateway {
	if challengeTimeout <= 0 {
		challengeTimeout = DefaultChallengeTimeout
	}
	return &Gateway{client: client, challengeTimeout: challengeTimeout}
}

// Setup checks the API is reachable with the configured credentials and hands
// back an instance ready to verify cards.
func (g *Gateway) Setup(ctx context.Context) (threeds.ThreeDSecure, error) {
	if err := g.client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("3ds client setup: %w", err)
	}
	return &threeDSecure{client: g.client, challengeTimeout: g.challengeTimeout}, nil
}

type threeDSecure struct {
	client           *Client
	challengeTimeout time.Duration
}

func (t *threeDSecure) VerifyCard(ctx context.Context, params *threeds.VerifyCardParams) (*threeds.VerifyCardResponse, error) {
	lookup, err := t.client.PerformLookup(ctx, lookupInput{
		PaymentMethodID:       params.Nonce,
		Amount:                params.Amount,
		Bin:                   params.Bin,
		Email:                 params.Email,
		ChallengeRequested:    params.ChallengeRequested,
		CollectDeviceData:     params.CollectDeviceData,
		BillingAddress:        params.BillingAddress,
		AdditionalInformation: params.AdditionalInformation,
	})
	if err != nil {
		return nil, err
	}

	if params.OnLookupComplete != nil {
		data := threeds.LookupData{LookupID: lookup.LookupID, ChallengeRequired: lookup.ChallengeRequired}
		if err := params.OnLookupComplete(ctx, data); err != nil {
			return nil, &types.SDKError{Code: types.LookupError, Message: err.Error()}
		}
	}

	if !lookup.ChallengeRequired {
		return toResponse(lookup.Result), nil
	}

	if lookup.AcsURL == "" {
		return nil, &types.SDKError{Code: types.FrameError, Message: "challenge required but no ACS url returned"}
	}

	frame := threeds.NewFrame(types.ThreeDSResponse{
		LookupID:          lookup.LookupID,
		AcsUrl:            lookup.AcsURL,
		Payload:           lookup.Payload,
		TransID:           lookup.TransactionID,
		ChallengeRequired: true,
	})

	if params.AddFrame != nil {
		if err := params.AddFrame(ctx, frame); err != nil {
			return nil, &types.SDKError{Code: types.FrameError, Message: err.Error()}
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, t.challengeTimeout)
	cb, err := frame.Wait(waitCtx)
	cancel()

	if params.RemoveFrame != nil {
		params.RemoveFrame(ctx)
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Printf("[3DS] Challenge for lookup %s timed out after %v", lookup.LookupID, t.challengeTimeout)
		}
		return nil, &types.SDKError{Code: types.ChallengeCanceled, Message: fmt.Sprintf("challenge not completed: %v", err)}
	}
	if cb.Abandoned {
		return nil, &types.SDKError{Code: types.ChallengeCanceled, Message: "challenge abandoned by shopper"}
	}

	result, err := t.client.Authenticate(ctx, lookup.LookupID, cb.Payload)
	if err != nil {
		return nil, err
	}
	return toResponse(*result), nil
}

func toResponse(r threeDSecureResult) *threeds.VerifyCardResponse {
	return &threeds.VerifyCardResponse{
		Nonce:                  r.Nonce,
		LiabilityShifted:       r.LiabilityShifted,
		LiabilityShiftPossible: r.LiabilityShiftPossible,
	}
}
