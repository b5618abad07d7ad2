package threeds

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/shopspring/decimal"
)

// State is a step of the verification flow.
type State int

const (
	StateIdle State = iota
	StateEvaluating
	StateSkipped
	StateAwaitingChallenge
	StateApproved
	StateDeclined
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEvaluating:
		return "evaluating"
	case StateSkipped:
		return "skipped"
	case StateAwaitingChallenge:
		return "awaiting_challenge"
	case StateApproved:
		return "approved"
	case StateDeclined:
		return "declined"
	}
	return "unknown"
}

// Quote is the part of the checkout quote the verification reads.
type Quote struct {
	GrandTotal      decimal.Decimal
	BillingAddress  Address
	ShippingAddress Address
	IsVirtual       bool
}

// Payment is the payment being verified. Nonce is replaced by the verified
// nonce when the verification approves it.
type Payment struct {
	Method string
	Nonce  string
	Bin    string
	Email  string
}

// Verifier runs 3D Secure verifications for one checkout session.
type Verifier struct {
	cfg        Config
	gateway    Gateway
	translator Translator

	mu       sync.Mutex
	instance ThreeDSecure
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithTranslator sets the translator used for shopper messages.
func WithTranslator(t Translator) Option {
	return func(v *Verifier) {
		if t != nil {
			v.translator = t
		}
	}
}

func NewVerifier(cfg Config, gw Gateway, opts ...Option) *Verifier {
	v := &Verifier{
		cfg:        cfg,
		gateway:    gw,
		translator: nopTranslator{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Config returns the session configuration the verifier was built with.
func (v *Verifier) Config() Config {
	return v.cfg
}

// Verify decides whether the payment needs 3D Secure and, if so, runs the
// challenge through the gateway. It always returns a terminal outcome; gateway
// failures come back as Declined with Err set. Nothing is retried.
func (v *Verifier) Verify(ctx context.Context, quote Quote, payment *Payment, ui ChallengeUI) Outcome {
	if ui == nil {
		ui = NopUI{}
	}
	if payment == nil {
		payment = &Payment{}
	}

	ui.StateChanged(StateEvaluating)

	total := quote.GrandTotal.Round(2)
	billing := Normalize(quote.BillingAddress)
	var shipping *Address
	if !quote.IsVirtual {
		s := Normalize(quote.ShippingAddress)
		shipping = &s
	}

	if reason := v.skipReason(total, billing, payment); reason != "" {
		ui.StateChanged(StateSkipped)
		return Outcome{Status: StatusSkipped, SkipReason: reason}
	}

	ui.StateChanged(StateAwaitingChallenge)
	ui.StartLoader()

	tds, err := v.acquire(ctx)
	if err != nil {
		ui.StopLoader()
		log.Printf("[3DS] Unable to set up 3D Secure: %v", err)
		return v.finish(ui, declined(v.translator, MsgTryAnotherPayment, &SetupError{Err: err}))
	}

	scope := &frameScope{ui: ui}
	var mountErr error

	params := v.buildParams(total, billing, shipping, payment)
	params.OnLookupComplete = func(context.Context, LookupData) error { return nil }
	params.AddFrame = func(ctx context.Context, frame *Frame) error {
		if err := scope.acquire(ctx, frame); err != nil {
			log.Printf("[3DS] Unable to verify card over 3D Secure: %v", err)
			mountErr = err
			return err
		}
		return nil
	}
	params.RemoveFrame = func(ctx context.Context) {
		ui.StartLoader()
		scope.release(ctx)
	}

	resp, err := tds.VerifyCard(ctx, params)
	scope.release(context.Background())
	ui.StopLoader()

	switch {
	case mountErr != nil:
		return v.finish(ui, declined(v.translator, MsgTryAnotherPayment, &VerificationError{Err: mountErr}))
	case err != nil:
		log.Printf("[3DS] 3DSecure validation failed: %v", err)
		return v.finish(ui, InterpretError(err, billing, shipping, v.translator))
	}

	out := Interpret(resp, v.translator)
	if out.Status == StatusApproved {
		payment.Nonce = out.Nonce
	}
	return v.finish(ui, out)
}

func (v *Verifier) skipReason(total decimal.Decimal, billing Address, payment *Payment) SkipReason {
	switch {
	case !v.cfg.Enabled:
		return SkipDisabled
	case v.cfg.IsVaultExempt(payment.Method):
		return SkipVaultCvv
	case !v.cfg.IsAmountAvailable(total):
		return SkipBelowAmount
	case !v.cfg.IsCountryAvailable(billing.CountryID):
		return SkipCountry
	}
	return ""
}

// acquire returns the gateway instance, setting it up on first use. A failed
// setup is not remembered, so the next attempt tries again.
func (v *Verifier) acquire(ctx context.Context) (ThreeDSecure, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.instance != nil {
		return v.instance, nil
	}
	if v.gateway == nil {
		return nil, errors.New("no 3ds gateway configured")
	}

	tds, err := v.gateway.Setup(ctx)
	if err != nil {
		return nil, err
	}
	if tds == nil {
		return nil, errors.New("3ds gateway returned no instance")
	}
	v.instance = tds
	return tds, nil
}

func (v *Verifier) buildParams(total decimal.Decimal, billing Address, shipping *Address, payment *Payment) *VerifyCardParams {
	params := &VerifyCardParams{
		Amount:             total.StringFixed(2),
		Nonce:              payment.Nonce,
		Bin:                payment.Bin,
		CollectDeviceData:  true,
		ChallengeRequested: v.cfg.ChallengeRequested,
		Email:              payment.Email,
		BillingAddress:     billingAddress(billing),
	}
	params.AdditionalInformation.IPAddress = v.cfg.IPAddress
	if shipping != nil {
		params.AdditionalInformation = shippingInformation(*shipping, v.cfg.IPAddress)
	}
	return params
}

func (v *Verifier) finish(ui ChallengeUI, out Outcome) Outcome {
	if out.Status == StatusApproved {
		ui.StateChanged(StateApproved)
	} else {
		ui.StateChanged(StateDeclined)
	}
	return out
}
