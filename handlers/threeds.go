package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"

	"checkout-3ds-api/database"
	"checkout-3ds-api/middleware"
	"checkout-3ds-api/models"
	"checkout-3ds-api/queue"
	"checkout-3ds-api/services/payment"
	"checkout-3ds-api/services/threeds"
	"checkout-3ds-api/types"
	"checkout-3ds-api/utils"
)

const (
	// verifyMargin is added to the challenge timeout for the lookup and
	// authentication calls around the challenge.
	verifyMargin    = 30 * time.Second
	recordTimeout   = 5 * time.Second
	attemptRetained = 15 * time.Minute
	janitorInterval = time.Minute
)

// ConfigSource provides the checkout configuration and the per-session
// verification settings.
type ConfigSource interface {
	IsActive() bool
	Load(ctx context.Context, remoteIP string, tokens payment.TokenCache) (*payment.CheckoutConfig, error)
	VerificationConfig(remoteIP string) threeds.Config
}

// ChallengeIssuer issues the token that authorizes posting a challenge result.
type ChallengeIssuer interface {
	Issue(attemptID, sessionID string) (string, time.Time, error)
}

// AttemptRecorder queues finished attempts for storage.
type AttemptRecorder interface {
	Enqueue(ctx context.Context, jobType queue.JobType, data map[string]interface{}) (string, error)
}

// AttemptReader loads stored attempts.
type AttemptReader interface {
	GetAttempt(ctx context.Context, id string) (*models.AttemptRecord, error)
}

type ThreeDSOptions struct {
	SessionName      string
	SessionMaxAge    time.Duration
	ChallengeTimeout time.Duration
	VerifyWait       time.Duration
	Translator       threeds.Translator
}

type ThreeDSHandler struct {
	provider ConfigSource
	gateway  threeds.Gateway
	tokens   ChallengeIssuer
	recorder AttemptRecorder
	reader   AttemptReader

	store       sessions.Store
	sessionName string
	sessions    *sessionRegistry
	attempts    *attemptRegistry

	translator       threeds.Translator
	challengeTimeout time.Duration
	verifyWait       time.Duration

	// runs tracks verifications still in flight; runCtx is their parent
	runs     sync.WaitGroup
	runCtx   context.Context
	stopRuns context.CancelFunc
}

func NewThreeDSHandler(provider ConfigSource, gateway threeds.Gateway, tokens ChallengeIssuer,
	recorder AttemptRecorder, reader AttemptReader, store sessions.Store, opts ThreeDSOptions) *ThreeDSHandler {
	if opts.SessionName == "" {
		opts.SessionName = "checkout_session"
	}
	if opts.SessionMaxAge <= 0 {
		opts.SessionMaxAge = 3 * time.Hour
	}
	if opts.VerifyWait <= 0 {
		opts.VerifyWait = 20 * time.Second
	}
	runCtx, stopRuns := context.WithCancel(context.Background())
	return &ThreeDSHandler{
		provider:         provider,
		gateway:          gateway,
		tokens:           tokens,
		recorder:         recorder,
		reader:           reader,
		store:            store,
		sessionName:      opts.SessionName,
		sessions:         newSessionRegistry(opts.SessionMaxAge),
		attempts:         newAttemptRegistry(attemptRetained),
		translator:       opts.Translator,
		challengeTimeout: opts.ChallengeTimeout,
		verifyWait:       opts.VerifyWait,
		runCtx:           runCtx,
		stopRuns:         stopRuns,
	}
}

// Drain waits for in-flight verifications. When ctx ends first, the pending
// ones are cancelled, which declines them, and Drain waits for their records
// to be enqueued.
func (h *ThreeDSHandler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		log.Printf("Cancelling 3DS verifications still in flight")
		h.stopRuns()
		<-done
		return ctx.Err()
	}
}

// RunJanitor evicts idle sessions and old attempts until ctx is done.
func (h *ThreeDSHandler) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			idle := h.sessions.sweep(now)
			done := h.attempts.sweep(now)
			if idle > 0 || done > 0 {
				log.Printf("Evicted %d idle checkout sessions and %d finished attempts", idle, done)
			}
		}
	}
}

// GetConfig returns the checkout payment configuration, or an empty object
// when the gateway is not active.
func (h *ThreeDSHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	session, err := h.checkoutSession(w, r)
	if err != nil {
		log.Printf("[RequestID: %s] Error saving session: %v", requestID, err)
		utils.SendErrorResponse(w, http.StatusInternalServerError, "Failed to start checkout session")
		return
	}

	cfg, err := h.provider.Load(r.Context(), middleware.ClientIP(r), session)
	if errors.Is(err, threeds.ErrConfigUnavailable) {
		utils.SendJSON(w, http.StatusOK, struct{}{})
		return
	}
	if err != nil {
		log.Printf("[RequestID: %s] Error loading checkout config: %v", requestID, err)
		utils.SendErrorResponse(w, http.StatusInternalServerError, "Failed to load payment configuration")
		return
	}

	utils.SendJSON(w, http.StatusOK, cfg)
}

// Verify starts a verification and answers once it reached an outcome or
// needs the shopper to complete a challenge. A verification still running
// after the wait period is answered with 202 and can be polled.
func (h *ThreeDSHandler) Verify(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req models.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[RequestID: %s] Error decoding verify request: %v", requestID, err)
		utils.SendErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := validateVerifyRequest(&req); msg != "" {
		utils.SendErrorResponse(w, http.StatusBadRequest, msg)
		return
	}
	if !h.provider.IsActive() {
		utils.SendErrorResponse(w, http.StatusServiceUnavailable, "Payment gateway is not active")
		return
	}

	session, err := h.checkoutSession(w, r)
	if err != nil {
		log.Printf("[RequestID: %s] Error saving session: %v", requestID, err)
		utils.SendErrorResponse(w, http.StatusInternalServerError, "Failed to start checkout session")
		return
	}

	remoteIP := middleware.ClientIP(r)
	verifier := session.verifierFor(func() *threeds.Verifier {
		return threeds.NewVerifier(h.provider.VerificationConfig(remoteIP), h.gateway,
			threeds.WithTranslator(h.translator))
	})

	quote := toQuote(req.Quote)
	pay := &threeds.Payment{
		Method: req.Payment.Method,
		Nonce:  req.Payment.Nonce,
		Bin:    req.Payment.Bin,
		Email:  req.Payment.Email,
	}

	att := newAttempt(uuid.New().String(), session.id)
	att.amount = utils.FormatAmount(quote.GrandTotal)
	att.countryID = quote.BillingAddress.CountryID
	att.paymentMethod = pay.Method
	h.attempts.add(att)

	log.Printf("[RequestID: %s] Starting 3DS attempt %s (amount %s, country %s, bin %s)",
		requestID, att.id, att.amount, att.countryID, utils.MaskBin(pay.Bin))

	h.runs.Add(1)
	go h.run(verifier, att, quote, pay)

	ctx, cancel := context.WithTimeout(r.Context(), h.verifyWait)
	defer cancel()
	h.respond(w, requestID, att.wait(ctx, progressed), session.id)
}

// run drives the verification to its outcome independently of the request
// that started it.
func (h *ThreeDSHandler) run(verifier *threeds.Verifier, att *attempt, quote threeds.Quote, pay *threeds.Payment) {
	defer h.runs.Done()

	timeout := verifyMargin
	if h.challengeTimeout > 0 {
		timeout += h.challengeTimeout
	}
	ctx, cancel := context.WithTimeout(h.runCtx, timeout)
	defer cancel()

	out := verifier.Verify(ctx, quote, pay, att)
	if out.Err != nil {
		log.Printf("[Attempt: %s] 3DS verification error: %v", att.id, out.Err)
	}
	att.finish(out)
	log.Printf("[Attempt: %s] 3DS verification finished with status %s", att.id, out.Status)

	h.record(att)
}

func (h *ThreeDSHandler) record(att *attempt) {
	if h.recorder == nil {
		return
	}

	data, err := queue.EncodeData(att.record())
	if err != nil {
		log.Printf("[Attempt: %s] Error encoding attempt record: %v", att.id, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	jobID, err := h.recorder.Enqueue(ctx, queue.JobTypeRecordAttempt, data)
	if err != nil {
		log.Printf("[Attempt: %s] Error queueing attempt record: %v", att.id, err)
		return
	}
	log.Printf("[Attempt: %s] Queued attempt record as job %s", att.id, jobID)
}

// GetAttempt returns the attempt snapshot. Live attempts are answered from
// memory, older ones from storage. Attempts of other sessions are not found.
func (h *ThreeDSHandler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	id := mux.Vars(r)["id"]
	sessionID := h.sessionID(r)

	if att, ok := h.attempts.get(id); ok {
		if sessionID == "" || att.sessionID != sessionID {
			utils.SendErrorResponse(w, http.StatusNotFound, "Attempt not found")
			return
		}
		h.respond(w, requestID, att.snapshot(), sessionID)
		return
	}

	if h.reader == nil {
		utils.SendErrorResponse(w, http.StatusNotFound, "Attempt not found")
		return
	}

	rec, err := h.reader.GetAttempt(r.Context(), id)
	if errors.Is(err, database.ErrAttemptNotFound) || (err == nil && rec.SessionID != sessionID) {
		utils.SendErrorResponse(w, http.StatusNotFound, "Attempt not found")
		return
	}
	if err != nil {
		log.Printf("[RequestID: %s] Error loading attempt %s: %v", requestID, id, err)
		utils.SendErrorResponse(w, http.StatusInternalServerError, "Failed to load attempt")
		return
	}

	utils.SendJSON(w, http.StatusOK, rec.Response())
}

// SubmitChallenge delivers the challenge window result to the running
// verification and answers with the outcome.
func (h *ThreeDSHandler) SubmitChallenge(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	id := mux.Vars(r)["id"]

	att, ok := h.attempts.get(id)
	if !ok {
		utils.SendErrorResponse(w, http.StatusNotFound, "Attempt not found")
		return
	}
	if claims := middleware.GetChallengeFromContext(r.Context()); claims == nil || claims.SessionID != att.sessionID {
		utils.SendErrorResponse(w, http.StatusForbidden, "Challenge token does not match the session")
		return
	}

	var req models.ChallengeResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[RequestID: %s] Error decoding challenge result: %v", requestID, err)
		utils.SendErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !req.Abandoned && req.Payload == "" {
		utils.SendErrorResponse(w, http.StatusBadRequest, "Challenge payload is required")
		return
	}

	frame := att.currentFrame()
	if frame == nil {
		utils.SendErrorResponse(w, http.StatusConflict, "No challenge in progress")
		return
	}

	err := frame.Complete(types.ThreeDSCallback{
		TransID:   req.TransID,
		Payload:   req.Payload,
		Abandoned: req.Abandoned,
	})
	if errors.Is(err, threeds.ErrFrameClosed) {
		utils.SendErrorResponse(w, http.StatusConflict, "Challenge already completed")
		return
	}

	log.Printf("[RequestID: %s] Challenge result received for attempt %s (abandoned: %v)", requestID, id, req.Abandoned)

	ctx, cancel := context.WithTimeout(r.Context(), h.verifyWait)
	defer cancel()
	h.respond(w, requestID, att.wait(ctx, terminal), att.sessionID)
}

// respond writes a snapshot, attaching a challenge token when a challenge is
// shown. Unfinished attempts are answered with 202.
func (h *ThreeDSHandler) respond(w http.ResponseWriter, requestID string, snap models.AttemptResponse, sessionID string) {
	if snap.Challenge != nil {
		token, expiresAt, err := h.tokens.Issue(snap.AttemptID, sessionID)
		if err != nil {
			log.Printf("[RequestID: %s] Error issuing challenge token for attempt %s: %v", requestID, snap.AttemptID, err)
			utils.SendErrorResponse(w, http.StatusInternalServerError, "Failed to start challenge")
			return
		}
		snap.Challenge.Token = token
		snap.Challenge.ExpiresAt = &expiresAt
	}

	status := http.StatusOK
	if !snap.Terminal() {
		status = http.StatusAccepted
	}
	utils.SendJSON(w, status, snap)
}

// validateVerifyRequest returns the message for the first invalid field.
func validateVerifyRequest(req *models.VerifyRequest) string {
	switch {
	case strings.TrimSpace(req.Payment.Nonce) == "":
		return "Payment nonce is required"
	case req.Quote.GrandTotal.IsNegative():
		return "Grand total cannot be negative"
	case req.Quote.BillingAddress.CountryID == "":
		return "Billing country is required"
	}
	return ""
}

func toQuote(q models.QuoteRequest) threeds.Quote {
	quote := threeds.Quote{
		GrandTotal:     utils.Round(q.GrandTotal),
		BillingAddress: toAddress(q.BillingAddress),
		IsVirtual:      q.IsVirtual,
	}
	if q.ShippingAddress != nil {
		quote.ShippingAddress = toAddress(*q.ShippingAddress)
	}
	return quote
}

func toAddress(a models.AddressRequest) threeds.Address {
	return threeds.Address{
		FirstName:  a.FirstName,
		LastName:   a.LastName,
		Street:     a.Street,
		City:       a.City,
		RegionCode: a.RegionCode,
		Postcode:   a.Postcode,
		CountryID:  a.CountryID,
		Telephone:  a.Telephone,
	}
}
