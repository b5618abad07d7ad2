package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"checkout-3ds-api/models"
	"checkout-3ds-api/services/threeds"
	"checkout-3ds-api/types"
)

// attempt is one running verification. It is the ChallengeUI the verifier
// drives, so its snapshot always reflects what the shopper should see.
type attempt struct {
	id            string
	sessionID     string
	amount        string
	countryID     string
	paymentMethod string
	createdAt     time.Time

	mu             sync.Mutex
	state          threeds.State
	loading        bool
	frame          *threeds.Frame
	challengeShown bool
	outcome        *threeds.Outcome
	finishedAt     time.Time
	changed        chan struct{}
}

func newAttempt(id, sessionID string) *attempt {
	return &attempt{
		id:        id,
		sessionID: sessionID,
		createdAt: time.Now().UTC(),
		changed:   make(chan struct{}),
	}
}

// notifyLocked wakes every waiter. The caller holds a.mu.
func (a *attempt) notifyLocked() {
	close(a.changed)
	a.changed = make(chan struct{})
}

func (a *attempt) StartLoader() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loading = true
	a.notifyLocked()
}

func (a *attempt) StopLoader() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loading = false
	a.notifyLocked()
}

func (a *attempt) MountFrame(_ context.Context, frame *threeds.Frame) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.outcome != nil {
		return errors.New("attempt already finished")
	}
	a.frame = frame
	a.challengeShown = true
	a.notifyLocked()
	return nil
}

func (a *attempt) UnmountFrame(_ context.Context, frame *threeds.Frame) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frame == frame {
		a.frame = nil
	}
	a.notifyLocked()
}

func (a *attempt) StateChanged(state threeds.State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = state
	a.notifyLocked()
}

// finish stores the terminal outcome and releases any frame still shown.
func (a *attempt) finish(out threeds.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outcome = &out
	a.frame = nil
	a.loading = false
	a.finishedAt = time.Now().UTC()
	a.notifyLocked()
}

func (a *attempt) currentFrame() *threeds.Frame {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frame
}

func (a *attempt) finished(now time.Time, retention time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outcome != nil && now.Sub(a.finishedAt) >= retention
}

func (a *attempt) snapshot() models.AttemptResponse {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *attempt) snapshotLocked() models.AttemptResponse {
	resp := models.AttemptResponse{
		AttemptID: a.id,
		State:     a.state.String(),
		Loading:   a.loading,
	}
	if a.outcome != nil {
		resp.Status = string(a.outcome.Status)
		resp.Nonce = a.outcome.Nonce
		resp.Message = a.outcome.Message
		resp.SkipReason = string(a.outcome.SkipReason)
	}
	if a.frame != nil {
		resp.Challenge = &models.ChallengeData{
			AcsURL:   a.frame.AcsURL,
			Payload:  a.frame.Payload,
			TransID:  a.frame.TransID,
			LookupID: a.frame.LookupID,
		}
	}
	return resp
}

// wait blocks until ready accepts the snapshot or ctx is done, and returns
// the latest snapshot either way.
func (a *attempt) wait(ctx context.Context, ready func(models.AttemptResponse) bool) models.AttemptResponse {
	for {
		a.mu.Lock()
		snap := a.snapshotLocked()
		changed := a.changed
		a.mu.Unlock()

		if ready(snap) {
			return snap
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return snap
		}
	}
}

// record is the persisted form of a finished attempt.
func (a *attempt) record() models.AttemptRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec := models.AttemptRecord{
		ID:             a.id,
		SessionID:      a.sessionID,
		Amount:         a.amount,
		CountryID:      a.countryID,
		PaymentMethod:  a.paymentMethod,
		ChallengeShown: a.challengeShown,
		CreatedAt:      a.createdAt,
	}
	if a.outcome != nil {
		rec.Status = string(a.outcome.Status)
		rec.SkipReason = string(a.outcome.SkipReason)
		rec.Message = a.outcome.Message
		rec.ErrorCode = errorCode(a.outcome.Err)
		completed := a.finishedAt
		rec.CompletedAt = &completed
	}
	return rec
}

func errorCode(err error) string {
	var sdkErr *types.SDKError
	if errors.As(err, &sdkErr) {
		return sdkErr.Code
	}
	var lineErr *threeds.AddressLineTooLongError
	if errors.As(err, &lineErr) {
		return types.LookupValidationError
	}
	return ""
}

// progressed accepts a snapshot the browser can act on.
func progressed(s models.AttemptResponse) bool {
	return s.Terminal() || s.Challenge != nil
}

func terminal(s models.AttemptResponse) bool {
	return s.Terminal()
}

// attemptRegistry holds live attempts until they have been finished for the
// retention period. Older attempts are served from storage.
type attemptRegistry struct {
	mu        sync.RWMutex
	attempts  map[string]*attempt
	retention time.Duration
}

func newAttemptRegistry(retention time.Duration) *attemptRegistry {
	return &attemptRegistry{
		attempts:  make(map[string]*attempt),
		retention: retention,
	}
}

func (r *attemptRegistry) add(a *attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[a.id] = a
}

func (r *attemptRegistry) get(id string) (*attempt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.attempts[id]
	return a, ok
}

// sweep drops attempts finished more than the retention period ago.
func (r *attemptRegistry) sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, a := range r.attempts {
		if a.finished(now, r.retention) {
			delete(r.attempts, id)
			removed++
		}
	}
	return removed
}
