package models

import "time"

// AttemptRecord is a finished verification attempt as it is stored.
// Nonces and card data are never persisted.
type AttemptRecord struct {
	ID             string     `json:"id"`
	SessionID      string     `json:"session_id"`
	Status         string     `json:"status"`
	SkipReason     string     `json:"skip_reason,omitempty"`
	Message        string     `json:"message,omitempty"`
	ErrorCode      string     `json:"error_code,omitempty"`
	Amount         string     `json:"amount"`
	CountryID      string     `json:"country_id"`
	PaymentMethod  string     `json:"payment_method"`
	ChallengeShown bool       `json:"challenge_shown"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Response turns a stored attempt back into the snapshot shape.
func (a *AttemptRecord) Response() AttemptResponse {
	return AttemptResponse{
		AttemptID:  a.ID,
		State:      a.Status,
		Status:     a.Status,
		Message:    a.Message,
		SkipReason: a.SkipReason,
	}
}
