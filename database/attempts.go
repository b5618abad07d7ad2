package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"checkout-3ds-api/models"
)

var ErrAttemptNotFound = errors.New("verification attempt not found")

const upsertAttempt = `
	INSERT INTO three_d_secure_attempts (
		id, session_id, status, skip_reason, message, error_code,
		amount, country_id, payment_method, challenge_shown,
		created_at, completed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		status = VALUES(status),
		skip_reason = VALUES(skip_reason),
		message = VALUES(message),
		error_code = VALUES(error_code),
		challenge_shown = VALUES(challenge_shown),
		completed_at = VALUES(completed_at)
`

const selectAttempt = `
	SELECT id, session_id, status, skip_reason, message, error_code,
	       amount, country_id, payment_method, challenge_shown,
	       created_at, completed_at
	FROM three_d_secure_attempts
	WHERE id = ?
`

// SaveAttempt stores an attempt, replacing the outcome of an earlier save
// with the same id.
func (c *Connection) SaveAttempt(ctx context.Context, a *models.AttemptRecord) error {
	if a == nil || a.ID == "" {
		return errors.New("attempt id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := c.db.ExecContext(ctx, upsertAttempt, attemptArgs(a)...)
	if err != nil {
		log.Printf("[Attempt: %s] Error saving attempt: %v", a.ID, err)
		return fmt.Errorf("failed to save attempt: %w", err)
	}

	log.Printf("[Attempt: %s] Saved attempt with status %s", a.ID, a.Status)
	return nil
}

// GetAttempt loads a stored attempt. It returns ErrAttemptNotFound when no
// attempt has that id.
func (c *Connection) GetAttempt(ctx context.Context, id string) (*models.AttemptRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	a, err := scanAttempt(c.db.QueryRowContext(ctx, selectAttempt, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("error loading attempt: %w", err)
	}
	return a, nil
}

func attemptArgs(a *models.AttemptRecord) []interface{} {
	var completedAt sql.NullTime
	if a.CompletedAt != nil {
		completedAt = sql.NullTime{Time: a.CompletedAt.UTC(), Valid: true}
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return []interface{}{
		a.ID, a.SessionID, a.Status, a.SkipReason, truncate(a.Message, 512), a.ErrorCode,
		a.Amount, a.CountryID, a.PaymentMethod, a.ChallengeShown,
		createdAt.UTC(), completedAt,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAttempt(row rowScanner) (*models.AttemptRecord, error) {
	var a models.AttemptRecord
	var completedAt sql.NullTime

	err := row.Scan(
		&a.ID, &a.SessionID, &a.Status, &a.SkipReason, &a.Message, &a.ErrorCode,
		&a.Amount, &a.CountryID, &a.PaymentMethod, &a.ChallengeShown,
		&a.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		a.CompletedAt = &t
	}
	return &a, nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
