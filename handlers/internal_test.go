package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"

	"checkout-3ds-api/queue"
)

type fakeRetrier struct {
	err   error
	calls []string
}

func (f *fakeRetrier) RetryJob(ctx context.Context, jobID string) error {
	f.calls = append(f.calls, jobID)
	return f.err
}

func serveRetry(h *InternalHandler, jobID string) *httptest.ResponseRecorder {
	router := mux.NewRouter()
	router.HandleFunc("/internal/jobs/{id}/retry", h.RetryJob).Methods("POST")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/internal/jobs/"+jobID+"/retry", nil))
	return rec
}

func TestInternalHandler_RetryJob(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "requeued", status: http.StatusOK},
		{name: "not in failed list", err: fmt.Errorf("job x: %w", queue.ErrJobNotFound), status: http.StatusNotFound},
		{name: "redis failure", err: errors.New("connection refused"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			retrier := &fakeRetrier{err: tt.err}
			rec := serveRetry(NewInternalHandler(retrier), "job-42")

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, []string{"job-42"}, retrier.calls)
		})
	}
}
