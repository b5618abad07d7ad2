package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"checkout-3ds-api/middleware"
	"checkout-3ds-api/models"
	"checkout-3ds-api/queue"
	"checkout-3ds-api/utils"
)

// JobRetrier requeues jobs from the failed list.
type JobRetrier interface {
	RetryJob(ctx context.Context, jobID string) error
}

// InternalHandler serves operator endpoints. Routes are expected behind the
// IP whitelist and the internal secret.
type InternalHandler struct {
	jobs JobRetrier
}

func NewInternalHandler(jobs JobRetrier) *InternalHandler {
	return &InternalHandler{jobs: jobs}
}

// RetryJob moves a failed job back onto the queue with its retry count reset.
func (h *InternalHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	jobID := mux.Vars(r)["id"]

	if err := h.jobs.RetryJob(r.Context(), jobID); err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			utils.SendErrorResponse(w, http.StatusNotFound, "Job not found in failed queue")
			return
		}
		log.Printf("[RequestID: %s] Error retrying job %s: %v", requestID, jobID, err)
		utils.SendErrorResponse(w, http.StatusInternalServerError, "Failed to retry job")
		return
	}

	log.Printf("[RequestID: %s] Job %s requeued by %s", requestID, jobID, middleware.ClientIP(r))
	utils.SendSuccessResponse(w, models.APIResponse{
		Status:  "success",
		Message: "Job requeued",
		Data:    map[string]string{"job_id": jobID},
	})
}
