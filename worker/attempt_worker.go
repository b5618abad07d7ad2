package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"checkout-3ds-api/models"
	"checkout-3ds-api/queue"
)

// DelayedJobsInterval is how often due retries are promoted to the main queue.
const DelayedJobsInterval = 5 * time.Second

// JobQueue is the part of the Redis queue the worker consumes.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	CompleteJob(ctx context.Context, job *queue.Job) error
	FailJob(ctx context.Context, job *queue.Job, err error) error
	ProcessDelayedJobs(ctx context.Context) error
}

// AttemptStore persists finished verification attempts.
type AttemptStore interface {
	SaveAttempt(ctx context.Context, a *models.AttemptRecord) error
}

// Worker records verification attempts in the background
type Worker struct {
	queue    JobQueue
	store    AttemptStore
	shutdown chan struct{}
	wg       sync.WaitGroup

	mu        sync.Mutex
	isRunning bool
}

func NewWorker(q JobQueue, store AttemptStore) *Worker {
	return &Worker{
		queue:    q,
		store:    store,
		shutdown: make(chan struct{}),
	}
}

// Start begins processing jobs with the given number of goroutines, plus one
// goroutine promoting delayed retries.
func (w *Worker) Start(concurrency int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		return
	}
	w.isRunning = true

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.processJobs(i)
	}

	w.wg.Add(1)
	go w.promoteDelayed()

	log.Printf("Started %d worker goroutines", concurrency)
}

// Stop signals the worker goroutines to exit and waits for them.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return
	}
	w.isRunning = false
	close(w.shutdown)
	w.mu.Unlock()

	log.Println("Stopping worker...")
	w.wg.Wait()
}

func (w *Worker) promoteDelayed() {
	defer w.wg.Done()

	ticker := time.NewTicker(DelayedJobsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.shutdown:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := w.queue.ProcessDelayedJobs(ctx); err != nil {
				log.Printf("Error processing delayed jobs: %v", err)
			}
			cancel()
		}
	}
}

func (w *Worker) processJobs(workerID int) {
	defer w.wg.Done()
	log.Printf("Worker %d starting", workerID)

	for {
		select {
		case <-w.shutdown:
			log.Printf("Worker %d shutting down", workerID)
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		job, err := w.queue.Dequeue(ctx, 2*time.Second)
		cancel()

		if err != nil {
			log.Printf("Worker %d: Error dequeuing job: %v", workerID, err)
			w.sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		w.handle(workerID, job)
	}
}

func (w *Worker) handle(workerID int, job *queue.Job) {
	log.Printf("Worker %d processing job %s of type %s", workerID, job.ID, job.Type)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	jobErr := w.processJob(ctx, job)
	cancel()

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if jobErr != nil {
		log.Printf("Worker %d: Error processing job %s: %v", workerID, job.ID, jobErr)
		if errors.Is(jobErr, errInvalidJob) {
			// retrying a malformed job cannot help
			job.RetryCount = queue.MaxRetries
		}
		if failErr := w.queue.FailJob(ctx, job, jobErr); failErr != nil {
			log.Printf("Worker %d: Error marking job %s as failed: %v", workerID, job.ID, failErr)
		}
		return
	}

	if completeErr := w.queue.CompleteJob(ctx, job); completeErr != nil {
		log.Printf("Worker %d: Error marking job %s as complete: %v", workerID, job.ID, completeErr)
	}
}

var errInvalidJob = errors.New("invalid job")

func (w *Worker) processJob(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeRecordAttempt:
		return w.processRecordAttempt(ctx, job)
	default:
		return fmt.Errorf("%w: unknown job type %s", errInvalidJob, job.Type)
	}
}

func (w *Worker) processRecordAttempt(ctx context.Context, job *queue.Job) error {
	var record models.AttemptRecord
	if err := job.Decode(&record); err != nil {
		return fmt.Errorf("%w: %v", errInvalidJob, err)
	}
	if record.ID == "" {
		return fmt.Errorf("%w: missing attempt id", errInvalidJob)
	}

	if err := w.store.SaveAttempt(ctx, &record); err != nil {
		return fmt.Errorf("failed to record attempt %s: %w", record.ID, err)
	}
	return nil
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.shutdown:
	case <-time.After(d):
	}
}
