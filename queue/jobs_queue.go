package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

type JobType string

const (
	JobTypeRecordAttempt JobType = "record_attempt"
)

const (
	MaxRetries = 5
	retryBase  = 15 * time.Second
)

// ErrJobNotFound is returned when a job id is not in the failed list.
var ErrJobNotFound = errors.New("job not found in failed queue")

type Job struct {
	ID         string                 `json:"id"`
	Type       JobType                `json:"type"`
	Data       map[string]interface{} `json:"data"`
	CreatedAt  time.Time              `json:"created_at"`
	RetryCount int                    `json:"retry_count"`

	// raw is the exact payload popped from Redis, used to remove the job
	// from the processing list.
	raw string
}

// Decode unmarshals the job data into v.
func (j *Job) Decode(v interface{}) error {
	b, err := json.Marshal(j.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal job data: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("failed to decode job data: %w", err)
	}
	return nil
}

// EncodeData turns a JSON-tagged struct into job data.
func EncodeData(v interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job data: %w", err)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("job data must be an object: %w", err)
	}
	return data, nil
}

// Queue is a Redis list backed job queue with a processing list, a delayed
// sorted set for retries and a failed list.
type Queue struct {
	client     *redis.Client
	queueName  string
	processing string
	delayed    string
	failed     string
}

func NewQueue(redisURL, queueName string) (*Queue, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewQueueWithClient(client, queueName), nil
}

// NewQueueWithClient builds a queue on an existing client.
func NewQueueWithClient(client *redis.Client, queueName string) *Queue {
	return &Queue{
		client:     client,
		queueName:  queueName,
		processing: queueName + ":processing",
		delayed:    queueName + ":delayed",
		failed:     queueName + ":failed",
	}
}

func newJob(jobType JobType, data map[string]interface{}) Job {
	if data == nil {
		data = map[string]interface{}{}
	}
	return Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
}

// Enqueue pushes a job and returns its id.
func (q *Queue) Enqueue(ctx context.Context, jobType JobType, data map[string]interface{}) (string, error) {
	job := newJob(jobType, data)

	jobJSON, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := q.client.RPush(ctx, q.queueName, jobJSON).Err(); err != nil {
		return "", fmt.Errorf("failed to push job to queue: %w", err)
	}

	log.Printf("Enqueued job %s of type %s", job.ID, job.Type)
	return job.ID, nil
}

// Dequeue pops the next job and moves it to the processing list. It returns
// nil without error when the timeout passes with no job.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job from queue: %w", err)
	}

	if len(result) < 2 {
		return nil, fmt.Errorf("unexpected BLPOP result format")
	}

	job, err := decodeJob(result[1])
	if err != nil {
		// keep the popped payload for inspection instead of dropping it
		if pErr := q.client.RPush(ctx, q.failed, result[1]).Err(); pErr != nil {
			log.Printf("Warning: Failed to move undecodable job to failed queue: %v", pErr)
		}
		return nil, err
	}

	if err := q.client.RPush(ctx, q.processing, result[1]).Err(); err != nil {
		log.Printf("Warning: Failed to move job %s to processing queue: %v", job.ID, err)
	}

	return job, nil
}

func decodeJob(payload string) (*Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.Data == nil {
		job.Data = map[string]interface{}{}
	}
	job.raw = payload
	return &job, nil
}

func (q *Queue) removeProcessing(ctx context.Context, job *Job) error {
	payload := job.raw
	if payload == "" {
		b, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}
		payload = string(b)
	}
	return q.client.LRem(ctx, q.processing, 1, payload).Err()
}

func (q *Queue) CompleteJob(ctx context.Context, job *Job) error {
	if err := q.removeProcessing(ctx, job); err != nil {
		return fmt.Errorf("failed to remove job from processing queue: %w", err)
	}

	log.Printf("Completed job %s of type %s", job.ID, job.Type)
	return nil
}

// RetryDelay is the backoff before retry n (1-based): 15s, 30s, 60s, ...
func RetryDelay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	return retryBase * time.Duration(1<<(retryCount-1))
}

// FailJob schedules a retry with exponential backoff, or moves the job to the
// failed list once MaxRetries is used up.
func (q *Queue) FailJob(ctx context.Context, job *Job, err error) error {
	if rmErr := q.removeProcessing(ctx, job); rmErr != nil {
		log.Printf("Warning: Failed to remove job %s from processing queue: %v", job.ID, rmErr)
	}

	job.RetryCount++
	job.Data["last_error"] = err.Error()
	job.Data["failed_at"] = time.Now().UTC()

	if job.RetryCount <= MaxRetries {
		delay := RetryDelay(job.RetryCount)
		retryTime := time.Now().Add(delay)
		job.Data["next_retry_at"] = retryTime.UTC()

		updatedJobJSON, marshalErr := json.Marshal(job)
		if marshalErr != nil {
			return fmt.Errorf("failed to marshal job: %w", marshalErr)
		}

		if zErr := q.client.ZAdd(ctx, q.delayed, &redis.Z{
			Score:  float64(retryTime.Unix()),
			Member: updatedJobJSON,
		}).Err(); zErr != nil {
			log.Printf("Warning: Failed to add job to delayed queue, adding to failed queue: %v", zErr)
			if pErr := q.client.RPush(ctx, q.failed, updatedJobJSON).Err(); pErr != nil {
				return fmt.Errorf("failed to push job to failed queue: %w", pErr)
			}
			return nil
		}

		log.Printf("Job %s of type %s scheduled for retry %d/%d in %v",
			job.ID, job.Type, job.RetryCount, MaxRetries, delay)
		return nil
	}

	job.Data["all_retries_exhausted"] = true
	job.Data["final_failure_at"] = time.Now().UTC()
	finalJobJSON, marshalErr := json.Marshal(job)
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal job: %w", marshalErr)
	}

	if pErr := q.client.RPush(ctx, q.failed, finalJobJSON).Err(); pErr != nil {
		return fmt.Errorf("failed to push job to failed queue: %w", pErr)
	}

	log.Printf("Job %s of type %s moved to failed queue after %d retries", job.ID, job.Type, job.RetryCount)
	return nil
}

// ProcessDelayedJobs moves every due retry back onto the main queue.
func (q *Queue) ProcessDelayedJobs(ctx context.Context) error {
	now := float64(time.Now().Unix())

	jobs, err := q.client.ZRangeByScore(ctx, q.delayed, &redis.ZRangeBy{
		Min: "0",
		Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to get delayed jobs: %w", err)
	}

	for _, jobJSON := range jobs {
		removed, err := q.client.ZRem(ctx, q.delayed, jobJSON).Result()
		if err != nil {
			log.Printf("Warning: Failed to remove job from delayed queue: %v", err)
			continue
		}
		if removed == 0 {
			// another worker promoted it first
			continue
		}

		if err := q.client.RPush(ctx, q.queueName, jobJSON).Err(); err != nil {
			log.Printf("Warning: Failed to move delayed job to main queue: %v", err)
			continue
		}

		if job, err := decodeJob(jobJSON); err == nil {
			log.Printf("Moved delayed job %s of type %s to main queue (retry %d)",
				job.ID, job.Type, job.RetryCount)
		}
	}

	return nil
}

// RetryJob moves a job from the failed list back onto the main queue with its
// retry count reset.
func (q *Queue) RetryJob(ctx context.Context, jobID string) error {
	jobs, err := q.client.LRange(ctx, q.failed, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to list failed jobs: %w", err)
	}

	for _, jobJSON := range jobs {
		job, err := decodeJob(jobJSON)
		if err != nil {
			log.Printf("Warning: %v", err)
			continue
		}
		if job.ID != jobID {
			continue
		}

		if err := q.client.LRem(ctx, q.failed, 1, jobJSON).Err(); err != nil {
			return fmt.Errorf("failed to remove job from failed queue: %w", err)
		}

		resetForManualRetry(job)
		updatedJobJSON, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}

		if err := q.client.RPush(ctx, q.queueName, updatedJobJSON).Err(); err != nil {
			return fmt.Errorf("failed to push job to main queue: %w", err)
		}

		log.Printf("Manually requeued job %s of type %s (retry count reset)", job.ID, job.Type)
		return nil
	}

	return fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
}

func resetForManualRetry(job *Job) {
	job.RetryCount = 0
	job.Data["manual_retry"] = true
	job.Data["manual_retry_at"] = time.Now().UTC()
	delete(job.Data, "all_retries_exhausted")
	delete(job.Data, "final_failure_at")
	delete(job.Data, "next_retry_at")
}

func (q *Queue) Client() *redis.Client {
	return q.client
}

func (q *Queue) Close() error {
	return q.client.Close()
}
