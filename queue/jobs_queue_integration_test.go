//go:build integration
// +build integration

package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client connected to it.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start Redis container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

// makeDue rewrites every delayed job so it is due now.
func makeDue(t *testing.T, q *Queue) {
	t.Helper()
	ctx := context.Background()

	members, err := q.client.ZRange(ctx, q.delayed, 0, -1).Result()
	require.NoError(t, err)
	for _, m := range members {
		require.NoError(t, q.client.ZAdd(ctx, q.delayed, &redis.Z{Score: 0, Member: m}).Err())
	}
}

func TestQueue_Redis(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	t.Run("enqueue, dequeue and complete", func(t *testing.T) {
		q := NewQueueWithClient(client, "complete_jobs")

		id, err := q.Enqueue(ctx, JobTypeRecordAttempt, map[string]interface{}{"id": "att_1"})
		require.NoError(t, err)

		job, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, id, job.ID)
		assert.Equal(t, JobTypeRecordAttempt, job.Type)
		assert.Equal(t, "att_1", job.Data["id"])
		assert.EqualValues(t, 1, client.LLen(ctx, q.processing).Val())

		require.NoError(t, q.CompleteJob(ctx, job))
		assert.EqualValues(t, 0, client.LLen(ctx, q.processing).Val())
	})

	t.Run("empty queue times out", func(t *testing.T) {
		q := NewQueueWithClient(client, "empty_jobs")

		job, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		assert.Nil(t, job)
	})

	t.Run("retries back off then land in the failed list", func(t *testing.T) {
		q := NewQueueWithClient(client, "retry_jobs")

		id, err := q.Enqueue(ctx, JobTypeRecordAttempt, map[string]interface{}{"id": "att_2"})
		require.NoError(t, err)
		job, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, job)

		for retry := 1; retry <= MaxRetries; retry++ {
			before := time.Now()
			require.NoError(t, q.FailJob(ctx, job, fmt.Errorf("store down %d", retry)))
			assert.EqualValues(t, 0, client.LLen(ctx, q.processing).Val())

			scored, err := client.ZRangeWithScores(ctx, q.delayed, 0, -1).Result()
			require.NoError(t, err)
			require.Len(t, scored, 1, "retry %d", retry)
			wantAt := before.Add(RetryDelay(retry)).Unix()
			assert.InDelta(t, float64(wantAt), scored[0].Score, 2, "retry %d backs off", retry)

			// not yet due
			require.NoError(t, q.ProcessDelayedJobs(ctx))
			assert.EqualValues(t, 0, client.LLen(ctx, q.queueName).Val())

			makeDue(t, q)
			require.NoError(t, q.ProcessDelayedJobs(ctx))
			assert.EqualValues(t, 0, client.ZCard(ctx, q.delayed).Val())
			assert.EqualValues(t, 1, client.LLen(ctx, q.queueName).Val())

			job, err = q.Dequeue(ctx, time.Second)
			require.NoError(t, err)
			require.NotNil(t, job)
			assert.Equal(t, id, job.ID)
			assert.Equal(t, retry, job.RetryCount)
			assert.Equal(t, fmt.Sprintf("store down %d", retry), job.Data["last_error"])
		}

		require.NoError(t, q.FailJob(ctx, job, fmt.Errorf("store down for good")))
		assert.EqualValues(t, 0, client.ZCard(ctx, q.delayed).Val())
		assert.EqualValues(t, 1, client.LLen(ctx, q.failed).Val())

		failed, err := decodeJob(client.LIndex(ctx, q.failed, 0).Val())
		require.NoError(t, err)
		assert.Equal(t, MaxRetries+1, failed.RetryCount)
		assert.Equal(t, true, failed.Data["all_retries_exhausted"])

		require.NoError(t, q.RetryJob(ctx, id))
		assert.EqualValues(t, 0, client.LLen(ctx, q.failed).Val())

		job, err = q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, id, job.ID)
		assert.Equal(t, 0, job.RetryCount)
		assert.Equal(t, true, job.Data["manual_retry"])
		assert.NotContains(t, job.Data, "all_retries_exhausted")

		assert.ErrorIs(t, q.RetryJob(ctx, "missing"), ErrJobNotFound)
	})

	t.Run("undecodable payload is kept in the failed list", func(t *testing.T) {
		q := NewQueueWithClient(client, "broken_jobs")

		require.NoError(t, client.RPush(ctx, q.queueName, "{not json").Err())

		job, err := q.Dequeue(ctx, time.Second)
		require.Error(t, err)
		assert.Nil(t, job)
		assert.Equal(t, []string{"{not json"}, client.LRange(ctx, q.failed, 0, -1).Val())

		// stray entries do not break manual retries of other jobs
		assert.ErrorIs(t, q.RetryJob(ctx, "missing"), ErrJobNotFound)
	})
}
