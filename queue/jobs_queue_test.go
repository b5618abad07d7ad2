package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	cases := map[int]time.Duration{
		0: 15 * time.Second,
		1: 15 * time.Second,
		2: 30 * time.Second,
		3: 60 * time.Second,
		5: 240 * time.Second,
	}
	for n, want := range cases {
		assert.Equal(t, want, RetryDelay(n), "retry %d", n)
	}
}

func TestNewJob(t *testing.T) {
	t.Parallel()

	a := newJob(JobTypeRecordAttempt, nil)
	b := newJob(JobTypeRecordAttempt, map[string]interface{}{"id": "att_1"})

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotNil(t, a.Data)
	assert.Equal(t, JobTypeRecordAttempt, b.Type)
}

func TestDecodeJob_KeepsRawPayload(t *testing.T) {
	t.Parallel()

	payload := `{"id":"j1","type":"record_attempt","data":{"id":"att_1","challenge_shown":true},"created_at":"2024-05-01T10:00:00Z","retry_count":2}`

	job, err := decodeJob(payload)
	require.NoError(t, err)
	assert.Equal(t, "j1", job.ID)
	assert.Equal(t, 2, job.RetryCount)
	assert.Equal(t, payload, job.raw)

	var out struct {
		ID             string `json:"id"`
		ChallengeShown bool   `json:"challenge_shown"`
	}
	require.NoError(t, job.Decode(&out))
	assert.Equal(t, "att_1", out.ID)
	assert.True(t, out.ChallengeShown)
}

func TestDecodeJob_Invalid(t *testing.T) {
	t.Parallel()

	_, err := decodeJob("{not json")
	assert.Error(t, err)

	job, err := decodeJob(`{"id":"j2","type":"record_attempt"}`)
	require.NoError(t, err)
	assert.NotNil(t, job.Data, "missing data decodes to an empty map")
}

func TestResetForManualRetry(t *testing.T) {
	t.Parallel()

	job := newJob(JobTypeRecordAttempt, map[string]interface{}{
		"all_retries_exhausted": true,
		"final_failure_at":      time.Now(),
		"next_retry_at":         time.Now(),
		"last_error":            "db down",
	})
	job.RetryCount = MaxRetries + 1

	resetForManualRetry(&job)
	assert.Zero(t, job.RetryCount)
	assert.Equal(t, true, job.Data["manual_retry"])
	assert.NotContains(t, job.Data, "all_retries_exhausted")
	assert.NotContains(t, job.Data, "next_retry_at")
	assert.Contains(t, job.Data, "last_error")
}

func TestEncodeData(t *testing.T) {
	t.Parallel()

	data, err := EncodeData(struct {
		ID     string `json:"id"`
		Amount string `json:"amount"`
	}{ID: "att_1", Amount: "10.00"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"id": "att_1", "amount": "10.00"}, data)

	_, err = EncodeData([]string{"not", "an", "object"})
	assert.Error(t, err)
}
