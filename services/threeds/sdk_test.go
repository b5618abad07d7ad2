package threeds

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout-3ds-api/types"
)

func TestFrame_CompleteOnce(t *testing.T) {
	t.Parallel()

	f := NewFrame(types.ThreeDSResponse{LookupID: "lk", AcsUrl: "https://acs.example", Payload: "creq"})
	assert.Equal(t, "lk", f.LookupID)
	assert.Equal(t, "creq", f.Payload)

	require.NoError(t, f.Complete(types.ThreeDSCallback{Payload: "cres"}))
	assert.ErrorIs(t, f.Complete(types.ThreeDSCallback{Abandoned: true}), ErrFrameClosed)

	cb, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cres", cb.Payload)
	assert.False(t, cb.Abandoned)
}

func TestFrame_WaitHonoursContext(t *testing.T) {
	t.Parallel()

	f := NewFrame(types.ThreeDSResponse{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConfig_IsAmountAvailable(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	assert.True(t, cfg.IsAmountAvailable(decimal.RequireFromString("10.00")), "zero threshold lets every amount through")
	assert.True(t, cfg.IsAmountAvailable(decimal.RequireFromString("0")))
}
