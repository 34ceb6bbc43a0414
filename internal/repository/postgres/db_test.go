package postgresrepo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTxBackoffStaysWithinBounds(t *testing.T) {
	for attempt := 1; attempt < maxTxAttempts+4; attempt++ {
		for i := 0; i < 50; i++ {
			d := txBackoff(attempt)
			assert.Greater(t, d, time.Duration(0))
			assert.LessOrEqual(t, d, maxTxBackoff+time.Millisecond)
		}
	}

	assert.LessOrEqual(t, txBackoff(1), 2*baseTxBackoff+time.Millisecond)
}

func TestSleepCtxStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sleepCtx(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))
}
