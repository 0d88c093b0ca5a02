package throttler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowPerKey(t *testing.T) {
	th := New(0.001, 2)

	assert.True(t, th.Allow("zone-a"))
	assert.True(t, th.Allow("zone-a"))
	assert.False(t, th.Allow("zone-a"))

	// Separate bucket.
	assert.True(t, th.Allow("zone-b"))
}

func TestWaitHonoursContext(t *testing.T) {
	th := New(0.001, 1)
	assert.NoError(t, th.Wait(context.Background(), "zone"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, th.Wait(ctx, "zone"))
}

func TestUnlimited(t *testing.T) {
	th := New(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, th.Allow("zone"))
	}
}
