package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoll(t *testing.T) {
	t.Run("returns once the condition holds", func(t *testing.T) {
		checks := 0
		err := Poll(context.Background(), func() bool {
			checks++
			return checks == 3
		}, FileEventTimeout, time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 3, checks)
	})

	t.Run("gives up after the timeout", func(t *testing.T) {
		started := time.Now()
		err := Poll(context.Background(), func() bool { return false }, 50*time.Millisecond, PollingInterval)
		assert.ErrorContains(t, err, "timeout waiting for target state")
		assert.GreaterOrEqual(t, time.Since(started), 50*time.Millisecond)
	})

	t.Run("stops when the context ends", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		err := Poll(ctx, func() bool {
			cancel()
			return false
		}, FileEventTimeout, PollingInterval)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestWaitForState(t *testing.T) {
	n := 0
	got, err := WaitForState(context.Background(), func() int { n++; return n },
		func(v int) bool { return v == 4 }, FileEventTimeout, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 4, got)

	s, err := WaitForState(context.Background(), func() string { return "recording" },
		func(s string) bool { return s == "idle" }, 30*time.Millisecond, PollingInterval)
	assert.ErrorContains(t, err, "type string")
	assert.Empty(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err = WaitForState(ctx, func() string { return "recording" },
		func(s string) bool { return s == "idle" }, FileEventTimeout, PollingInterval)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s)
}
