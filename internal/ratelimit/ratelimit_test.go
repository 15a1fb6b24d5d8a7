package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyed_Allow(t *testing.T) {
	tests := []struct {
		name     string
		rps      float64
		burst    int
		calls    int
		wantPass int
	}{
		{"burst allows initial events", 1, 3, 3, 3},
		{"exceeding burst is refused", 1, 2, 5, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := New[string](tt.rps, tt.burst)

			passed := 0
			for i := 0; i < tt.calls; i++ {
				if rl.Allow("books") {
					passed++
				}
			}

			assert.Equal(t, tt.wantPass, passed)
		})
	}
}

func TestKeyed_IndependentKeys(t *testing.T) {
	rl := New[string](1, 1)

	require.True(t, rl.Allow("books"))
	assert.False(t, rl.Allow("books"), "books should be exhausted")
	assert.True(t, rl.Allow("favorites"), "favorites has its own bucket")
	assert.Equal(t, 2, rl.Len())
}

func TestKeyed_WaitContextCanceled(t *testing.T) {
	rl := New[string](0.1, 1) // one event per 10 seconds
	rl.Allow("books")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.Error(t, rl.Wait(ctx, "books"))
}

func TestKeyed_WaitImmediateWithinBurst(t *testing.T) {
	rl := New[string](10, 1)

	start := time.Now()
	require.NoError(t, rl.Wait(context.Background(), "books"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
