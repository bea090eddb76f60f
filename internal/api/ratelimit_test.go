package api

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Construction(t *testing.T) {
	t.Run("creates with defaults", func(t *testing.T) {
		rl := NewRateLimiter()

		assert.NotNil(t, rl, "should not be nil")
		assert.Equal(t, 100, rl.requestsPerSecond)
		assert.Equal(t, 200, rl.burstSize)
	})

	t.Run("non-positive values fall back", func(t *testing.T) {
		rl := NewRateLimiterWith(0, 0)
		assert.Equal(t, 100, rl.requestsPerSecond)
		assert.Equal(t, 200, rl.burstSize)
	})
}

func TestRateLimiter_Allow(t *testing.T) {
	t.Run("allows within limit", func(t *testing.T) {
		rl := NewRateLimiterWith(10, 10)
		for i := 0; i < 10; i++ {
			assert.True(t, rl.Allow("test"))
		}
	})

	t.Run("blocks over limit", func(t *testing.T) {
		rl := NewRateLimiterWith(1, 2)

		assert.True(t, rl.Allow("test"))
		assert.True(t, rl.Allow("test"))
		assert.False(t, rl.Allow("test"))
	})

	t.Run("clients are isolated", func(t *testing.T) {
		rl := NewRateLimiterWith(1, 1)
		assert.True(t, rl.Allow("a"))
		assert.False(t, rl.Allow("a"))
		assert.True(t, rl.Allow("b"))
	})

	t.Run("map growth is bounded", func(t *testing.T) {
		rl := NewRateLimiter()
		for i := 0; i < 10001; i++ {
			rl.Allow(fmt.Sprintf("client-%d", i))
		}
		assert.LessOrEqual(t, len(rl.limiters), 10000)
	})
}
