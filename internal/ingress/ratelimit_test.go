package ingress

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestPerIPBurstExhausts(t *testing.T) {
	l := NewRateLimiter(RateLimiterConfig{
		IPBurst:     2,
		IPRate:      0.001,
		GlobalBurst: 100,
		GlobalRate:  100,
		Logger:      zerolog.Nop(),
	})
	defer l.Stop()

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))

	// A different client has its own bucket.
	assert.True(t, l.Allow("10.0.0.2"))
}

func TestGlobalBurstExhausts(t *testing.T) {
	l := NewRateLimiter(RateLimiterConfig{
		IPBurst:     100,
		IPRate:      100,
		GlobalBurst: 3,
		GlobalRate:  0.001,
		Logger:      zerolog.Nop(),
	})
	defer l.Stop()

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))
	assert.True(t, l.Allow("10.0.0.3"))
	assert.False(t, l.Allow("10.0.0.4"))
}

func TestDefaultsApplied(t *testing.T) {
	l := NewRateLimiter(RateLimiterConfig{Logger: zerolog.Nop()})
	defer l.Stop()
	assert.True(t, l.Allow("10.0.0.1"))
}
