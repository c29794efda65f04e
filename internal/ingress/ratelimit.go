package ingress

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RateLimiter protects the accept loops with two token buckets: per-IP,
// so one misbehaving client cannot flood connections, and global, so a
// distributed flood cannot overload the timeline.
type RateLimiter struct {
	mu         sync.Mutex
	ipLimiters map[string]*ipLimiterEntry
	ipBurst    int
	ipRate     float64
	ipTTL      time.Duration

	globalLimiter *rate.Limiter
	logger        zerolog.Logger

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
}

type ipLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiterConfig holds the accept-loop limits.
type RateLimiterConfig struct {
	IPBurst     int     // max burst connections per IP (default 10)
	IPRate      float64 // sustained connections/sec per IP (default 2)
	GlobalBurst int     // max burst connections overall (default 200)
	GlobalRate  float64 // sustained connections/sec overall (default 100)
	Logger      zerolog.Logger
}

// NewRateLimiter creates a rate limiter with defaults for zero fields.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.IPBurst == 0 {
		config.IPBurst = 10
	}
	if config.IPRate == 0 {
		config.IPRate = 2.0
	}
	if config.GlobalBurst == 0 {
		config.GlobalBurst = 200
	}
	if config.GlobalRate == 0 {
		config.GlobalRate = 100.0
	}

	l := &RateLimiter{
		ipLimiters:    make(map[string]*ipLimiterEntry),
		ipBurst:       config.IPBurst,
		ipRate:        config.IPRate,
		ipTTL:         5 * time.Minute,
		globalLimiter: rate.NewLimiter(rate.Limit(config.GlobalRate), config.GlobalBurst),
		logger:        config.Logger.With().Str("component", "ingress_rate_limiter").Logger(),
		stopCleanup:   make(chan struct{}),
	}

	l.cleanupTicker = time.NewTicker(time.Minute)
	go l.cleanupLoop()
	return l
}

// Allow reports whether a connection from ip may proceed. Checks the
// global bucket first so per-IP state is not created during a flood.
func (l *RateLimiter) Allow(ip string) bool {
	if !l.globalLimiter.Allow() {
		l.logger.Warn().Str("ip", ip).Msg("Global connection rate exceeded")
		return false
	}

	l.mu.Lock()
	entry, ok := l.ipLimiters[ip]
	if !ok {
		entry = &ipLimiterEntry{
			limiter: rate.NewLimiter(rate.Limit(l.ipRate), l.ipBurst),
		}
		l.ipLimiters[ip] = entry
	}
	entry.lastAccess = time.Now()
	l.mu.Unlock()

	if !entry.limiter.Allow() {
		l.logger.Warn().Str("ip", ip).Msg("Per-IP connection rate exceeded")
		return false
	}
	return true
}

// Stop ends the cleanup goroutine.
func (l *RateLimiter) Stop() {
	close(l.stopCleanup)
	l.cleanupTicker.Stop()
}

// cleanupLoop drops per-IP entries idle longer than the TTL.
func (l *RateLimiter) cleanupLoop() {
	for {
		select {
		case <-l.stopCleanup:
			return
		case <-l.cleanupTicker.C:
			cutoff := time.Now().Add(-l.ipTTL)
			l.mu.Lock()
			for ip, entry := range l.ipLimiters {
				if entry.lastAccess.Before(cutoff) {
					delete(l.ipLimiters, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}
