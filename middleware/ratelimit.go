// Package middleware holds cross-cutting connection middleware for the
// document store's TCP front end.
package middleware

import (
	"net"
	"sync"

	"docvault/config"
	"docvault/logging"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a per-client connection rate on the accept loop.
// Clients are keyed by remote IP so one chatty host cannot starve others.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	config   *config.Config
	logger   *logging.Logger
}

// NewRateLimiter creates a new rate limiter for the accept loop.
func NewRateLimiter(cfg *config.Config) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		config:   cfg,
		logger:   logging.GetLogger(),
	}
}

// getLimiter returns or creates a rate limiter for a specific client
func (rl *RateLimiter) getLimiter(clientIP string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[clientIP]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Check again in case another goroutine created it
	if limiter, exists := rl.limiters[clientIP]; exists {
		return limiter
	}

	requestsPerMin := rl.config.Security.RateLimiting.RequestsPerMin
	burst := rl.config.Security.RateLimiting.Burst

	// Convert requests per minute to requests per second
	ratePerSec := float64(requestsPerMin) / 60.0

	limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	rl.limiters[clientIP] = limiter

	return limiter
}

// clientIP extracts the host part of a remote address; the port changes per
// connection and must not fragment the limiter key space.
func clientIP(addr net.Addr) string {
	if addr == nil {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// Allow reports whether a new connection from addr may proceed. When rate
// limiting is disabled every connection is allowed.
func (rl *RateLimiter) Allow(addr net.Addr) bool {
	if !rl.config.Security.RateLimiting.Enabled {
		return true
	}

	ip := clientIP(addr)
	if !rl.getLimiter(ip).Allow() {
		rl.logger.Warn("Rate limit exceeded for client %s; dropping connection", ip)
		return false
	}
	return true
}
