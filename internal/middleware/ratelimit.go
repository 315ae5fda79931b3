package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	appErrors "github.com/tutorconnect/tutorconnect-api/pkg/errors"
	"github.com/tutorconnect/tutorconnect-api/pkg/response"
)

// RateLimiter throttles clients by IP with a token bucket. A client that exhausts its bucket
// is blocked for blockTime.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*clientLimiter
	blocked   map[string]time.Time
	burst     int
	per       time.Duration
	blockTime time.Duration
	now       func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows burst requests, refilling one token every per.
func NewRateLimiter(burst int, per, blockTime time.Duration) *RateLimiter {
	if burst <= 0 {
		burst = 10
	}
	if per <= 0 {
		per = 6 * time.Second
	}
	return &RateLimiter{
		limiters:  make(map[string]*clientLimiter),
		blocked:   make(map[string]time.Time),
		burst:     burst,
		per:       per,
		blockTime: blockTime,
		now:       time.Now,
	}
}

// Handler returns the gin middleware.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.allow(c.ClientIP()) {
			c.Header("Retry-After", r.retryAfter())
			response.Error(c, appErrors.Clone(appErrors.ErrRateLimited, "too many requests, try again later"))
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) allow(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()

	if until, found := r.blocked[ip]; found {
		if now.Before(until) {
			return false
		}
		delete(r.blocked, ip)
	}

	entry, exists := r.limiters[ip]
	if !exists {
		entry = &clientLimiter{limiter: rate.NewLimiter(rate.Every(r.per), r.burst)}
		r.limiters[ip] = entry
	}
	entry.lastSeen = now

	if !entry.limiter.AllowN(now, 1) {
		if r.blockTime > 0 {
			r.blocked[ip] = now.Add(r.blockTime)
		}
		return false
	}
	return true
}

// Prune forgets clients idle for longer than idle.
func (r *RateLimiter) Prune(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-idle)
	removed := 0
	for ip, entry := range r.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(r.limiters, ip)
			removed++
		}
	}
	for ip, until := range r.blocked {
		if until.Before(r.now()) {
			delete(r.blocked, ip)
		}
	}
	return removed
}

func (r *RateLimiter) retryAfter() string {
	wait := r.blockTime
	if wait <= 0 {
		wait = r.per
	}
	secs := int(wait.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
