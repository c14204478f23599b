package utils

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Call classes with distinct downstream cost.
const (
	ClassListingPage = "listing-page"
	ClassDetailPage  = "detail-page"
)

// ErrRateLimitExceeded signals that a call would exceed its class budget. Callers back off and retry.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// RateClass allows Calls calls per Window.
type RateClass struct {
	Calls  int           `yaml:"calls"`
	Window time.Duration `yaml:"window"`
}

// DefaultRateClasses returns the listing-page and detail-page budgets.
func DefaultRateClasses() map[string]RateClass {
	return map[string]RateClass{
		ClassListingPage: {Calls: 1, Window: time.Second},
		ClassDetailPage:  {Calls: 3, Window: time.Second},
	}
}

// RateLimiter caps call frequency per call class. It never blocks: Acquire
// either takes a token or reports ErrRateLimitExceeded.
type RateLimiter struct {
	classes  map[string]RateClass
	limiters map[string]*rate.Limiter
}

// NewRateLimiter builds one token bucket per configured class.
func NewRateLimiter(classes map[string]RateClass) (*RateLimiter, error) {
	rl := &RateLimiter{
		classes:  make(map[string]RateClass, len(classes)),
		limiters: make(map[string]*rate.Limiter, len(classes)),
	}
	for name, c := range classes {
		if c.Calls <= 0 || c.Window <= 0 {
			return nil, fmt.Errorf("rate class %q: calls and window must be positive", name)
		}
		rl.classes[name] = c
		rl.limiters[name] = rate.NewLimiter(rate.Every(c.Window/time.Duration(c.Calls)), c.Calls)
	}
	return rl, nil
}

// Acquire takes a token for class. Unknown classes are not limited.
func (rl *RateLimiter) Acquire(class string) error {
	l, ok := rl.limiters[class]
	if !ok {
		return nil
	}
	if !l.Allow() {
		return fmt.Errorf("%s: %w", class, ErrRateLimitExceeded)
	}
	return nil
}

// Backoff is how long a rejected caller sleeps before retrying: twice the class window.
func (rl *RateLimiter) Backoff(class string) time.Duration {
	c, ok := rl.classes[class]
	if !ok {
		return 0
	}
	return 2 * c.Window
}

// Limiter is the call-site view of a RateLimiter.
type Limiter interface {
	Acquire(class string) error
	Backoff(class string) time.Duration
}

// RateLimitAttempts bounds how often a call site re-acquires a spent class.
const RateLimitAttempts = 3

// RateLimitRetry derives a policy from base that retries only
// ErrRateLimitExceeded, up to RateLimitAttempts times, sleeping the class
// backoff between attempts. base supplies the logger and sleep function.
func RateLimitRetry(base RetryPolicy, l Limiter, class string) *RetryPolicy {
	p := base
	p.MaxAttempts = RateLimitAttempts
	p.Backoff = ConstantBackoff(l.Backoff(class))
	p.ShouldRetry = func(err error) bool { return errors.Is(err, ErrRateLimitExceeded) }
	return &p
}
