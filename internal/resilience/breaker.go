package resilience

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Breaker is a consecutive-failure circuit breaker. After the configured
// number of consecutive failures it opens for a cool-off period, then lets a
// single probe through; the probe's outcome decides between closing again and
// another cool-off.
type Breaker struct {
	mu          sync.Mutex
	failures    int
	maxFailures int
	openedAt    time.Time
	openFor     time.Duration
	probing     bool
	target      string
	logger      *zerolog.Logger
}

// NewBreaker constructs a breaker that opens after maxFailures consecutive
// failures and stays open for openFor.
func NewBreaker(maxFailures int, openFor time.Duration) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{maxFailures: maxFailures, openFor: openFor}
}

// WithTarget sets the logical dependency name used in transition logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = target
	return b
}

// WithLogger configures the logger used for transition events.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = &logger
	return b
}

// Allow reports whether a request may proceed. While open it permits exactly
// one probe once the cool-off has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openedAt.IsZero() {
		return true
	}
	if time.Since(b.openedAt) < b.openFor {
		return false
	}
	if b.probing {
		return false
	}
	b.probing = true
	return true
}

// Report records the outcome of a permitted request.
func (b *Breaker) Report(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if success {
		if !b.openedAt.IsZero() {
			b.log("closed")
		}
		b.failures = 0
		b.openedAt = time.Time{}
		b.probing = false
		return
	}
	if !b.openedAt.IsZero() {
		// failed probe, restart the cool-off
		b.openedAt = time.Now()
		b.probing = false
		b.log("reopened")
		return
	}
	b.failures++
	if b.failures >= b.maxFailures {
		b.openedAt = time.Now()
		b.probing = false
		b.log("opened")
	}
}

func (b *Breaker) log(state string) {
	if b.logger == nil {
		return
	}
	b.logger.Warn().Str("target", b.target).Str("state", state).Msg("circuit breaker transition")
}
