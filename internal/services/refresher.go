// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/keeper/internal/license"
)

// Backoff constants
const (
	defaultCheckInterval = time.Hour
	minCheckInterval     = time.Second

	// Failure backoff durations
	initialBackoff = 30 * time.Second
	maxBackoff     = 10 * time.Minute

	// Server rejection backoff durations
	rejectInitialBackoff = 5 * time.Minute
	rejectMaxBackoff     = time.Hour
)

// Checker is the part of the license service the refresher drives
type Checker interface {
	ValidateLicense(ctx context.Context) (license.Context, error)
}

// Refresher re-runs the license check on an interval in serve mode. Failed
// checks back off exponentially; a successful check resets the backoff.
type Refresher struct {
	checker  Checker
	interval time.Duration
	now      func() time.Time

	mu        sync.RWMutex
	attempts  int
	nextRetry time.Time
}

func NewRefresher(checker Checker, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	if interval < minCheckInterval {
		interval = minCheckInterval
	}
	return &Refresher{
		checker:  checker,
		interval: interval,
		now:      time.Now,
	}
}

// Run checks once immediately and then on every tick until ctx is done
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.check(ctx)

	for {
		select {
		case <-ticker.C:
			r.check(ctx)
		case <-ctx.Done():
			log.Debug().Msg("License refresher stopped")
			return
		}
	}
}

func (r *Refresher) check(ctx context.Context) {
	if r.isInBackoff() {
		log.Trace().Msg("License check skipped, in backoff period")
		return
	}

	hc, err := r.checker.ValidateLicense(ctx)
	if err != nil {
		// missing or untrusted files do not back off
		if !license.IsRecoverable(err) {
			r.trackFailure(err)
		}
		return
	}

	r.resetFailureTracking()
	log.Debug().Str("status", hc.Status.String()).Msg("Periodic license check completed")
}

// isInBackoff checks if the refresher is in a backoff period
func (r *Refresher) isInBackoff() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.attempts > 0 && r.now().Before(r.nextRetry)
}

// trackFailure records a failure and applies exponential backoff
func (r *Refresher) trackFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts++

	var backoffDuration time.Duration
	if license.KindOf(err) == license.FaultServerRejected {
		backoffDuration = calculateBackoff(r.attempts, rejectInitialBackoff, rejectMaxBackoff)
		log.Warn().Int("attempts", r.attempts).Dur("backoffDuration", backoffDuration).Msg("Activation service rejected the check, applying extended backoff")
	} else {
		backoffDuration = calculateBackoff(r.attempts, initialBackoff, maxBackoff)
		log.Debug().Int("attempts", r.attempts).Dur("backoffDuration", backoffDuration).Msg("License check failed, applying backoff")
	}

	r.nextRetry = r.now().Add(backoffDuration)
}

// calculateBackoff returns exponential backoff duration with limits
func calculateBackoff(attempts int, initialDuration, maxDuration time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 30 {
		return maxDuration
	}
	backoff := time.Duration(1<<(attempts-1)) * initialDuration
	if backoff > maxDuration || backoff <= 0 {
		backoff = maxDuration
	}
	return backoff
}

// resetFailureTracking clears failure tracking after a successful check
func (r *Refresher) resetFailureTracking() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.attempts > 0 {
		log.Debug().Int("attempts", r.attempts).Msg("Reset failure tracking after successful check")
	}
	r.attempts = 0
	r.nextRetry = time.Time{}
}

// BackoffStatus returns the backoff state (useful for debugging)
func (r *Refresher) BackoffStatus() (inBackoff bool, nextRetry time.Time, attempts int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inBackoff = r.attempts > 0 && r.now().Before(r.nextRetry)
	return inBackoff, r.nextRetry, r.attempts
}
