package lsp

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	restartBaseDelay = time.Second
	restartMaxDelay  = 30 * time.Second

	// maxFailures marks a server unhealthy after this many failed queries
	// in a row.
	maxFailures = 3
)

// restartState spaces out restarts of a server key that keeps failing. It
// outlives the servers it restarts.
type restartState struct {
	attempts  int
	notBefore time.Time
	delays    *backoff.ExponentialBackOff
}

func newRestartState() *restartState {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = restartBaseDelay
	b.MaxInterval = restartMaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	return &restartState{delays: b}
}

// allowed reports whether a restart may happen at now, and if not how long
// to wait.
func (r *restartState) allowed(now time.Time) (time.Duration, bool) {
	if now.Before(r.notBefore) {
		return r.notBefore.Sub(now), false
	}
	return 0, true
}

// record counts a restart at now and returns the delay before the next one.
func (r *restartState) record(now time.Time) time.Duration {
	r.attempts++
	delay := r.delays.NextBackOff()
	r.notBefore = now.Add(delay)
	return delay
}

// reset forgets past restarts once a server has proven healthy.
func (r *restartState) reset() {
	r.attempts = 0
	r.notBefore = time.Time{}
	r.delays.Reset()
}
