package models

import "time"

// Timer is the survey countdown. It is advisory: callers decide what expiry means.
// A zero Limit disables the countdown.
type Timer struct {
	StartedAt        time.Time
	Limit            time.Duration
	Paused           bool
	RemainingAtPause time.Duration
}

// Enabled reports whether a time limit is configured.
func (t *Timer) Enabled() bool { return t.Limit > 0 }

// Start (re)starts the countdown at now.
func (t *Timer) Start(now time.Time) {
	t.StartedAt = now
	t.Paused = false
	t.RemainingAtPause = 0
}

// Remaining returns the time left, frozen while paused and never negative.
func (t *Timer) Remaining(now time.Time) time.Duration {
	if !t.Enabled() {
		return 0
	}
	if t.Paused {
		return t.RemainingAtPause
	}
	left := t.Limit - now.Sub(t.StartedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether an enabled countdown has reached zero.
func (t *Timer) Expired(now time.Time) bool {
	return t.Enabled() && t.Remaining(now) == 0
}

// Pause freezes the remaining time.
func (t *Timer) Pause(now time.Time) {
	if t.Paused {
		return
	}
	t.RemainingAtPause = t.Remaining(now)
	t.Paused = true
}

// Resume continues the countdown from the frozen value by moving StartedAt forward.
func (t *Timer) Resume(now time.Time) {
	if !t.Paused {
		return
	}
	t.StartedAt = now.Add(t.RemainingAtPause - t.Limit)
	t.Paused = false
	t.RemainingAtPause = 0
}
