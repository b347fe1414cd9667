// Package util contains helpers shared by the commands and the evolution driver.
package util

import "time"

// A SkipThrottler rate limits an action by skipping it, rather than waiting, when it comes too soon after the previous one.
type SkipThrottler struct {
	d    time.Duration
	last time.Time
	now  func() time.Time
}

// NewSkipThrottler returns a throttler that allows at most one action every d.
func NewSkipThrottler(d time.Duration) *SkipThrottler {
	tt := &SkipThrottler{d: d, now: time.Now}
	return tt
}

// Ok reports whether the action may proceed, in which case the interval restarts.
func (tt *SkipThrottler) Ok() bool {
	now := tt.now()
	if !tt.last.IsZero() && now.Before(tt.last.Add(tt.d)) {
		return false
	}

	tt.last = now
	return true
}
