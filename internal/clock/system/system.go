// Package system provides a real clock implementation.
package system

import "time"

// Clock implements progress.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time. The monotonic reading is kept so throttle
// intervals are measured on the monotonic clock.
func (Clock) Now() time.Time {
	return time.Now()
}
