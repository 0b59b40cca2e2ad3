package clock

import "time"

// Clock provides the current time and can be mocked for testing
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system clock.
// Times are UTC so stored created_at values compare consistently across backends.
type RealClock struct{}

// New creates a new RealClock
func New() *RealClock {
	return &RealClock{}
}

// Now returns the current UTC time
func (c *RealClock) Now() time.Time {
	return time.Now().UTC()
}
