// Package clock abstracts wall-clock time so freshness checks and queue
// timestamps are testable without sleeping.
package clock

import "time"

// Clock supplies the current time. Production code uses System; tests use
// a deterministic implementation from internal/testutil.
type Clock interface {
	Now() time.Time
}

// System reads the real wall clock.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time {
	return time.Now()
}
