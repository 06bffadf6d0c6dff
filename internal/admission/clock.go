package admission

import "time"

// Clock abstracts time.Now so throttle-window behavior is testable with a
// controlled clock.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
