// Package clock abstracts wall-clock reads and one-shot timers so pollers can be
// driven by real time in production and by a manually advanced clock in tests.
package clock

import (
	"time"
)

// Timer is a handle to a pending one-shot callback
type Timer interface {
	// Stop cancels the callback. It returns false if the callback already fired
	// or was already stopped.
	Stop() bool
}

// Clock provides the current time and one-shot timers
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// Real returns a Clock backed by the time package
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type located struct {
	Clock
	loc *time.Location
}

// InLocation reports c's time in loc, which is where "HH:mm" windows resolve
func InLocation(c Clock, loc *time.Location) Clock {
	if loc == nil {
		return c
	}
	return located{Clock: c, loc: loc}
}

func (l located) Now() time.Time {
	return l.Clock.Now().In(l.loc)
}
