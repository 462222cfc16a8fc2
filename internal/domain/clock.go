package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the time source injected into services; tests pass a
// clockwork.FakeClock.
type Clock = clockwork.Clock

// NewRealClock returns the wall clock.
func NewRealClock() Clock { return clockwork.NewRealClock() }

// NowUTC reads c in UTC with the precision the SQL stores round-trip.
func NowUTC(c Clock) time.Time {
	return c.Now().UTC().Truncate(time.Microsecond)
}
