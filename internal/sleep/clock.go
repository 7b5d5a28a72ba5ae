package sleep

import "time"

// Clock abstracts the time source of the waiter and of sleep_until.
//
// Now must carry a monotonic reading when deadlines are computed from it;
// time.Now does. Production code uses RealClock; tests inject a fake that
// advances on Sleep.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// RealClock is the wall clock.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time { return time.Now() }

// Sleep calls time.Sleep.
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }
