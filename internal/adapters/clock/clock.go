package clock

import "time"

// Clock provides wall-clock time to the tracker.
type Clock struct{}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now()
}
