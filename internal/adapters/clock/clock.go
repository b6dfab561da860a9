package clock

import "time"

// Clock provides time.Now() access.
type Clock struct{}

// New creates a wall clock.
func New() Clock { return Clock{} }

// NowUnixMilli returns current unix milliseconds.
func (Clock) NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
