package engine

import "time"

// Clock supplies the timestamps written to Created and LastEdited.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current UTC time truncated to whole seconds, the
// precision timestamps are stored with.
func (SystemClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
