package common

import "time"

// Clock is the source of the current time. Everything that measures
// deadlines takes one so that tests can move time by hand
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// SystemClock returns the wall clock, normalised to UTC
func SystemClock() Clock {
	return systemClock{}
}
