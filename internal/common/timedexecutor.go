package common

import (
	"context"
	"time"
)

// TimedExecutor runs a task at most once per interval. Callers invoke
// Execute as often as they like (typically from a loop that already runs)
// and the task only goes when the interval has passed since its last
// successful run
type TimedExecutor struct {
	stopwatch Stopwatch
	task      func(ctx context.Context) error
}

// The first call to Execute always runs the task
func NewTimedExecutor(interval time.Duration, clock Clock, task func(ctx context.Context) error) TimedExecutor {
	return TimedExecutor{NewStopwatch(interval, clock), task}
}

// Execute runs the task if it is due and reports whether it ran.
// A failed run does not restart the interval, so the next call tries again
func (te *TimedExecutor) Execute(ctx context.Context) (bool, error) {
	if stopped, _ := te.stopwatch.Stopped(); !stopped {
		return false, nil
	}
	if err := te.task(ctx); err != nil {
		return true, err
	}
	te.stopwatch.Start()
	return true, nil
}
