package engine

import (
	"fmt"
	"time"

	"cybersecbot/internal/campaign"
)

// Policy holds the timing precision of the engine
type Policy struct {
	// How late a deadline may fire at most
	DeadlinePrecision time.Duration
	// Half width of the window in which a recurring milestone may fire
	ReminderTolerance time.Duration
}

func (p Policy) Validate() error {
	if p.DeadlinePrecision <= 0 {
		return fmt.Errorf("deadline precision must be positive, got %s", p.DeadlinePrecision)
	}
	if p.ReminderTolerance <= 0 {
		return fmt.Errorf("reminder tolerance must be positive, got %s", p.ReminderTolerance)
	}
	return nil
}

// PollInterval is the scheduler interval that satisfies both precisions.
// Since it never exceeds the tolerance, every reminder window contains at
// least one tick
func (p Policy) PollInterval() time.Duration {
	return min(p.DeadlinePrecision, p.ReminderTolerance)
}

type Timing int

const (
	NotYet Timing = iota
	Due
	Missed
)

func (t Timing) String() string {
	switch t {
	case NotYet:
		return "not yet"
	case Due:
		return "due"
	case Missed:
		return "missed"
	}
	return "unknown"
}

// Timing tells whether milestone m of campaign c may fire at now.
// Window edges are inclusive
func (p Policy) Timing(c *campaign.Campaign, m campaign.Milestone, now time.Time) Timing {
	due := c.Due(m)
	switch c.Kind {
	case campaign.OneShotDeadline:
		if now.Before(due) {
			return NotYet
		}
		return Due
	default:
		if now.Before(due.Add(-p.ReminderTolerance)) {
			return NotYet
		}
		if now.After(due.Add(p.ReminderTolerance)) {
			return Missed
		}
		return Due
	}
}
