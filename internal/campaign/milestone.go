package campaign

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Name of the only milestone of a deadline campaign
const CloseMilestone = "close"

// A milestone is a named offset from the campaign's target time
type Milestone struct {
	Name   string
	Offset time.Duration
}

type Milestones []Milestone

// Deadline returns the milestone set used by giveaways and rosters
func Deadline() Milestones {
	return Milestones{{Name: CloseMilestone, Offset: 0}}
}

// Reminders builds one milestone per offset, named after the offset
// (e.g. "-1h0m0s"). Duplicate offsets are collapsed
func Reminders(offsets []time.Duration) Milestones {
	milestones := Milestones{}
	for _, offset := range offsets {
		m := Milestone{Name: offset.String(), Offset: offset}
		if !slices.Contains(milestones, m) {
			milestones = append(milestones, m)
		}
	}
	return milestones.Sorted()
}

// Sorted returns a copy ordered by offset, earliest in time first.
// Ties are broken by name so the order is stable
func (ms Milestones) Sorted() Milestones {
	sorted := slices.Clone(ms)
	slices.SortStableFunc(sorted, func(a, b Milestone) int {
		if a.Offset != b.Offset {
			if a.Offset < b.Offset {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	return sorted
}

func (ms Milestones) Validate() error {
	if len(ms) == 0 {
		return fmt.Errorf("no milestones")
	}
	seen := make(map[string]struct{}, len(ms))
	for _, m := range ms {
		if m.Name == "" {
			return fmt.Errorf("milestone with offset %s has no name", m.Offset)
		}
		if _, ok := seen[m.Name]; ok {
			return fmt.Errorf("milestone %q appears twice", m.Name)
		}
		seen[m.Name] = struct{}{}
	}
	return nil
}

func (ms Milestones) Find(name string) (Milestone, bool) {
	for _, m := range ms {
		if m.Name == name {
			return m, true
		}
	}
	return Milestone{}, false
}
