package feeds

import (
	"context"
	"time"

	"cybersecbot/internal/engine"
)

// Creator is the part of the engine the feeds need
type Creator interface {
	Create(ctx context.Context, spec engine.Spec) (string, error)
}

type Settings struct {
	CalendarURL       string
	CalendarChannelID string
	// Events starting within this window of now are scheduled
	CalendarLookahead time.Duration
	ReminderOffsets   []time.Duration
	// Width of a reminder window on either side of its instant
	ReminderTolerance time.Duration

	CTFTimeURL    string
	CTFChannelID  string
	CTFTimeWindow time.Duration
}

// Outcomes of a feed event, also used as metric labels
const (
	OutcomeCreated = "created"
	OutcomeKnown   = "known"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Result summarises one refresh of a feed
type Result struct {
	Created int
	Known   int
	Skipped int
}

func (r *Result) add(outcome string) {
	switch outcome {
	case OutcomeCreated:
		r.Created++
	case OutcomeKnown:
		r.Known++
	default:
		r.Skipped++
	}
}
