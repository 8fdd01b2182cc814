package feeds

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cybersecbot/internal/campaign"
	"cybersecbot/internal/common"
	"cybersecbot/internal/engine"
	"cybersecbot/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Events API of CTFtime
const CTFTIME_EVENTS = "https://ctftime.org/api/v1/events/"

// Most events asked to CTFtime per refresh
const CTFTIME_LIMIT = 25

// Milestone of an event found after all its reminder windows closed
const CATCH_UP = "catch-up"

// Namespace of the ids of campaigns created from feed events
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/cybersecbot/feeds"))

// Feeds turns external event listings into campaigns
type Feeds struct {
	creator  Creator
	proxy    *common.Proxy
	clock    common.Clock
	settings Settings
	metrics  *metrics.Engine
}

func NewFeeds(creator Creator, proxy *common.Proxy, clock common.Clock, settings Settings, m *metrics.Engine) *Feeds {
	if clock == nil {
		clock = common.SystemClock()
	}
	if settings.CTFTimeURL == "" {
		settings.CTFTimeURL = CTFTIME_EVENTS
	}
	return &Feeds{creator, proxy, clock, settings, m}
}

// EventID is the campaign id of a feed event. The same event always maps
// to the same id, a moved event gets a new one
func EventID(event campaign.Event) string {
	key := event.Source + "/" + event.UID + "/" + event.Start.UTC().Format(time.RFC3339)
	return uuid.NewSHA1(namespace, []byte(key)).String()
}

// Refresh reads every configured feed. A failing feed does not keep the
// others from refreshing
func (feeds *Feeds) Refresh(ctx context.Context) error {
	var errs []error
	if _, err := feeds.RefreshCalendar(ctx); err != nil {
		errs = append(errs, err)
	}
	if _, err := feeds.RefreshCTFTime(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RefreshCalendar schedules reminders for the calendar events starting
// within the lookahead window
func (feeds *Feeds) RefreshCalendar(ctx context.Context) (Result, error) {

	if feeds.settings.CalendarURL == "" || feeds.settings.CalendarChannelID == "" {
		return Result{}, nil
	}

	// Request
	data, err := feeds.proxy.Request(ctx, feeds.settings.CalendarURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("refresh calendar: %w", err)
	}

	// Decode
	events, err := DecodeCalendar(data)
	if err != nil {
		return Result{}, fmt.Errorf("refresh calendar: %w", err)
	}

	now := feeds.clock.Now()
	soon := now.Add(feeds.settings.CalendarLookahead)

	var result Result
	for _, event := range events {
		if event.Start.Before(now) || event.Start.After(soon) {
			result.add(OutcomeSkipped)
			continue
		}
		outcome := feeds.schedule(ctx, event, engine.Spec{
			ID:          EventID(event),
			Kind:        campaign.RecurringMilestone,
			Topic:       campaign.TopicCalendar,
			TargetTime:  event.Start,
			Milestones:  feeds.reminders(event.Start, now),
			Payload:     event,
			Destination: campaign.Destination{ChannelID: feeds.settings.CalendarChannelID},
		})
		result.add(outcome)
	}
	log.Info().Msg(fmt.Sprintf("Calendar refreshed: %d new, %d known, %d skipped", result.Created, result.Known, result.Skipped))
	return result, nil
}

// reminders returns the milestones of a calendar event. An event that shows
// up after the window of its last reminder gets a single reminder due now
func (feeds *Feeds) reminders(start time.Time, now time.Time) campaign.Milestones {
	milestones := campaign.Reminders(feeds.settings.ReminderOffsets)
	if len(milestones) == 0 {
		return milestones
	}
	last := milestones[len(milestones)-1]
	if now.After(start.Add(last.Offset).Add(feeds.settings.ReminderTolerance)) {
		return campaign.Milestones{{Name: CATCH_UP, Offset: now.Sub(start)}}
	}
	return milestones
}

// RefreshCTFTime announces the CTFs starting within the configured window.
// Each new event is announced on the next engine tick
func (feeds *Feeds) RefreshCTFTime(ctx context.Context) (Result, error) {

	if feeds.settings.CTFChannelID == "" {
		return Result{}, nil
	}

	now := feeds.clock.Now()
	finish := now.Add(feeds.settings.CTFTimeWindow)

	// Request
	query := map[string]string{
		"limit":  strconv.Itoa(CTFTIME_LIMIT),
		"start":  strconv.FormatInt(now.Unix(), 10),
		"finish": strconv.FormatInt(finish.Unix(), 10),
	}
	data, err := feeds.proxy.Request(ctx, feeds.settings.CTFTimeURL, query)
	if err != nil {
		return Result{}, fmt.Errorf("refresh ctftime: %w", err)
	}

	// Decode
	events, err := DecodeCTFTime(data)
	if err != nil {
		return Result{}, fmt.Errorf("refresh ctftime: %w", err)
	}

	var result Result
	for _, event := range events {
		if event.Start.Before(now) {
			result.add(OutcomeSkipped)
			continue
		}
		outcome := feeds.schedule(ctx, event, engine.Spec{
			ID:          EventID(event),
			Kind:        campaign.OneShotDeadline,
			Topic:       campaign.TopicCTF,
			TargetTime:  now,
			Payload:     event,
			Destination: campaign.Destination{ChannelID: feeds.settings.CTFChannelID},
		})
		result.add(outcome)
	}
	log.Info().Msg(fmt.Sprintf("CTFtime refreshed: %d new, %d known, %d skipped", result.Created, result.Known, result.Skipped))
	return result, nil
}

func (feeds *Feeds) schedule(ctx context.Context, event campaign.Event, spec engine.Spec) string {
	outcome := OutcomeCreated
	_, err := feeds.creator.Create(ctx, spec)
	switch {
	case errors.Is(err, campaign.ErrExists):
		outcome = OutcomeKnown
	case err != nil:
		log.Error().Err(err).Msg(fmt.Sprintf("Could not schedule %s event %s", event.Source, event.UID))
		outcome = OutcomeFailed
	default:
		log.Info().Msg(fmt.Sprintf("Scheduled %s event %q starting %s", event.Source, event.Summary, event.Start.Format(time.RFC3339)))
	}
	feeds.metrics.FeedEvent(event.Source, outcome)
	return outcome
}
