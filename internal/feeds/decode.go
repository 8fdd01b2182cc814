package feeds

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"cybersecbot/internal/campaign"

	ics "github.com/arran4/golang-ical"
	"github.com/rs/zerolog/log"
)

const noTitle = "(No Title)"

// DecodeCalendar reads the single events of an ICS document.
// Recurring events and events without a usable start are left out
func DecodeCalendar(data []byte) ([]campaign.Event, error) {

	cal, err := ics.ParseCalendar(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	events := []campaign.Event{}
	for _, vevent := range cal.Events() {

		// Recurrences are not expanded
		if vevent.GetProperty(ics.ComponentPropertyRrule) != nil {
			log.Debug().Msg(fmt.Sprintf("Skipping recurring calendar event %s", vevent.Id()))
			continue
		}

		start, err := vevent.GetStartAt()
		if err != nil {
			log.Debug().Msg(fmt.Sprintf("Skipping calendar event %s without a start: %v", vevent.Id(), err))
			continue
		}

		event := campaign.Event{
			Source:   campaign.SourceCalendar,
			UID:      vevent.Id(),
			Summary:  propertyValue(vevent, ics.ComponentPropertySummary),
			URL:      propertyValue(vevent, ics.ComponentPropertyUrl),
			Location: propertyValue(vevent, ics.ComponentPropertyLocation),
			Start:    start.UTC(),
		}
		if end, err := vevent.GetEndAt(); err == nil {
			event.Finish = end.UTC()
		}
		if event.Summary == "" {
			event.Summary = noTitle
		}
		if event.UID == "" {
			event.UID = event.Summary
		}
		events = append(events, event)
	}
	return events, nil
}

func propertyValue(vevent *ics.VEvent, property ics.ComponentProperty) string {
	if p := vevent.GetProperty(property); p != nil {
		return p.Value
	}
	return ""
}

// CTFtime event as served by the events API
type ctftimeEvent struct {
	ID         *int64 `json:"id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	CTFTimeURL string `json:"ctftime_url"`
	Format     string `json:"format"`
	Location   string `json:"location"`
	Onsite     bool   `json:"onsite"`
	Start      string `json:"start"`
	Finish     string `json:"finish"`
}

// DecodeCTFTime reads the events of a CTFtime API response.
// Events without an id or a parseable start are left out
func DecodeCTFTime(data []byte) ([]campaign.Event, error) {

	// unmarshal
	var raw []ctftimeEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode ctftime events: %w", err)
	}

	events := []campaign.Event{}
	for _, r := range raw {
		if r.ID == nil || r.Start == "" {
			continue
		}
		start, err := time.Parse(time.RFC3339, r.Start)
		if err != nil {
			log.Debug().Msg(fmt.Sprintf("Skipping ctftime event %d with start %q", *r.ID, r.Start))
			continue
		}

		event := campaign.Event{
			Source:  campaign.SourceCTFTime,
			UID:     strconv.FormatInt(*r.ID, 10),
			Summary: r.Title,
			URL:     r.URL,
			Start:   start.UTC(),
		}
		if event.Summary == "" {
			event.Summary = noTitle
		}
		if event.URL == "" {
			event.URL = r.CTFTimeURL
		}
		if r.Onsite && r.Location != "" {
			event.Location = r.Location
		} else if r.Format != "" {
			event.Location = r.Format
		}
		if finish, err := time.Parse(time.RFC3339, r.Finish); err == nil {
			event.Finish = finish.UTC()
		}
		events = append(events, event)
	}
	return events, nil
}
