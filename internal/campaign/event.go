package campaign

import "time"

// Where an event was discovered
const (
	SourceCalendar = "calendar"
	SourceCTFTime  = "ctftime"
)

// Event is the payload of calendar reminders and CTF announcements
type Event struct {
	Source   string    `json:"source"`
	UID      string    `json:"uid"`
	Summary  string    `json:"summary"`
	URL      string    `json:"url,omitempty"`
	Location string    `json:"location,omitempty"`
	Start    time.Time `json:"start"`
	Finish   time.Time `json:"finish,omitempty"`
}
