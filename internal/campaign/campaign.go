package campaign

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Kind decides how a campaign's milestones are timed
type Kind string

const (
	// Fires once the target instant has been reached, however late
	OneShotDeadline Kind = "one_shot_deadline"
	// Fires once per milestone, only inside a tolerance window around the milestone instant
	RecurringMilestone Kind = "recurring_milestone"
)

func (k Kind) Valid() bool {
	return k == OneShotDeadline || k == RecurringMilestone
}

type State string

const (
	Active State = "active"
	Closed State = "closed"
)

// Topic selects the payload type and the renderer of a campaign
type Topic string

const (
	TopicGiveaway Topic = "giveaway"
	TopicRoster   Topic = "roster"
	TopicCalendar Topic = "calendar"
	TopicCTF      Topic = "ctf"
)

// Why a campaign reached the closed state
type CloseReason string

const (
	CloseCompleted       CloseReason = "completed"
	CloseTerminalFailure CloseReason = "terminal_failure"
	CloseCancelled       CloseReason = "cancelled"
	CloseExpired         CloseReason = "expired"
)

// Destination is where notifications of a campaign are delivered.
// MessageID is the message that represents the campaign in the channel
// (the giveaway or roster post), empty when there is none
type Destination struct {
	ChannelID string
	MessageID string
}

func (d Destination) Configured() bool {
	return d.ChannelID != ""
}

type Campaign struct {
	ID              string
	Kind            Kind
	Topic           Topic
	TargetTime      time.Time
	Milestones      Milestones
	State           State
	Payload         json.RawMessage
	FiredMilestones []string
	Destination     Destination
	CreatedAt       time.Time
	ClosedAt        time.Time
	CloseReason     CloseReason
}

func (c *Campaign) IsActive() bool {
	return c.State == Active
}

func (c *Campaign) HasFired(name string) bool {
	return slices.Contains(c.FiredMilestones, name)
}

// MarkFired records a milestone as delivered. The set only ever grows
func (c *Campaign) MarkFired(name string) {
	if !c.HasFired(name) {
		c.FiredMilestones = append(c.FiredMilestones, name)
	}
}

// Close moves the campaign to its terminal state. Closing twice keeps the
// first reason and instant
func (c *Campaign) Close(reason CloseReason, now time.Time) {
	if c.State == Closed {
		return
	}
	c.State = Closed
	c.CloseReason = reason
	c.ClosedAt = now.UTC()
}

// Instant at which the given milestone is due
func (c *Campaign) Due(m Milestone) time.Time {
	return c.TargetTime.Add(m.Offset)
}

// Terminal returns the latest milestone, whose firing closes the campaign
func (c *Campaign) Terminal() (Milestone, bool) {
	if len(c.Milestones) == 0 {
		return Milestone{}, false
	}
	sorted := c.Milestones.Sorted()
	return sorted[len(sorted)-1], true
}

// Clone returns a deep copy so callers can hand campaigns around without
// sharing slices
func (c Campaign) Clone() Campaign {
	clone := c
	clone.Milestones = slices.Clone(c.Milestones)
	clone.FiredMilestones = slices.Clone(c.FiredMilestones)
	clone.Payload = slices.Clone(c.Payload)
	return clone
}

// Validate checks the fields that every campaign needs before it is persisted
func (c *Campaign) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("campaign has no id")
	}
	if !c.Kind.Valid() {
		return fmt.Errorf("campaign %s has unknown kind %q", c.ID, c.Kind)
	}
	if c.Topic == "" {
		return fmt.Errorf("campaign %s has no topic", c.ID)
	}
	if c.TargetTime.IsZero() {
		return fmt.Errorf("campaign %s has no target time", c.ID)
	}
	if err := c.Milestones.Validate(); err != nil {
		return fmt.Errorf("campaign %s: %w", c.ID, err)
	}
	return nil
}

// DecodePayload unmarshals the payload of the campaign into the given value
func (c *Campaign) DecodePayload(v any) error {
	if len(c.Payload) == 0 {
		return fmt.Errorf("campaign %s has an empty payload", c.ID)
	}
	if err := json.Unmarshal(c.Payload, v); err != nil {
		return fmt.Errorf("decode payload of campaign %s: %w", c.ID, err)
	}
	return nil
}

// EncodePayload replaces the payload of the campaign
func (c *Campaign) EncodePayload(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode payload of campaign %s: %w", c.ID, err)
	}
	c.Payload = data
	return nil
}
