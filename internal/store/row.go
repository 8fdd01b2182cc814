package store

import (
	"encoding/json"
	"fmt"
	"time"

	"cybersecbot/internal/campaign"
)

// campaignRow is the persisted form of a campaign.
// Milestones, fired milestones and the payload are JSON documents
type campaignRow struct {
	ID              string    `gorm:"type:TEXT;primaryKey"`
	Kind            string    `gorm:"type:TEXT;not null"`
	Topic           string    `gorm:"type:TEXT;not null;index"`
	TargetTime      time.Time `gorm:"not null;index"`
	Milestones      string    `gorm:"type:TEXT;not null"`
	FiredMilestones string    `gorm:"type:TEXT;not null"`
	State           string    `gorm:"type:TEXT;not null;index"`
	Payload         string    `gorm:"type:TEXT;not null"`
	ChannelID       string    `gorm:"type:TEXT"`
	MessageID       string    `gorm:"type:TEXT"`
	CloseReason     string    `gorm:"type:TEXT"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ClosedAt        *time.Time `gorm:"index"`
}

func (campaignRow) TableName() string { return "campaigns" }

type milestoneJSON struct {
	Name     string `json:"name"`
	OffsetNs int64  `json:"offset_ns"`
}

func toRow(c *campaign.Campaign) (campaignRow, error) {
	milestones := make([]milestoneJSON, 0, len(c.Milestones))
	for _, m := range c.Milestones {
		milestones = append(milestones, milestoneJSON{m.Name, int64(m.Offset)})
	}
	milestonesJSON, err := json.Marshal(milestones)
	if err != nil {
		return campaignRow{}, fmt.Errorf("marshal milestones: %w", err)
	}
	fired := c.FiredMilestones
	if fired == nil {
		fired = []string{}
	}
	firedJSON, err := json.Marshal(fired)
	if err != nil {
		return campaignRow{}, fmt.Errorf("marshal fired milestones: %w", err)
	}
	payload := string(c.Payload)
	if payload == "" {
		payload = "{}"
	}

	row := campaignRow{
		ID:              c.ID,
		Kind:            string(c.Kind),
		Topic:           string(c.Topic),
		TargetTime:      c.TargetTime.UTC(),
		Milestones:      string(milestonesJSON),
		FiredMilestones: string(firedJSON),
		State:           string(c.State),
		Payload:         payload,
		ChannelID:       c.Destination.ChannelID,
		MessageID:       c.Destination.MessageID,
		CloseReason:     string(c.CloseReason),
		CreatedAt:       c.CreatedAt.UTC(),
	}
	if !c.ClosedAt.IsZero() {
		closedAt := c.ClosedAt.UTC()
		row.ClosedAt = &closedAt
	}
	return row, nil
}

func fromRow(row *campaignRow) (campaign.Campaign, error) {
	var milestones []milestoneJSON
	if err := json.Unmarshal([]byte(row.Milestones), &milestones); err != nil {
		return campaign.Campaign{}, fmt.Errorf("unmarshal milestones of campaign %s: %w", row.ID, err)
	}
	var fired []string
	if err := json.Unmarshal([]byte(row.FiredMilestones), &fired); err != nil {
		return campaign.Campaign{}, fmt.Errorf("unmarshal fired milestones of campaign %s: %w", row.ID, err)
	}

	c := campaign.Campaign{
		ID:              row.ID,
		Kind:            campaign.Kind(row.Kind),
		Topic:           campaign.Topic(row.Topic),
		TargetTime:      row.TargetTime.UTC(),
		State:           campaign.State(row.State),
		Payload:         json.RawMessage(row.Payload),
		FiredMilestones: fired,
		Destination:     campaign.Destination{ChannelID: row.ChannelID, MessageID: row.MessageID},
		CreatedAt:       row.CreatedAt.UTC(),
		CloseReason:     campaign.CloseReason(row.CloseReason),
	}
	for _, m := range milestones {
		c.Milestones = append(c.Milestones, campaign.Milestone{Name: m.Name, Offset: time.Duration(m.OffsetNs)})
	}
	if row.ClosedAt != nil {
		c.ClosedAt = row.ClosedAt.UTC()
	}
	return c, nil
}
