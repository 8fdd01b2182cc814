package engine

import (
	"fmt"

	"cybersecbot/internal/campaign"
)

// Notification is what a renderer produces for a milestone
type Notification struct {
	Content Content
	// New content for the message representing the campaign, if any
	Refresh *Content
	// Deliver as a reply to the message representing the campaign
	Reply bool
}

// A Renderer turns a due milestone of a campaign into a notification
type Renderer interface {
	Render(c *campaign.Campaign, m campaign.Milestone) (Notification, error)
}

type RendererFunc func(c *campaign.Campaign, m campaign.Milestone) (Notification, error)

func (f RendererFunc) Render(c *campaign.Campaign, m campaign.Milestone) (Notification, error) {
	return f(c, m)
}

// Renderers maps each topic to its renderer
type Renderers map[campaign.Topic]Renderer

func (r Renderers) Render(c *campaign.Campaign, m campaign.Milestone) (Notification, error) {
	renderer, ok := r[c.Topic]
	if !ok {
		return Notification{}, fmt.Errorf("no renderer for topic %q", c.Topic)
	}
	notification, err := renderer.Render(c, m)
	if err != nil {
		return Notification{}, fmt.Errorf("render milestone %s of campaign %s: %w", m.Name, c.ID, err)
	}
	if notification.Content.Empty() {
		return Notification{}, fmt.Errorf("render milestone %s of campaign %s: empty content", m.Name, c.ID)
	}
	return notification, nil
}
