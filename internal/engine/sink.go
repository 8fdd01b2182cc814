package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// A Sink delivers rendered notifications to the chat platform
type Sink interface {
	Deliver(ctx context.Context, delivery Delivery) error
}

type Delivery struct {
	CampaignID string
	Milestone  string
	// campaignID/milestone, stable across retries of the same delivery
	IdempotencyKey string
	ChannelID      string
	// Message representing the campaign, edited with Refresh
	MessageID string
	// Message the notification answers to, if any
	ReplyTo string
	Content Content
	// New content for the message representing the campaign, if it changes
	Refresh *Content
}

// Content is a platform neutral message: plain text and an optional embed
type Content struct {
	Text  string
	Embed *Embed
}

type Embed struct {
	Title       string
	Description string
	URL         string
	Color       int
	Fields      []Field
	Footer      string
	Thumbnail   string
	Timestamp   time.Time
}

type Field struct {
	Name   string
	Value  string
	Inline bool
}

func (c Content) Empty() bool {
	return c.Text == "" && c.Embed == nil
}

type failureClass int

const (
	retryable failureClass = iota
	terminal
)

// DeliveryError classifies a failed delivery.
// Retryable failures are attempted again on a later tick, terminal ones
// close the campaign
type DeliveryError struct {
	class failureClass
	Err   error
}

func (e *DeliveryError) Error() string {
	if e.class == terminal {
		return fmt.Sprintf("terminal delivery failure: %v", e.Err)
	}
	return fmt.Sprintf("retryable delivery failure: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Retryable marks err as a failure worth trying again
func Retryable(err error) error {
	return &DeliveryError{class: retryable, Err: err}
}

// Terminal marks err as a failure that will never succeed
func Terminal(err error) error {
	return &DeliveryError{class: terminal, Err: err}
}

// IsTerminal reports whether err was classified as terminal.
// Unclassified errors and timeouts are retryable
func IsTerminal(err error) bool {
	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return deliveryErr.class == terminal
	}
	return false
}
