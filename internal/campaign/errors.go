package campaign

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no campaign exists with the requested id
	ErrNotFound = errors.New("campaign not found")
	// ErrExists is returned when creating a campaign whose id is already taken
	ErrExists = errors.New("campaign already exists")
)

// Reason explains why a mutation was rejected
type Reason string

const (
	ReasonCapacity       Reason = "capacity"
	ReasonClosed         Reason = "closed"
	ReasonDuplicate      Reason = "duplicate"
	ReasonNotParticipant Reason = "not_participant"
	ReasonNotFound       Reason = "not_found"
	ReasonInvalid        Reason = "invalid"
)

// MutationError is returned when a mutation is rejected. A rejected
// mutation leaves the campaign untouched
type MutationError struct {
	CampaignID string
	Reason     Reason
	Detail     string
}

func (e *MutationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("mutation of campaign %s rejected (%s): %s", e.CampaignID, e.Reason, e.Detail)
	}
	return fmt.Sprintf("mutation of campaign %s rejected (%s)", e.CampaignID, e.Reason)
}

// Helper constructor
func Reject(campaignID string, reason Reason, detail string) error {
	return &MutationError{CampaignID: campaignID, Reason: reason, Detail: detail}
}

// ReasonOf extracts the rejection reason from err, if it carries one
func ReasonOf(err error) (Reason, bool) {
	var mutationErr *MutationError
	if errors.As(err, &mutationErr) {
		return mutationErr.Reason, true
	}
	if errors.Is(err, ErrNotFound) {
		return ReasonNotFound, true
	}
	return "", false
}
