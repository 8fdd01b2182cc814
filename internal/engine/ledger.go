package engine

import (
	"slices"
	"sync"

	"cybersecbot/internal/campaign"
)

// Ledger remembers which milestones of the active campaigns have been
// delivered and persisted. It is rebuilt from the store at boot
type Ledger struct {
	mu    sync.RWMutex
	fired map[string]map[string]struct{}
}

func NewLedger() *Ledger {
	return &Ledger{fired: make(map[string]map[string]struct{})}
}

// Rebuild adds the fired milestones of the given campaigns.
// Entries already present are kept
func (l *Ledger) Rebuild(campaigns []campaign.Campaign) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range campaigns {
		for _, name := range c.FiredMilestones {
			l.markLocked(c.ID, name)
		}
	}
}

// Mark records a milestone. Only call it once the store holds the milestone
func (l *Ledger) Mark(campaignID string, milestone string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markLocked(campaignID, milestone)
}

func (l *Ledger) markLocked(campaignID string, milestone string) {
	milestones, ok := l.fired[campaignID]
	if !ok {
		milestones = make(map[string]struct{})
		l.fired[campaignID] = milestones
	}
	milestones[milestone] = struct{}{}
}

func (l *Ledger) Fired(campaignID string, milestone string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.fired[campaignID][milestone]
	return ok
}

// Forget drops a campaign that is no longer tracked
func (l *Ledger) Forget(campaignID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.fired, campaignID)
}

// Milestones returns the fired milestones of a campaign, sorted by name
func (l *Ledger) Milestones(campaignID string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.fired[campaignID]))
	for name := range l.fired[campaignID] {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Number of tracked campaigns
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.fired)
}
