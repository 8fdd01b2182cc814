package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cybersecbot/internal/campaign"
	"cybersecbot/internal/common"
	"cybersecbot/internal/metrics"

	"github.com/rs/zerolog/log"
)

// Milestones that were delivered but could not be written to the store yet
type unpersisted struct {
	milestones []string
	close      bool
}

// Reconciler compares the active campaigns against the clock on every tick
// and delivers the milestones that are due. Tick is not safe for
// concurrent use; the scheduler never overlaps ticks
type Reconciler struct {
	store           Store
	ledger          *Ledger
	sink            Sink
	renderers       Renderers
	policy          Policy
	clock           common.Clock
	deliveryTimeout time.Duration
	retention       time.Duration
	metrics         *metrics.Engine

	unpersisted  map[string]*unpersisted
	housekeeping common.TimedExecutor
}

func newReconciler(opts Options, ledger *Ledger) *Reconciler {
	r := &Reconciler{
		store:           opts.Store,
		ledger:          ledger,
		sink:            opts.Sink,
		renderers:       opts.Renderers,
		policy:          opts.Policy,
		clock:           opts.Clock,
		deliveryTimeout: opts.DeliveryTimeout,
		retention:       opts.Retention,
		metrics:         opts.Metrics,
		unpersisted:     make(map[string]*unpersisted),
	}
	r.housekeeping = common.NewTimedExecutor(opts.HousekeepingInterval, opts.Clock, r.purge)
	return r
}

// Tick runs one reconciliation pass
func (r *Reconciler) Tick(ctx context.Context) error {
	start := time.Now()
	defer func() { r.metrics.ObserveTick(time.Since(start)) }()

	now := r.clock.Now()
	r.persistPending(ctx, now)

	campaigns, err := r.store.GetAllActive(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	r.metrics.SetActive(len(campaigns))

	for i := range campaigns {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.reconcileOne(ctx, &campaigns[i], now)
	}

	if r.retention > 0 {
		if _, err := r.housekeeping.Execute(ctx); err != nil {
			log.Error().Err(err).Msg("Could not purge closed campaigns")
		}
	}
	return nil
}

func (r *Reconciler) fired(c *campaign.Campaign, name string) bool {
	if c.HasFired(name) || r.ledger.Fired(c.ID, name) {
		return true
	}
	if pending, ok := r.unpersisted[c.ID]; ok {
		for _, m := range pending.milestones {
			if m == name {
				return true
			}
		}
	}
	return false
}

// reconcileOne handles a single campaign. Failures and panics stay inside
func (r *Reconciler) reconcileOne(ctx context.Context, c *campaign.Campaign, now time.Time) {
	defer func() {
		if recovered := recover(); recovered != nil {
			log.Error().Msg(fmt.Sprintf("Panic while reconciling campaign %s: %v", c.ID, recovered))
		}
	}()

	if !c.Destination.Configured() {
		return
	}
	// Wait until the pending write goes through
	if _, ok := r.unpersisted[c.ID]; ok {
		return
	}
	terminalMilestone, ok := c.Terminal()
	if !ok {
		return
	}

	for _, m := range c.Milestones.Sorted() {
		if r.fired(c, m.Name) {
			continue
		}
		switch r.policy.Timing(c, m, now) {
		case NotYet:
			return
		case Missed:
			log.Debug().Msg(fmt.Sprintf("Milestone %s of campaign %s missed its window, skipping", m.Name, c.ID))
			continue
		}

		done, err := r.fire(ctx, c, m, m.Name == terminalMilestone.Name, now)
		if err != nil {
			log.Error().Err(err).Msg(fmt.Sprintf("Could not fire milestone %s of campaign %s", m.Name, c.ID))
		}
		if !done || m.Name == terminalMilestone.Name {
			return
		}
	}

	// Every milestone is either fired or missed
	reason := campaign.CloseExpired
	if r.allFired(c) {
		reason = campaign.CloseCompleted
	}
	log.Info().Msg(fmt.Sprintf("Every milestone of campaign %s is resolved, closing as %s", c.ID, reason))
	r.close(ctx, c, reason, now)
}

func (r *Reconciler) allFired(c *campaign.Campaign) bool {
	for _, m := range c.Milestones {
		if !r.fired(c, m.Name) {
			return false
		}
	}
	return true
}

// fire delivers one milestone and records it. done reports whether the
// campaign may move on to its next milestone
func (r *Reconciler) fire(ctx context.Context, c *campaign.Campaign, m campaign.Milestone, isTerminal bool, now time.Time) (done bool, err error) {

	// Latest version of the campaign, a mutation or a cancel may have happened
	fresh, err := r.store.Get(ctx, c.ID)
	if errors.Is(err, campaign.ErrNotFound) {
		r.ledger.Forget(c.ID)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !fresh.IsActive() || fresh.HasFired(m.Name) {
		return false, nil
	}

	notification, err := r.renderers.Render(&fresh, m)
	if err != nil {
		// Content that cannot be rendered will never be deliverable
		r.metrics.Delivery(string(c.Topic), metrics.ResultTerminal)
		r.close(ctx, &fresh, campaign.CloseTerminalFailure, now)
		return false, err
	}

	delivery := Delivery{
		CampaignID:     c.ID,
		Milestone:      m.Name,
		IdempotencyKey: c.ID + "/" + m.Name,
		ChannelID:      fresh.Destination.ChannelID,
		Content:        notification.Content,
		Refresh:        notification.Refresh,
	}
	if notification.Refresh != nil {
		delivery.MessageID = fresh.Destination.MessageID
	}
	if notification.Reply {
		delivery.ReplyTo = fresh.Destination.MessageID
	}

	deliveryCtx, cancel := context.WithTimeout(ctx, r.deliveryTimeout)
	err = r.sink.Deliver(deliveryCtx, delivery)
	cancel()
	if err != nil {
		if IsTerminal(err) {
			r.metrics.Delivery(string(c.Topic), metrics.ResultTerminal)
			r.close(ctx, &fresh, campaign.CloseTerminalFailure, now)
			return false, err
		}
		r.metrics.Delivery(string(c.Topic), metrics.ResultRetry)
		log.Warn().Err(err).Msg(fmt.Sprintf("Delivery of milestone %s of campaign %s failed, retrying next tick", m.Name, c.ID))
		return false, nil
	}
	log.Info().Msg(fmt.Sprintf("Delivered milestone %s of campaign %s", m.Name, c.ID))

	saved, err := r.store.Update(ctx, c.ID, func(row *campaign.Campaign) error {
		row.MarkFired(m.Name)
		if isTerminal {
			row.Close(campaign.CloseCompleted, now)
		}
		return nil
	})
	if errors.Is(err, campaign.ErrNotFound) {
		r.metrics.Delivery(string(c.Topic), metrics.ResultDelivered)
		r.ledger.Forget(c.ID)
		return false, nil
	}
	if err != nil {
		r.metrics.Delivery(string(c.Topic), metrics.ResultUnsaved)
		r.remember(c.ID, m.Name, isTerminal)
		return false, fmt.Errorf("milestone delivered but not saved, holding it in memory: %w", err)
	}
	r.metrics.Delivery(string(c.Topic), metrics.ResultDelivered)

	if isTerminal {
		r.metrics.Closed(string(campaign.CloseCompleted))
		r.ledger.Forget(c.ID)
		return true, nil
	}
	// Cancelled while the delivery was in flight
	if !saved.IsActive() {
		r.ledger.Forget(c.ID)
		return false, nil
	}
	r.ledger.Mark(c.ID, m.Name)
	return true, nil
}

func (r *Reconciler) remember(campaignID string, milestone string, closes bool) {
	pending, ok := r.unpersisted[campaignID]
	if !ok {
		pending = &unpersisted{}
		r.unpersisted[campaignID] = pending
	}
	pending.milestones = append(pending.milestones, milestone)
	pending.close = pending.close || closes
}

// persistPending retries the writes of delivered milestones
func (r *Reconciler) persistPending(ctx context.Context, now time.Time) {
	for id, pending := range r.unpersisted {
		saved, err := r.store.Update(ctx, id, func(row *campaign.Campaign) error {
			for _, m := range pending.milestones {
				row.MarkFired(m)
			}
			if pending.close {
				row.Close(campaign.CloseCompleted, now)
			}
			return nil
		})
		if errors.Is(err, campaign.ErrNotFound) {
			delete(r.unpersisted, id)
			r.ledger.Forget(id)
			continue
		}
		if err != nil {
			log.Error().Err(err).Msg(fmt.Sprintf("Still unable to save delivered milestones of campaign %s", id))
			continue
		}
		log.Info().Msg(fmt.Sprintf("Saved delivered milestones %v of campaign %s", pending.milestones, id))
		delete(r.unpersisted, id)
		if pending.close {
			r.metrics.Closed(string(campaign.CloseCompleted))
			r.ledger.Forget(id)
			continue
		}
		if !saved.IsActive() {
			r.ledger.Forget(id)
			continue
		}
		for _, m := range pending.milestones {
			r.ledger.Mark(id, m)
		}
	}
}

func (r *Reconciler) close(ctx context.Context, c *campaign.Campaign, reason campaign.CloseReason, now time.Time) {
	_, err := r.store.Update(ctx, c.ID, func(row *campaign.Campaign) error {
		row.Close(reason, now)
		return nil
	})
	if err != nil && !errors.Is(err, campaign.ErrNotFound) {
		log.Error().Err(err).Msg(fmt.Sprintf("Could not close campaign %s", c.ID))
		return
	}
	r.metrics.Closed(string(reason))
	r.ledger.Forget(c.ID)
}

// purge removes the closed campaigns older than the retention window
func (r *Reconciler) purge(ctx context.Context) error {
	deleted, err := r.store.DeleteClosedBefore(ctx, r.clock.Now().Add(-r.retention))
	if err != nil {
		return fmt.Errorf("purge: %w", err)
	}
	if deleted > 0 {
		log.Info().Msg(fmt.Sprintf("Purged %d closed campaigns", deleted))
	}
	r.metrics.Purged(deleted)
	return nil
}
