package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"cybersecbot/internal/campaign"
	"cybersecbot/internal/common"
	"cybersecbot/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Store is the persistence the engine needs
type Store interface {
	Insert(ctx context.Context, c campaign.Campaign) error
	Get(ctx context.Context, id string) (campaign.Campaign, error)
	GetAllActive(ctx context.Context) ([]campaign.Campaign, error)
	Update(ctx context.Context, id string, fn func(c *campaign.Campaign) error) (campaign.Campaign, error)
	Delete(ctx context.Context, id string) error
	DeleteClosedBefore(ctx context.Context, t time.Time) (int64, error)
}

type Options struct {
	Store     Store
	Sink      Sink
	Renderers Renderers
	Policy    Policy
	Clock     common.Clock
	Metrics   *metrics.Engine
	// Upper bound of a single delivery
	DeliveryTimeout time.Duration
	// How long closed campaigns are kept. Zero keeps them forever
	Retention            time.Duration
	HousekeepingInterval time.Duration
}

// Engine owns the campaigns: it creates and mutates them on behalf of the
// bot and delivers their milestones when they come due
type Engine struct {
	store      Store
	ledger     *Ledger
	reconciler *Reconciler
	clock      common.Clock
	policy     Policy
	metrics    *metrics.Engine
}

func New(opts Options) (*Engine, error) {
	if opts.Store == nil || opts.Sink == nil {
		return nil, errors.New("engine needs a store and a sink")
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = common.SystemClock()
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 10 * time.Second
	}
	if opts.HousekeepingInterval <= 0 {
		opts.HousekeepingInterval = time.Hour
	}
	ledger := NewLedger()
	return &Engine{
		store:      opts.Store,
		ledger:     ledger,
		reconciler: newReconciler(opts, ledger),
		clock:      opts.Clock,
		policy:     opts.Policy,
		metrics:    opts.Metrics,
	}, nil
}

// Boot loads the fired milestones of every active campaign.
// Call it once before the first tick
func (e *Engine) Boot(ctx context.Context) error {
	campaigns, err := e.store.GetAllActive(ctx)
	if err != nil {
		return fmt.Errorf("boot engine: %w", err)
	}
	e.ledger.Rebuild(campaigns)
	log.Info().Msg(fmt.Sprintf("Engine booted with %d active campaigns", len(campaigns)))
	return nil
}

// Tick runs a reconciliation pass
func (e *Engine) Tick(ctx context.Context) error {
	return e.reconciler.Tick(ctx)
}

// Scheduler returns the scheduler that ticks the engine at its poll interval
func (e *Engine) Scheduler(grace time.Duration) *Scheduler {
	s := NewScheduler("campaigns", e.policy.PollInterval(), grace, e.Tick)
	s.Immediate = true
	return s
}

func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// Spec describes a campaign to create
type Spec struct {
	// Generated when empty
	ID         string
	Kind       campaign.Kind
	Topic      campaign.Topic
	TargetTime time.Time
	// Defaults to the single close milestone
	Milestones  campaign.Milestones
	Payload     any
	Destination campaign.Destination
}

// Create validates and persists a new campaign and returns its id.
// campaign.ErrExists is returned when the id is taken
func (e *Engine) Create(ctx context.Context, spec Spec) (string, error) {
	c := campaign.Campaign{
		ID:              spec.ID,
		Kind:            spec.Kind,
		Topic:           spec.Topic,
		TargetTime:      spec.TargetTime.UTC(),
		Milestones:      spec.Milestones,
		State:           campaign.Active,
		FiredMilestones: []string{},
		Destination:     spec.Destination,
		CreatedAt:       e.clock.Now(),
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if len(c.Milestones) == 0 {
		c.Milestones = campaign.Deadline()
	}
	switch payload := spec.Payload.(type) {
	case nil:
		c.Payload = json.RawMessage("{}")
	case json.RawMessage:
		c.Payload = slices.Clone(payload)
	default:
		if err := c.EncodePayload(payload); err != nil {
			return "", err
		}
	}
	if err := c.Validate(); err != nil {
		return "", fmt.Errorf("create campaign: %w", err)
	}
	if err := e.store.Insert(ctx, c); err != nil {
		return "", err
	}
	log.Info().Msg(fmt.Sprintf("Created %s campaign %s targeting %s", c.Topic, c.ID, c.TargetTime.Format(time.RFC3339)))
	return c.ID, nil
}

// Mutate applies a mutation to an active campaign atomically and returns
// the result. The mutation may only change the payload and the destination;
// the engine owned fields are restored afterwards
func (e *Engine) Mutate(ctx context.Context, id string, mutation campaign.Mutation) (campaign.Campaign, error) {
	return e.store.Update(ctx, id, func(c *campaign.Campaign) error {
		if !c.IsActive() {
			return campaign.Reject(id, campaign.ReasonClosed, "")
		}
		owned := c.Clone()
		if err := mutation(c); err != nil {
			return err
		}
		c.Kind = owned.Kind
		c.Topic = owned.Topic
		c.TargetTime = owned.TargetTime
		c.Milestones = owned.Milestones
		c.State = owned.State
		c.FiredMilestones = owned.FiredMilestones
		c.CreatedAt = owned.CreatedAt
		c.ClosedAt = owned.ClosedAt
		c.CloseReason = owned.CloseReason
		return nil
	})
}

// Cancel closes a campaign without delivering anything more.
// Cancelling a closed campaign does nothing
func (e *Engine) Cancel(ctx context.Context, id string) error {
	cancelled := false
	_, err := e.store.Update(ctx, id, func(c *campaign.Campaign) error {
		if c.IsActive() {
			c.Close(campaign.CloseCancelled, e.clock.Now())
			cancelled = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.ledger.Forget(id)
	if cancelled {
		e.metrics.Closed(string(campaign.CloseCancelled))
		log.Info().Msg(fmt.Sprintf("Cancelled campaign %s", id))
	}
	return nil
}

func (e *Engine) Get(ctx context.Context, id string) (campaign.Campaign, error) {
	return e.store.Get(ctx, id)
}

func (e *Engine) Active(ctx context.Context) ([]campaign.Campaign, error) {
	return e.store.GetAllActive(ctx)
}
