package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cybersecbot"

// Delivery outcomes
const (
	ResultDelivered = "delivered"
	ResultRetry     = "retry"
	ResultTerminal  = "terminal"
	ResultUnsaved   = "unsaved"
)

// Engine holds the collectors of the notification engine.
// A nil *Engine is valid and records nothing
type Engine struct {
	deliveries   *prometheus.CounterVec
	closes       *prometheus.CounterVec
	tickDuration prometheus.Histogram
	active       prometheus.Gauge
	purged       prometheus.Counter
	feedEvents   *prometheus.CounterVec
}

// NewEngine registers the engine collectors with the given registry
func NewEngine(registry prometheus.Registerer) *Engine {
	factory := promauto.With(registry)
	return &Engine{
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Notification delivery attempts by topic and result",
		}, []string{"topic", "result"}),
		closes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "campaigns_closed_total",
			Help:      "Campaigns closed by reason",
		}, []string{"reason"}),
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of reconciler passes",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "campaigns_active",
			Help:      "Active campaigns seen by the last reconciler pass",
		}),
		purged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "campaigns_purged_total",
			Help:      "Closed campaigns removed after the retention window",
		}),
		feedEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_events_total",
			Help:      "Events read from external feeds by source and outcome",
		}, []string{"source", "outcome"}),
	}
}

func (m *Engine) Delivery(topic string, result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(topic, result).Inc()
}

func (m *Engine) Closed(reason string) {
	if m == nil {
		return
	}
	m.closes.WithLabelValues(reason).Inc()
}

func (m *Engine) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds())
}

func (m *Engine) SetActive(n int) {
	if m == nil {
		return
	}
	m.active.Set(float64(n))
}

func (m *Engine) Purged(n int64) {
	if m == nil {
		return
	}
	m.purged.Add(float64(n))
}

func (m *Engine) FeedEvent(source string, outcome string) {
	if m == nil {
		return
	}
	m.feedEvents.WithLabelValues(source, outcome).Inc()
}
