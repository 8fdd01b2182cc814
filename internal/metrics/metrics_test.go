package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_NilIsNoop(t *testing.T) {
	var m *Engine
	m.Delivery("giveaway", ResultDelivered)
	m.Closed("completed")
	m.ObserveTick(time.Second)
	m.SetActive(3)
	m.Purged(2)
	m.FeedEvent("ctftime", "created")
}

func TestEngine_Counters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewEngine(registry)

	m.Delivery("giveaway", ResultDelivered)
	m.Delivery("giveaway", ResultDelivered)
	m.Delivery("roster", ResultRetry)
	m.Closed("expired")
	m.SetActive(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.deliveries.WithLabelValues("giveaway", ResultDelivered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("roster", ResultRetry)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.closes.WithLabelValues("expired")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.active))
}

func TestRouter(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewEngine(registry)
	m.Closed("completed")

	healthy := true
	server := httptest.NewServer(NewRouter(registry, func() error {
		if !healthy {
			return errors.New("gateway disconnected")
		}
		return nil
	}))
	defer server.Close()

	res, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `cybersecbot_campaigns_closed_total{reason="completed"} 1`))

	res, err = http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	healthy = false
	res, err = http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}
