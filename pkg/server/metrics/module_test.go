package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New(func() int { return 3 })

	m.Connected()
	m.Connected()
	m.Disconnected()
	m.Join(true)
	m.Join(false)
	m.Update(UPDATE_APPLIED)
	m.Update(UPDATE_APPLIED)
	m.Update(UPDATE_REJECTED)
	m.Delivered(true)
	m.Delivered(false)
	m.Fault()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sessions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.updates.WithLabelValues(UPDATE_APPLIED)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.joins.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped))

	recorder := httptest.NewRecorder()
	m.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(recorder.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "renderer_gm_updates_total{outcome=\"applied\"} 2")
	assert.Contains(t, string(body), "renderer_sessions 3")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.Connected()
	m.Join(true)
	m.Update(UPDATE_FAILED)
	m.Delivered(false)
	m.Fault()
}
