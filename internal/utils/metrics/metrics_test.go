package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	t.Run("registers with a custom registry", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m := New("test", reg)

		assert.NotNil(t, m.HTTPRequestsTotal)
		assert.NotNil(t, m.BackendOpsTotal)

		m.RecordCacheHit("redis")
		families, err := reg.Gather()
		assert.NoError(t, err)
		assert.NotEmpty(t, families)
	})

	t.Run("two instances on separate registries do not conflict", func(t *testing.T) {
		assert.NotPanics(t, func() {
			New("test", prometheus.NewRegistry())
			New("test", prometheus.NewRegistry())
		})
	})
}

func TestRecordHTTPRequest(t *testing.T) {
	m := New("test", prometheus.NewRegistry())

	m.RecordHTTPRequest("GET", "/api/v1/cache/items/:id", 200, 10*time.Millisecond)
	m.RecordHTTPRequest("GET", "/api/v1/cache/items/:id", 404, 5*time.Millisecond)
	m.RecordHTTPRequest("GET", "/api/v1/cache/items/:id", 201, 5*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/cache/items/:id", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/cache/items/:id", "4xx")))
}

func TestRecordBackendOp(t *testing.T) {
	m := New("test", prometheus.NewRegistry())

	m.RecordBackendOp("redis", "get", "ok", time.Millisecond)
	m.RecordBackendOp("redis", "get", "miss", time.Millisecond)
	m.RecordBackendOp("redis", "get", "ok", time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.BackendOpsTotal.WithLabelValues("redis", "get", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BackendOpsTotal.WithLabelValues("redis", "get", "miss")))
}

func TestCacheCounters(t *testing.T) {
	m := New("test", prometheus.NewRegistry())

	m.RecordCacheHit("memory")
	m.RecordCacheMiss("memory")
	m.RecordCacheMiss("memory")
	m.SetBreakerState("memory", 2)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("memory")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("memory")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.BreakerState.WithLabelValues("memory")))
}

func TestStatusCodeToString(t *testing.T) {
	tests := []struct {
		code     int
		expected string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{503, "5xx"},
		{100, "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, statusCodeToString(tt.code))
	}
}
