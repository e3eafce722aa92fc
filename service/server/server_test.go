package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brojonat/saypay/service/config"
	"github.com/brojonat/saypay/service/custody"
	"github.com/brojonat/saypay/service/engine"
	"github.com/brojonat/saypay/service/intent"
	"github.com/brojonat/saypay/service/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutesRecordHTTPMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	store := newFakeStore()
	eng := engine.New(store, custody.NewMockProvider(), time.Second, nil, testLogger())
	cfg := &config.Config{DashboardToken: "sekrit"}
	srv := New(":0", cfg, store, intent.NewMockExtractor(), eng, nil, m, testLogger())
	handler := srv.routes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/memory", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	// An unauthorized dashboard request still counts, under its own handler label.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/transactions", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	count, err := testutil.GatherAndCount(reg, "http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = testutil.GatherAndCount(reg, "http_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCORSPreflight(t *testing.T) {
	store := newFakeStore()
	eng := engine.New(store, custody.NewMockProvider(), time.Second, nil, testLogger())
	cfg := &config.Config{DashboardToken: "sekrit"}
	srv := New(":0", cfg, store, intent.NewMockExtractor(), eng, nil, nil, testLogger())
	handler := srv.routes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/transactions", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
