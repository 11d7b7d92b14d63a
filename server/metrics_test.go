package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCollector_Record(t *testing.T) {
	m := NewMetricsCollector(prometheus.NewRegistry())

	m.RecordRequest("positions", http.StatusOK, 10*time.Millisecond)
	m.RecordRequest("positions", http.StatusOK, 20*time.Millisecond)
	m.RecordRequest("positions", http.StatusBadRequest, time.Millisecond)
	m.StreamOpened()
	m.StreamOpened()
	m.StreamClosed()
	m.RecordConjunction("木星", "土星")
	m.RecordRateLimited("api")

	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("positions", "200")); got != 2 {
		t.Errorf("requests_total{positions,200} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("positions", "400")); got != 1 {
		t.Errorf("requests_total{positions,400} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.streamClients); got != 1 {
		t.Errorf("stream_clients = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.conjunctions.WithLabelValues("木星-土星")); got != 1 {
		t.Errorf("conjunctions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.rateLimited.WithLabelValues("api")); got != 1 {
		t.Errorf("rate_limited = %v, want 1", got)
	}
}

func TestMetricsCollector_IndependentRegistries(t *testing.T) {
	// two collectors must not panic on duplicate registration
	NewMetricsCollector(nil)
	NewMetricsCollector(nil)
}

func TestMetricsHandler(t *testing.T) {
	s := newTestServer(t, testConfig())
	doRequest(t, s, http.MethodGet, "/api/events?t=0", "", "")

	srv := httptest.NewServer(s.metrics.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`orrery_requests_total{code="200",route="events"} 1`,
		"orrery_request_duration_seconds_bucket",
		"orrery_conjunctions_reported_total",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
