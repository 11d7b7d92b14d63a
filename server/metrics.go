package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsCollector struct {
	requestDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	streamClients   prometheus.Gauge
	chatTokens      prometheus.Counter
	chatMessages    *prometheus.CounterVec
	conjunctions    *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	gatherer        prometheus.Gatherer
}

// NewMetricsCollector registers the orrery metrics with reg. A nil reg uses
// a fresh registry so tests and multiple servers never collide.
func NewMetricsCollector(reg *prometheus.Registry) *MetricsCollector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &MetricsCollector{
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orrery_request_duration_seconds",
				Help:    "Time spent processing request",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "code"},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orrery_requests_total",
				Help: "Total number of requests",
			},
			[]string{"route", "code"},
		),
		streamClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "orrery_stream_clients",
				Help: "Open websocket snapshot streams",
			},
		),
		chatTokens: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "orrery_chat_stream_chunks_total",
				Help: "Total streamed chat fragments relayed to clients",
			},
		),
		chatMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orrery_chat_messages_total",
				Help: "Assistant replies by final status",
			},
			[]string{"status"},
		),
		conjunctions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orrery_conjunctions_reported_total",
				Help: "Conjunction events returned to clients",
			},
			[]string{"pair"},
		),
		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orrery_rate_limited_total",
				Help: "Requests rejected by the per-IP limiter",
			},
			[]string{"limiter"},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.requestDuration,
		m.requestsTotal,
		m.streamClients,
		m.chatTokens,
		m.chatMessages,
		m.conjunctions,
		m.rateLimited,
	)

	return m
}

func (m *MetricsCollector) RecordRequest(route string, code int, duration time.Duration) {
	c := strconv.Itoa(code)
	m.requestDuration.WithLabelValues(route, c).Observe(duration.Seconds())
	m.requestsTotal.WithLabelValues(route, c).Inc()
}

func (m *MetricsCollector) StreamOpened() { m.streamClients.Inc() }
func (m *MetricsCollector) StreamClosed() { m.streamClients.Dec() }

func (m *MetricsCollector) RecordChatChunk() { m.chatTokens.Inc() }

func (m *MetricsCollector) RecordChatMessage(status MessageStatus) {
	m.chatMessages.WithLabelValues(string(status)).Inc()
}

func (m *MetricsCollector) RecordConjunction(a, b string) {
	m.conjunctions.WithLabelValues(a + "-" + b).Inc()
}

func (m *MetricsCollector) RecordRateLimited(limiter string) {
	m.rateLimited.WithLabelValues(limiter).Inc()
}

// Handler exposes the collector's registry in the Prometheus text format.
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
