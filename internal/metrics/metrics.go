package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	claimsCreated   *prometheus.CounterVec
	omniMirror      *prometheus.CounterVec
	verifications   prometheus.Counter
	ingestBatches   *prometheus.CounterVec
	activeAlarms    prometheus.Gauge
	realtimeDropped prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicedesk_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "servicedesk_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"method"}),
		claimsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicedesk_claims_created_total",
			Help: "ATM claims created, split by whether the filing branch owns the ATM.",
		}, []string{"inter_branch"}),
		omniMirror: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicedesk_omni_mirror_total",
			Help: "Omni mirror attempts by result.",
		}, []string{"result"}),
		verifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "servicedesk_verification_updates_total",
			Help: "Accepted claim verification updates.",
		}),
		ingestBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "servicedesk_atm_ingest_batches_total",
			Help: "ATM status snapshots applied, by source.",
		}, []string{"source"}),
		activeAlarms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "servicedesk_atm_alarms_active",
			Help: "Active ATM alarms after the last snapshot.",
		}),
		realtimeDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "servicedesk_realtime_dropped_total",
			Help: "Realtime messages dropped for slow subscribers.",
		}),
	}
	reg.MustRegister(m.requests, m.requestDuration, m.claimsCreated, m.omniMirror,
		m.verifications, m.ingestBatches, m.activeAlarms, m.realtimeDropped)
	return m
}

func (m *Metrics) ObserveRequest(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (m *Metrics) ClaimCreated(interBranch bool) {
	if m == nil {
		return
	}
	m.claimsCreated.WithLabelValues(strconv.FormatBool(interBranch)).Inc()
}

func (m *Metrics) OmniMirror(result string) {
	if m == nil {
		return
	}
	m.omniMirror.WithLabelValues(result).Inc()
}

func (m *Metrics) VerificationUpdated() {
	if m == nil {
		return
	}
	m.verifications.Inc()
}

func (m *Metrics) IngestApplied(source string, activeAlarms int) {
	if m == nil {
		return
	}
	m.ingestBatches.WithLabelValues(source).Inc()
	m.activeAlarms.Set(float64(activeAlarms))
}

func (m *Metrics) RealtimeDropped() {
	if m == nil {
		return
	}
	m.realtimeDropped.Inc()
}
