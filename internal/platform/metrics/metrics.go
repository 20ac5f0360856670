package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application. Each instance
// owns its registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	TokensIssued   prometheus.Counter
	TokensRotated  prometheus.Counter
	EmergencyViews *prometheus.CounterVec

	ChangesCreated   *prometheus.CounterVec
	VotesCast        *prometheus.CounterVec
	ChangesFinalized prometheus.Counter
	ChangesRejected  prometheus.Counter
	FinalizeFailures prometheus.Counter

	VitalsIngested     prometheus.Counter
	SignatureRejected  prometheus.Counter
	TelemetryReplays   prometheus.Counter
	NotificationErrors prometheus.Counter
	AuditDropped       prometheus.Counter

	RequestLatency *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TokensIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "instahelp_capability_tokens_issued_total",
			Help: "Total number of capability tokens issued, including rotations",
		}),
		TokensRotated: f.NewCounter(prometheus.CounterOpts{
			Name: "instahelp_capability_tokens_rotated_total",
			Help: "Total number of capability token rotations",
		}),
		EmergencyViews: f.NewCounterVec(prometheus.CounterOpts{
			Name: "instahelp_emergency_views_total",
			Help: "Emergency view lookups by outcome",
		}, []string{"outcome"}),
		ChangesCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "instahelp_pending_changes_created_total",
			Help: "Pending changes created, by initiator role and target",
		}, []string{"initiator_role", "target"}),
		VotesCast: f.NewCounterVec(prometheus.CounterOpts{
			Name: "instahelp_pending_change_votes_total",
			Help: "Votes recorded on pending changes, by decision and voter role",
		}, []string{"decision", "voter_role"}),
		ChangesFinalized: f.NewCounter(prometheus.CounterOpts{
			Name: "instahelp_pending_changes_finalized_total",
			Help: "Pending changes applied to patient records",
		}),
		ChangesRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "instahelp_pending_changes_rejected_total",
			Help: "Pending changes vetoed",
		}),
		FinalizeFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "instahelp_pending_change_finalize_failures_total",
			Help: "Approved changes whose finalization failed and awaits retry",
		}),
		VitalsIngested: f.NewCounter(prometheus.CounterOpts{
			Name: "instahelp_vitals_ingested_total",
			Help: "Telemetry payloads accepted",
		}),
		SignatureRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "instahelp_device_signature_rejected_total",
			Help: "Telemetry payloads rejected for a bad signature",
		}),
		TelemetryReplays: f.NewCounter(prometheus.CounterOpts{
			Name: "instahelp_telemetry_replays_total",
			Help: "Telemetry payloads rejected as replays",
		}),
		NotificationErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "instahelp_notification_errors_total",
			Help: "Approver notifications that failed to send",
		}),
		AuditDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "instahelp_audit_events_dropped_total",
			Help: "Audit events dropped because the async buffer was full",
		}),
		RequestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "instahelp_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// Handler serves this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncrementTokensIssued()  { m.TokensIssued.Inc() }
func (m *Metrics) IncrementTokensRotated() { m.TokensRotated.Inc() }

func (m *Metrics) ObserveEmergencyView(outcome string) {
	m.EmergencyViews.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementChangesCreated(initiatorRole, target string) {
	m.ChangesCreated.WithLabelValues(initiatorRole, target).Inc()
}

func (m *Metrics) IncrementVotes(decision, voterRole string) {
	m.VotesCast.WithLabelValues(decision, voterRole).Inc()
}

func (m *Metrics) ObserveRequest(method, route, status string, d time.Duration) {
	m.RequestLatency.WithLabelValues(method, route, status).Observe(d.Seconds())
}
