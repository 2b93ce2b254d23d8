package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gympro_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gympro_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	SubscriptionsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gympro_subscriptions_created_total",
			Help: "Total number of subscriptions created",
		},
		[]string{"plan", "cycle"},
	)

	PlanChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gympro_plan_changes_total",
			Help: "Total number of plan change requests by transition class",
		},
		[]string{"class"},
	)

	PlanSelectionBlockedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gympro_plan_selection_blocked_total",
			Help: "Total number of blocked plan selections by reason",
		},
		[]string{"reason"},
	)

	PendingChangesAppliedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gympro_pending_changes_applied_total",
			Help: "Total number of pending plan changes applied at rollover",
		},
	)

	SubscriptionsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gympro_subscriptions_expired_total",
			Help: "Total number of subscriptions expired at rollover",
		},
	)

	RenewalWarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gympro_renewal_warnings_total",
			Help: "Total number of renewal warning emails queued by urgency",
		},
		[]string{"urgency"},
	)

	EmailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gympro_emails_sent_total",
			Help: "Total number of emails sent",
		},
		[]string{"type", "status"},
	)

	EmailQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gympro_email_queue_length",
			Help: "Current length of email queue",
		},
	)

	ActiveSubscriptions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gympro_active_subscriptions",
			Help: "Number of active subscriptions",
		},
		[]string{"plan"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordSubscriptionCreated(planID, cycle string) {
	SubscriptionsCreatedTotal.WithLabelValues(planID, cycle).Inc()
}

func RecordPlanChange(class string) {
	PlanChangesTotal.WithLabelValues(class).Inc()
}

func RecordPlanSelectionBlocked(reason string) {
	PlanSelectionBlockedTotal.WithLabelValues(reason).Inc()
}

func RecordPendingChangeApplied() {
	PendingChangesAppliedTotal.Inc()
}

func RecordSubscriptionExpired() {
	SubscriptionsExpiredTotal.Inc()
}

func RecordRenewalWarning(urgency string) {
	RenewalWarningsTotal.WithLabelValues(urgency).Inc()
}

func RecordEmail(emailType, status string) {
	EmailsSentTotal.WithLabelValues(emailType, status).Inc()
}
