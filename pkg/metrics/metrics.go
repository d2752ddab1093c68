package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// NotificationsPublished counts delivery-channel publishes by event type.
	NotificationsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "careportal",
		Subsystem: "chat",
		Name:      "notifications_published_total",
		Help:      "Delivery channel notifications published, by event type.",
	}, []string{"type"})

	// PublishFailures counts lost best-effort publishes. Losses here are
	// compensated by the view poller, never surfaced to senders.
	PublishFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "careportal",
		Subsystem: "chat",
		Name:      "notification_publish_failures_total",
		Help:      "Delivery channel publishes that failed after persistence succeeded.",
	})

	// SnapshotMerges counts authoritative snapshots folded into views.
	SnapshotMerges = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "careportal",
		Subsystem: "chat",
		Name:      "snapshot_merges_total",
		Help:      "Authoritative snapshots merged into conversation views.",
	})

	// PollFailures counts failed list refreshes (retried on the next tick).
	PollFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "careportal",
		Subsystem: "chat",
		Name:      "poll_failures_total",
		Help:      "Conversation list refreshes that failed.",
	})

	// OpenViews tracks conversation views currently open.
	OpenViews = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "careportal",
		Subsystem: "chat",
		Name:      "open_views",
		Help:      "Conversation views currently open.",
	})
)

func init() {
	prometheus.MustRegister(
		NotificationsPublished,
		PublishFailures,
		SnapshotMerges,
		PollFailures,
		OpenViews,
	)
}

// Handler exposes the default prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
