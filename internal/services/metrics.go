package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// queueJoins counts accepted enrollments (not duplicate replays).
	queueJoins = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "peerfinder_records_joined_total",
			Help: "Total number of new records added to the queue.",
		},
	)

	// groupsFormed counts groups created, labelled by how they were formed:
	// "exact" for full-filter group matches, "pair" for offer/need pairs,
	// and "fallback" for relaxed-filter sweeps.
	groupsFormed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerfinder_groups_formed_total",
			Help: "Total number of groups formed, by matching mode.",
		},
		[]string{"mode"},
	)

	// storeContention counts writes abandoned after exhausting snapshot
	// retries. A non-zero rate under normal load suggests the retry budget
	// is too small for the write volume.
	storeContention = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "peerfinder_store_contention_total",
			Help: "Total number of queue updates abandoned due to snapshot contention.",
		},
	)

	// notifyFailures counts notification sends that returned an error.
	// Notification delivery never affects the outcome of the operation
	// that triggered it.
	notifyFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "peerfinder_notifications_failed_total",
			Help: "Total number of failed notification sends.",
		},
	)
)

func init() {
	prometheus.MustRegister(queueJoins, groupsFormed, storeContention, notifyFailures)
}
