package db

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the prometheus collectors of one repository.
type Metrics struct {
	// Commits counts published commits.
	// Labels: perspective
	Commits *prometheus.CounterVec

	// DocumentsWritten and DocumentsRemoved count document changes in
	// published commits.
	DocumentsWritten prometheus.Counter
	DocumentsRemoved prometheus.Counter

	// ObjectsArchived counts objects deleted by archival.
	ObjectsArchived prometheus.Counter

	// LockFailures counts writes that could not get their lock.
	LockFailures prometheus.Counter

	// CacheLookups counts fast path reads.
	// Labels: result (hit, miss)
	CacheLookups *prometheus.CounterVec

	// CommitDuration measures commit publishing, including rebase and
	// flush.
	CommitDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg. With a
// nil reg the collectors are created but not registered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Commits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "versiondb",
			Name:      "commits_total",
			Help:      "Total commits published",
		}, []string{"perspective"}),
		DocumentsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "versiondb",
			Name:      "documents_written_total",
			Help:      "Documents added or updated by published commits",
		}),
		DocumentsRemoved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "versiondb",
			Name:      "documents_removed_total",
			Help:      "Documents removed by published commits",
		}),
		ObjectsArchived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "versiondb",
			Name:      "objects_archived_total",
			Help:      "Objects deleted by archival",
		}),
		LockFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "versiondb",
			Name:      "lock_failures_total",
			Help:      "Writes rejected because a lock was unavailable",
		}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "versiondb",
			Name:      "cache_lookups_total",
			Help:      "Fast path cache lookups by result",
		}, []string{"result"}),
		CommitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "versiondb",
			Name:      "commit_duration_seconds",
			Help:      "Time to publish a commit",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}
