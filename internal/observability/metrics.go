// Package observability holds the process-wide Prometheus collectors of the
// scoring service.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activitiesAppended = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "octofit",
		Subsystem: "ledger",
		Name:      "activities_appended_total",
		Help:      "Ledger entries appended, labelled by activity type.",
	}, []string{"activity_type"})
	pointsAwarded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "octofit",
		Subsystem: "ledger",
		Name:      "points_awarded_total",
		Help:      "Points awarded by appended ledger entries.",
	})
	activitiesVoided = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "octofit",
		Subsystem: "ledger",
		Name:      "activities_voided_total",
		Help:      "Ledger entries voided by an administrator.",
	})
	lastAppendGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "octofit",
		Subsystem: "ledger",
		Name:      "last_activity_appended_timestamp_seconds",
		Help:      "Unix timestamp of the most recent ledger append.",
	})
	membershipOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "octofit",
		Subsystem: "membership",
		Name:      "operations_total",
		Help:      "Join and leave attempts by outcome.",
	}, []string{"operation", "outcome"})
	leaderboardQueries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "octofit",
		Subsystem: "ranking",
		Name:      "queries_total",
		Help:      "Leaderboard queries served.",
	}, []string{"board"})
	excludedRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "octofit",
		Subsystem: "ranking",
		Name:      "excluded_records_total",
		Help:      "Records dropped from a leaderboard because they failed validation.",
	}, []string{"board", "reason"})
	integrityFaults = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "octofit",
		Subsystem: "profile",
		Name:      "integrity_faults_total",
		Help:      "Profiles whose stored points disagree with the ledger.",
	})
	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "octofit",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

func init() {
	prometheus.MustRegister(
		activitiesAppended,
		pointsAwarded,
		activitiesVoided,
		lastAppendGauge,
		membershipOps,
		leaderboardQueries,
		excludedRecords,
		integrityFaults,
		httpDuration,
	)
}

// RecordActivityAppended counts a committed append and moves the watermark.
func RecordActivityAppended(activityType string, points int64, ts time.Time) {
	activitiesAppended.WithLabelValues(activityType).Inc()
	pointsAwarded.Add(float64(points))
	if !ts.IsZero() {
		lastAppendGauge.Set(float64(ts.Unix()))
	}
}

// RecordActivityVoided counts a committed void.
func RecordActivityVoided() {
	activitiesVoided.Inc()
}

// RecordMembership counts a join or leave attempt. outcome is "ok" or a
// conflict reason.
func RecordMembership(operation, outcome string) {
	membershipOps.WithLabelValues(operation, outcome).Inc()
}

// RecordLeaderboardQuery counts a served leaderboard.
func RecordLeaderboardQuery(board string) {
	leaderboardQueries.WithLabelValues(board).Inc()
}

// RecordExcludedRecord counts a record skipped by the aggregator.
func RecordExcludedRecord(board, reason string) {
	excludedRecords.WithLabelValues(board, reason).Inc()
}

// RecordIntegrityFault counts a reconciliation divergence.
func RecordIntegrityFault() {
	integrityFaults.Inc()
}

// ObserveHTTPRequest records the latency of one handled request.
func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// ExcludedRecords exposes the exclusion counter for tests.
func ExcludedRecords() *prometheus.CounterVec { return excludedRecords }

// MembershipOperations exposes the join/leave counter for tests.
func MembershipOperations() *prometheus.CounterVec { return membershipOps }

// IntegrityFaults exposes the fault counter for tests.
func IntegrityFaults() prometheus.Counter { return integrityFaults }
