package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	LifecycleOps        *prometheus.CounterVec
	LifecycleDuration   *prometheus.HistogramVec
	LedgerEntries       *prometheus.CounterVec
	LedgerEventsDropped prometheus.Counter
	HistoryRecoveries   *prometheus.CounterVec
	StatsCacheHits      *prometheus.CounterVec
	PermitsExpired      prometheus.Counter
}

// New registers all registry metrics on the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers all registry metrics on reg. Tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LifecycleOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_lifecycle_operations_total",
			Help: "Household and person lifecycle operations by outcome",
		}, []string{"operation", "outcome"}),
		LifecycleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registry_lifecycle_duration_seconds",
			Help:    "Duration of lifecycle operations including their transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
		LedgerEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_ledger_entries_total",
			Help: "Change-history rows committed, by entity and change type",
		}, []string{"entity", "change_type"}),
		LedgerEventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "registry_ledger_events_dropped_total",
			Help: "Ledger events dropped because the dispatch queue was full",
		}),
		HistoryRecoveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_history_recoveries_total",
			Help: "History rows whose household view came from a fallback path",
		}, []string{"recovered_from"}),
		StatsCacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_stats_cache_lookups_total",
			Help: "Statistics cache lookups by result",
		}, []string{"result"}),
		PermitsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "registry_permits_expired_total",
			Help: "Temporary residence permits expired by the sweeper",
		}),
	}
}

// ObserveOperation records the outcome and duration of a lifecycle operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.LifecycleOps.WithLabelValues(op, outcome).Inc()
	m.LifecycleDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementLedgerEntry(entity, changeType string) {
	if m == nil {
		return
	}
	m.LedgerEntries.WithLabelValues(entity, changeType).Inc()
}

func (m *Metrics) IncrementEventDropped() {
	if m == nil {
		return
	}
	m.LedgerEventsDropped.Inc()
}

func (m *Metrics) IncrementRecovery(source string) {
	if m == nil {
		return
	}
	m.HistoryRecoveries.WithLabelValues(source).Inc()
}

func (m *Metrics) IncrementCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.StatsCacheHits.WithLabelValues(result).Inc()
}

func (m *Metrics) AddPermitsExpired(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.PermitsExpired.Add(float64(n))
}
