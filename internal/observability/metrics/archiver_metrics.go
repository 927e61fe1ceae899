package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Migration failure stages reported by the archiver.
const (
	ArchiveStageQuery   = "query"
	ArchiveStageRead    = "read"
	ArchiveStageWrite   = "write"
	ArchiveStageConfirm = "confirm"
	ArchiveStagePurge   = "purge"
)

// ArchiverMetrics captures migration-cycle health signals.
type ArchiverMetrics struct {
	cycleRuns       prometheus.Counter
	cycleDuration   prometheus.Observer
	cycleLocked     prometheus.Counter
	candidates      prometheus.Observer
	recordsArchived prometheus.Counter
	recordFailures  *prometheus.CounterVec
	purgePending    prometheus.Gauge
	runLoopLag      prometheus.Observer
}

var (
	archiverMetricsOnce sync.Once
	archiverMetrics     *ArchiverMetrics
)

// Archiver returns the singleton archiver metrics registry.
func Archiver() *ArchiverMetrics {
	return ArchiverWithConfig(Config{})
}

// ArchiverWithConfig returns the singleton archiver metrics registry using config labels.
func ArchiverWithConfig(cfg Config) *ArchiverMetrics {
	archiverMetricsOnce.Do(func() {
		archiverMetrics = newArchiverMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return archiverMetrics
}

// ResetArchiverMetricsForTest resets the archiver metrics singleton for tests.
func ResetArchiverMetricsForTest() {
	archiverMetricsOnce = sync.Once{}
	archiverMetrics = nil
}

func newArchiverMetrics(registerer prometheus.Registerer, cfg Config) *ArchiverMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "coldline"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	cycleRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "coldline_archiver_cycles_total",
		Help:        "Completed migration cycles, successful or not.",
		ConstLabels: constLabels,
	})
	cycleDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "coldline_archiver_cycle_duration_seconds",
		Help:        "Wall time of a migration cycle.",
		Buckets:     prometheus.ExponentialBuckets(0.1, 2, 12),
		ConstLabels: constLabels,
	})
	cycleLocked := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "coldline_archiver_cycles_locked_total",
		Help:        "Cycle attempts rejected because another cycle held the guard.",
		ConstLabels: constLabels,
	})
	candidates := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "coldline_archiver_candidates_per_cycle",
		Help:        "Candidate records selected per cycle after dedupe.",
		Buckets:     prometheus.ExponentialBuckets(1, 2, 14),
		ConstLabels: constLabels,
	})
	recordsArchived := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "coldline_archiver_records_archived_total",
		Help:        "Records confirmed in the cold tier and purged from the hot tier.",
		ConstLabels: constLabels,
	})
	recordFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "coldline_archiver_record_failures_total",
		Help:        "Per-record migration failures by stage.",
		ConstLabels: constLabels,
	}, []string{"stage"})
	purgePending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "coldline_archiver_purge_pending",
		Help:        "Records confirmed cold but whose hot-tier delete has not yet succeeded.",
		ConstLabels: constLabels,
	})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "coldline_archiver_run_loop_lag_seconds",
		Help:        "Delay between a cycle's scheduled start and its actual start.",
		Buckets:     prometheus.ExponentialBuckets(0.1, 2, 10),
		ConstLabels: constLabels,
	})

	for _, collector := range []prometheus.Collector{
		cycleRuns, cycleDuration, cycleLocked, candidates,
		recordsArchived, recordFailures, purgePending, runLoopLag,
	} {
		if err := registerer.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
		}
	}

	return &ArchiverMetrics{
		cycleRuns:       cycleRuns,
		cycleDuration:   cycleDuration,
		cycleLocked:     cycleLocked,
		candidates:      candidates,
		recordsArchived: recordsArchived,
		recordFailures:  recordFailures,
		purgePending:    purgePending,
		runLoopLag:      runLoopLag,
	}
}

func (m *ArchiverMetrics) IncCycleRun() {
	if m == nil {
		return
	}
	m.cycleRuns.Inc()
}

func (m *ArchiverMetrics) ObserveCycleDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(d.Seconds())
}

func (m *ArchiverMetrics) IncCycleLocked() {
	if m == nil {
		return
	}
	m.cycleLocked.Inc()
}

func (m *ArchiverMetrics) ObserveCandidates(count int) {
	if m == nil {
		return
	}
	m.candidates.Observe(float64(count))
}

func (m *ArchiverMetrics) IncRecordArchived() {
	if m == nil {
		return
	}
	m.recordsArchived.Inc()
}

func (m *ArchiverMetrics) IncRecordFailure(stage string) {
	if m == nil {
		return
	}
	m.recordFailures.WithLabelValues(stage).Inc()
}

func (m *ArchiverMetrics) SetPurgePending(count int) {
	if m == nil {
		return
	}
	m.purgePending.Set(float64(count))
}

func (m *ArchiverMetrics) ObserveRunLoopLag(d time.Duration) {
	if m == nil {
		return
	}
	m.runLoopLag.Observe(d.Seconds())
}
