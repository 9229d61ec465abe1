package core

import "github.com/prometheus/client_golang/prometheus"

// Job and query outcomes used as metric labels.
const (
	resultOK    = "ok"
	resultError = "error"
)

// serviceMetrics holds the collectors exported at /metrics.
type serviceMetrics struct {
	etlActive   prometheus.GaugeFunc
	datasets    prometheus.GaugeFunc
	etlJobs     *prometheus.CounterVec
	etlDuration *prometheus.HistogramVec
	queries     *prometheus.CounterVec
	persistErrs prometheus.Counter
}

func newServiceMetrics(activeJobs, datasetCount func() float64) *serviceMetrics {
	const namespace = "rowstore"

	return &serviceMetrics{
		etlActive: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "etl_active",
			Help:      "Number of ingestion jobs currently holding an ETL slot",
		}, activeJobs),

		datasets: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "datasets",
			Help:      "Number of datasets in the store",
		}, datasetCount),

		etlJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "etl_jobs_total",
			Help:      "Completed ingestion jobs by mode and result",
		}, []string{"mode", "result"}),

		etlDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "etl_duration_seconds",
			Help:      "Histogram of ingestion job run times",
			Buckets:   prometheus.ExponentialBuckets(1e-3, 5, 8),
		}, []string{"mode"}),

		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Row queries by result",
		}, []string{"result"}),

		persistErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Failed writes to the persistence backend",
		}),
	}
}

// PrometheusCollectors returns every collector for registration.
func (m *serviceMetrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.etlActive,
		m.datasets,
		m.etlJobs,
		m.etlDuration,
		m.queries,
		m.persistErrs,
	}
}

func outcome(err error) string {
	if err != nil {
		return resultError
	}
	return resultOK
}
