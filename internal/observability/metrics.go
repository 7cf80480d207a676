// Package observability exposes run metrics to Prometheus.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nhle/lms-monitor/internal/model"
	"github.com/nhle/lms-monitor/internal/monitor"
)

const namespace = "lms_monitor"

// Metrics holds the monitor's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal          *prometheus.CounterVec
	runDuration        prometheus.Histogram
	itemsFound         *prometheus.GaugeVec
	newItemsTotal      *prometheus.CounterVec
	notificationsTotal prometheus.Counter
	errorsTotal        prometheus.Counter
	lastSuccess        prometheus.Gauge
}

var _ monitor.Recorder = (*Metrics)(nil)

// NewMetrics creates and registers the run metrics.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.initMetrics()
	if err := m.registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Monitoring runs by result",
		},
		[]string{"result"}, // success, failure, skipped
	)
	m.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of monitoring runs",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~8.5m
	})
	m.itemsFound = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "items_found",
			Help:      "Items seen on the portal in the last run",
		},
		[]string{"kind"},
	)
	m.newItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "new_items_total",
			Help:      "New or changed items that needed a notification",
		},
		[]string{"kind"},
	)
	m.notificationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_sent_total",
		Help:      "Notifications accepted by the channel",
	})
	m.errorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Errors counted across runs",
	})
	m.lastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last successful run",
	})
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.runsTotal, m.runDuration, m.itemsFound, m.newItemsTotal,
		m.notificationsTotal, m.errorsTotal, m.lastSuccess,
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// RunFinished records the outcome of a run.
func (m *Metrics) RunFinished(stats monitor.Stats, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.runsTotal.WithLabelValues(result).Inc()
	m.runDuration.Observe(stats.Duration.Seconds())

	m.itemsFound.WithLabelValues(string(model.KindAnnouncement)).Set(float64(stats.Announcements))
	m.itemsFound.WithLabelValues(string(model.KindAssignment)).Set(float64(stats.Assignments))
	m.itemsFound.WithLabelValues(string(model.KindExam)).Set(float64(stats.Exams))

	m.newItemsTotal.WithLabelValues(string(model.KindAnnouncement)).Add(float64(stats.NewAnnouncements))
	m.newItemsTotal.WithLabelValues(string(model.KindAssignment)).Add(float64(stats.NewAssignments))
	m.newItemsTotal.WithLabelValues(string(model.KindExam)).Add(float64(stats.NewExams))

	m.notificationsTotal.Add(float64(stats.NotificationsSent))
	m.errorsTotal.Add(float64(stats.Errors))

	if err == nil {
		m.lastSuccess.Set(float64(stats.StartedAt.Add(stats.Duration).Unix()))
	}
}

// RunSkipped records a run skipped because another held the run lock.
func (m *Metrics) RunSkipped() {
	m.runsTotal.WithLabelValues("skipped").Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
