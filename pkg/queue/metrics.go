package queue

import (
	"context"
	"time"

	// Packages
	schema "github.com/timgit/pg-boss-sub002/pkg/queue/schema"
	prometheus "github.com/prometheus/client_golang/prometheus"
)

///////////////////////////////////////////////////////////////////////////////
// CONSTANTS

const (
	metricsTimeout = 30 * time.Second
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type metrics struct {
	manager   *Manager
	queueJobs *prometheus.Desc
	warnings  *prometheus.Desc
}

var _ prometheus.Collector = (*metrics)(nil)

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewCollector returns a prometheus collector for the job counts of each
// queue, and the number of warnings raised. The manager must be non-nil.
func NewCollector(manager *Manager) prometheus.Collector {
	if manager == nil {
		panic("manager is nil")
	}
	labels := prometheus.Labels{"schema": manager.Schema()}
	return &metrics{
		manager: manager,
		queueJobs: prometheus.NewDesc(
			"pgboss_queue_jobs",
			"Number of jobs in each queue by state",
			[]string{"queue", "state"}, labels,
		),
		warnings: prometheus.NewDesc(
			"pgboss_warnings_total",
			"Number of warnings raised by this process",
			nil, labels,
		),
	}
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS - COLLECTOR

// Describe sends metric descriptors to the channel
func (m *metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.queueJobs
	ch <- m.warnings
}

// Collect fetches metrics from the database and sends them to the channel
func (m *metrics) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), metricsTimeout)
	defer cancel()

	if err := m.collectQueueJobs(ctx, ch); err != nil {
		ch <- prometheus.NewInvalidMetric(m.queueJobs, err)
	}
	ch <- prometheus.MustNewConstMetric(m.warnings, prometheus.CounterValue, float64(m.manager.warnings.Total()))
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (m *metrics) collectQueueJobs(ctx context.Context, ch chan<- prometheus.Metric) error {
	var stats schema.QueueStatsList
	if err := m.manager.conn.List(ctx, &stats, schema.QueueStatsRequest{}); err != nil {
		return err
	}

	// Send metrics for each queue and state
	for _, queue := range stats {
		for state, count := range map[string]uint64{
			"queued":   queue.Queued,
			"active":   queue.Active,
			"deferred": queue.Deferred,
			"total":    queue.Total,
		} {
			ch <- prometheus.MustNewConstMetric(m.queueJobs, prometheus.GaugeValue, float64(count), queue.Name, state)
		}
	}

	return nil
}
