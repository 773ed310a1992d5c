// Package metrics exposes the engine's Prometheus counters.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Nixie-Tech-LLC/playout/internal/model"
	"github.com/Nixie-Tech-LLC/playout/internal/scheduler"
)

// Collector implements scheduler.Metrics and rotation.Metrics.
type Collector struct {
	builds        *prometheus.CounterVec
	buildDuration prometheus.Histogram
	selections    *prometheus.CounterVec
	resets        *prometheus.CounterVec
	noContent     *prometheus.CounterVec
	assignments   *prometheus.CounterVec
}

// NewCollector creates the collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playout_builds_total",
			Help: "Schedule builds by final status",
		}, []string{"status"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "playout_build_duration_seconds",
			Help:    "Wall time of a schedule build",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playout_selections_total",
			Help: "Items scheduled by the delay factor that found them",
		}, []string{"factor", "post_reset"}),
		resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playout_category_resets_total",
			Help: "Category rotation resets",
		}, []string{"category"}),
		noContent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playout_no_content_total",
			Help: "Slots that found no schedulable content",
		}, []string{"slot"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playout_rotation_assignments_total",
			Help: "Pool members assigned to days",
		}, []string{"pool"}),
	}
	reg.MustRegister(c.builds, c.buildDuration, c.selections, c.resets, c.noContent, c.assignments)
	return c
}

var _ scheduler.Metrics = (*Collector)(nil)

func (c *Collector) BuildFinished(status model.ScheduleStatus, took time.Duration) {
	c.builds.WithLabelValues(string(status)).Inc()
	c.buildDuration.Observe(took.Seconds())
}

func (c *Collector) Selection(factor float64, postReset bool) {
	pr := "false"
	if postReset {
		pr = "true"
	}
	c.selections.WithLabelValues(scheduler.FactorKey(factor), pr).Inc()
}

func (c *Collector) CategoryReset(category model.Category) {
	c.resets.WithLabelValues(string(category)).Inc()
}

func (c *Collector) NoContent(slot string) {
	c.noContent.WithLabelValues(slot).Inc()
}

func (c *Collector) Assigned(pool string, n int) {
	c.assignments.WithLabelValues(pool).Add(float64(n))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
