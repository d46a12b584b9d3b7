// Package observability collects run-level metrics on a private Prometheus
// registry. mimic is a batch tool, so metrics are not scraped over HTTP;
// they are gathered once at the end of a run and folded into the summary.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the instruments of one run.
type Metrics struct {
	registry *prometheus.Registry

	FilesProcessed prometheus.Counter
	TreesProcessed prometheus.Counter
	HalosTracked   prometheus.Counter
	FreshHalos     prometheus.Counter
	Mergers        prometheus.Counter
	ArenaHighWater prometheus.Gauge
}

// New creates a metric set on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mimic",
			Name:      name,
			Help:      help,
		})
		m.registry.MustRegister(c)

		return c
	}

	m.FilesProcessed = counter("files_processed_total", "Tree files fully processed.")
	m.TreesProcessed = counter("trees_processed_total", "Merger trees built and written.")
	m.HalosTracked = counter("halos_tracked_total", "Tracked halo entries appended to processed histories.")
	m.FreshHalos = counter("fresh_halos_total", "Tracked halos created without a progenitor.")
	m.Mergers = counter("mergers_total", "Tracked halos absorbed by their group central.")

	m.ArenaHighWater = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mimic",
		Name:      "arena_high_water_bytes",
		Help:      "Largest per-worker arena high-water mark observed.",
	})
	m.registry.MustRegister(m.ArenaHighWater)

	return m
}

// Snapshot gathers the current values keyed by metric name.
func (m *Metrics) Snapshot() (map[string]float64, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("observability: gather: %w", err)
	}

	values := make(map[string]float64, len(families))

	for _, family := range families {
		for _, metric := range family.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[family.GetName()] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[family.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}

	return values, nil
}
