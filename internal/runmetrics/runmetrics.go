// Package runmetrics records per-run counters in a private Prometheus
// registry and writes them in the text exposition format.
package runmetrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"rxbench/internal/results"
)

const namespace = "rxbench"

// Repository results.
const (
	RepoAnalyzed   = "analyzed"
	RepoUnresolved = "unresolved"
)

// Recorder is safe for concurrent use. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry
	units    *prometheus.CounterVec
	duration prometheus.Histogram
	memory   prometheus.Gauge
	repos    *prometheus.CounterVec

	mu   sync.Mutex
	peak float64
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_total",
			Help:      "Analysis units processed, by outcome.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unit_duration_seconds",
			Help:      "Wall time of successful analysis tool runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		memory: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unit_peak_memory_bytes",
			Help:      "Largest peak resident memory observed for any unit in this run.",
		}),
		repos: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repositories_total",
			Help:      "Repositories processed, by result.",
		}, []string{"result"}),
	}
	r.registry.MustRegister(r.units, r.duration, r.memory, r.repos)
	for _, k := range []results.Kind{results.KindSuccess, results.KindTimeout, results.KindCrashed, results.KindMalformedOutput} {
		r.units.WithLabelValues(string(k))
	}
	r.repos.WithLabelValues(RepoAnalyzed)
	r.repos.WithLabelValues(RepoUnresolved)
	return r
}

// ObserveUnit records one unit result.
func (r *Recorder) ObserveUnit(u results.UnitResult) {
	if r == nil {
		return
	}
	r.units.WithLabelValues(string(u.Status)).Inc()
	if u.IsError {
		return
	}
	if secs, ok := u.ExecutionTime.Get(); ok {
		r.duration.Observe(secs)
	}
	if peak, ok := u.PeakMemory.Get(); ok {
		r.raiseMemory(peak)
	}
}

// ObserveRepository records one repository with the given result label.
func (r *Recorder) ObserveRepository(result string) {
	if r == nil {
		return
	}
	r.repos.WithLabelValues(result).Inc()
}

func (r *Recorder) raiseMemory(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v > r.peak {
		r.peak = v
		r.memory.Set(v)
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteFile atomically writes the registry to path in the Prometheus text
// format.
func (r *Recorder) WriteFile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}
	return nil
}
