// Package metrics records check outcomes in a private Prometheus registry
// that can be written as a node_exporter textfile.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gotrs-io/formprobe/internal/version"
)

const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
)

// Recorder collects per-check counters, durations and last success times.
// A nil *Recorder discards everything.
type Recorder struct {
	reg         *prometheus.Registry
	checks      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	now         func() time.Time
}

// New returns a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	factory.NewGauge(prometheus.GaugeOpts{
		Name:        "formprobe_build_info",
		Help:        "Build of the binary that wrote these metrics",
		ConstLabels: version.GetInfo().Labels(),
	}).Set(1)
	return &Recorder{
		reg: reg,
		checks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "formprobe_checks_total",
			Help: "Checks run, by check name and result",
		}, []string{"check", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formprobe_check_duration_seconds",
			Help:    "Check duration",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"check"}),
		lastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "formprobe_last_success_timestamp_seconds",
			Help: "Unix time of the last successful check",
		}, []string{"check"}),
		now: time.Now,
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// Observe records one finished check that started at start.
func (r *Recorder) Observe(check string, start time.Time, err error) {
	if r == nil {
		return
	}
	end := r.now()
	r.duration.WithLabelValues(check).Observe(end.Sub(start).Seconds())
	if err != nil {
		r.checks.WithLabelValues(check, ResultFailed).Inc()
		return
	}
	r.checks.WithLabelValues(check, ResultSuccess).Inc()
	r.lastSuccess.WithLabelValues(check).Set(float64(end.Unix()))
}

// Time runs fn and records its outcome under check.
func (r *Recorder) Time(check string, fn func() error) error {
	if r == nil {
		return fn()
	}
	start := r.now()
	err := fn()
	r.Observe(check, start, err)
	return err
}

// WriteTextfile atomically writes the registry in text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.reg)
}
