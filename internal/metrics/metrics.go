// Package metrics counts image requests, deliveries, cancellations and
// failures per backend kind.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives observations from image sources. A nil *Prometheus is
// a valid Recorder that records nothing.
type Recorder interface {
	RequestStarted(backend string)
	Delivered(backend string, degraded bool)
	Cancelled(backend string)
	Failed(backend string, category string)
}

// Prometheus is a Recorder backed by prometheus counters.
type Prometheus struct {
	requests      *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	cancellations *prometheus.CounterVec
	failures      *prometheus.CounterVec
}

// NewPrometheus creates the counters and registers them with reg.
func NewPrometheus(reg prometheus.Registerer, namespace string) (*Prometheus, error) {
	p := &Prometheus{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Image requests issued, by backend.",
		}, []string{"backend"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Result handler invocations, by backend and degraded flag.",
		}, []string{"backend", "degraded"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancellations_total",
			Help:      "Requests cancelled before their final delivery.",
		}, []string{"backend"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Requests that delivered no image, by error category.",
		}, []string{"backend", "category"}),
	}
	for _, c := range []prometheus.Collector{p.requests, p.deliveries, p.cancellations, p.failures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) RequestStarted(backend string) {
	if p == nil {
		return
	}
	p.requests.WithLabelValues(backend).Inc()
}

func (p *Prometheus) Delivered(backend string, degraded bool) {
	if p == nil {
		return
	}
	p.deliveries.WithLabelValues(backend, strconv.FormatBool(degraded)).Inc()
}

func (p *Prometheus) Cancelled(backend string) {
	if p == nil {
		return
	}
	p.cancellations.WithLabelValues(backend).Inc()
}

func (p *Prometheus) Failed(backend, category string) {
	if p == nil {
		return
	}
	p.failures.WithLabelValues(backend, category).Inc()
}

// Nop is a Recorder that discards everything.
type Nop struct{}

func (Nop) RequestStarted(string)  {}
func (Nop) Delivered(string, bool) {}
func (Nop) Cancelled(string)       {}
func (Nop) Failed(string, string)  {}
