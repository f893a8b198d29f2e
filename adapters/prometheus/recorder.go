// Package prometheus exposes core metrics through prometheus client_golang.
package prometheus

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/kdevda/go-mailflow/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DefaultDurationBuckets are milliseconds.
	DefaultDurationBuckets = []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

	knownLabels = map[string][]string{
		core.MetricSendTotal:    {"status", "provider_id"},
		core.MetricSendDuration: {"status"},
		core.MetricWebhookTotal: {"provider", "outcome"},
	}
)

// Recorder implements core.MetricsRecorder. Vectors are created on first use;
// the label set of a metric is fixed by its first observation unless it is
// one of the known mailflow metrics.
type Recorder struct {
	registry prometheus.Registerer
	gatherer prometheus.Gatherer
	buckets  []float64

	mu         sync.Mutex
	counters   map[string]*counterEntry
	histograms map[string]*histogramEntry
	onError    func(name string, err error)
}

type counterEntry struct {
	vec    *prometheus.CounterVec
	labels []string
}

type histogramEntry struct {
	vec    *prometheus.HistogramVec
	labels []string
}

type Option func(*Recorder)

func WithBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

// WithErrorHandler receives registration and label errors, which are otherwise dropped.
func WithErrorHandler(fn func(name string, err error)) Option {
	return func(r *Recorder) {
		r.onError = fn
	}
}

// NewRecorder registers into registry. A nil registry uses a fresh one.
func NewRecorder(registry *prometheus.Registry, opts ...Option) *Recorder {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	r := &Recorder{
		registry:   registry,
		gatherer:   registry,
		buckets:    DefaultDurationBuckets,
		counters:   map[string]*counterEntry{},
		histograms: map[string]*histogramEntry{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Handler serves the registry in the prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.gatherer
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value <= 0 {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	entry, err := r.counter(name, tags)
	if err != nil {
		r.fail(name, err)
		return
	}
	counter, err := entry.vec.GetMetricWith(labelValues(entry.labels, tags))
	if err != nil {
		r.fail(name, err)
		return
	}
	counter.Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	entry, err := r.histogram(name, tags)
	if err != nil {
		r.fail(name, err)
		return
	}
	observer, err := entry.vec.GetMetricWith(labelValues(entry.labels, tags))
	if err != nil {
		r.fail(name, err)
		return
	}
	observer.Observe(value)
}

func (r *Recorder) counter(name string, tags map[string]string) (*counterEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.counters[name]; ok {
		return entry, nil
	}
	labels := labelNames(name, tags)
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: helpFor(name),
	}, labels)
	registered, err := registerCollector(r.registry, vec)
	if err != nil {
		return nil, err
	}
	if existing, ok := registered.(*prometheus.CounterVec); ok {
		vec = existing
	}
	entry := &counterEntry{vec: vec, labels: labels}
	r.counters[name] = entry
	return entry, nil
}

func (r *Recorder) histogram(name string, tags map[string]string) (*histogramEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.histograms[name]; ok {
		return entry, nil
	}
	labels := labelNames(name, tags)
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    helpFor(name),
		Buckets: r.buckets,
	}, labels)
	registered, err := registerCollector(r.registry, vec)
	if err != nil {
		return nil, err
	}
	if existing, ok := registered.(*prometheus.HistogramVec); ok {
		vec = existing
	}
	entry := &histogramEntry{vec: vec, labels: labels}
	r.histograms[name] = entry
	return entry, nil
}

func (r *Recorder) fail(name string, err error) {
	if r.onError != nil {
		r.onError(name, err)
	}
}

func registerCollector(reg prometheus.Registerer, collector prometheus.Collector) (prometheus.Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector, nil
		}
		return nil, err
	}
	return collector, nil
}

func labelNames(name string, tags map[string]string) []string {
	if known, ok := knownLabels[name]; ok {
		return append([]string(nil), known...)
	}
	labels := make([]string, 0, len(tags))
	for key := range tags {
		key = strings.TrimSpace(key)
		if key != "" {
			labels = append(labels, key)
		}
	}
	sort.Strings(labels)
	return labels
}

// labelValues fills missing labels with "" and drops tags outside the label set.
func labelValues(labels []string, tags map[string]string) prometheus.Labels {
	values := make(prometheus.Labels, len(labels))
	for _, label := range labels {
		values[label] = tags[label]
	}
	return values
}

func helpFor(name string) string {
	switch name {
	case core.MetricSendTotal:
		return "Outbound email send attempts by status."
	case core.MetricSendDuration:
		return "Outbound email send latency in milliseconds."
	case core.MetricWebhookTotal:
		return "Inbound provider webhooks by outcome."
	default:
		return "mailflow metric " + name
	}
}

var _ core.MetricsRecorder = (*Recorder)(nil)
