// Package metrics exposes extraction counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/brunobiangulo/depfacts/extract"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the depfacts collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	sentences          prometheus.Counter
	edges              *prometheus.CounterVec
	triples            *prometheus.CounterVec
	annotation         prometheus.Histogram
	annotationFailures prometheus.Counter
	documents          *prometheus.CounterVec
}

// New creates and registers all collectors, plus the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sentences: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "depfacts_sentences_total",
			Help: "Sentences run through extraction",
		}),
		edges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "depfacts_edges_total",
			Help: "Dependency edges seen, by how extraction treated them",
		}, []string{"class"}),
		triples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "depfacts_triples_total",
			Help: "Triples emitted, by kind",
		}, []string{"kind"}),
		annotation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "depfacts_annotation_seconds",
			Help:    "Latency of dependency source calls",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		annotationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "depfacts_annotation_failures_total",
			Help: "Dependency source calls that failed",
		}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "depfacts_documents_total",
			Help: "Documents processed, by final status",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		m.sentences, m.edges, m.triples, m.annotation, m.annotationFailures, m.documents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveSentence implements extract.Observer.
func (m *Metrics) ObserveSentence(s extract.Stats) {
	m.sentences.Add(float64(s.Sentences))
	m.edges.WithLabelValues("modifier").Add(float64(s.Modifier))
	m.edges.WithLabelValues("connective").Add(float64(s.Connective))
	m.edges.WithLabelValues("skipped").Add(float64(s.Skipped))
	m.edges.WithLabelValues("discarded").Add(float64(s.Discarded))
	m.edges.WithLabelValues("malformed").Add(float64(s.Malformed))
	m.triples.WithLabelValues(extract.KindSubClass).Add(float64(s.SubClass))
	m.triples.WithLabelValues(extract.KindRelation).Add(float64(s.Relations))
}

// ObserveAnnotation records one dependency source call.
func (m *Metrics) ObserveAnnotation(d time.Duration, err error) {
	m.annotation.Observe(d.Seconds())
	if err != nil {
		m.annotationFailures.Inc()
	}
}

// ObserveDocument records the final status of a document run.
func (m *Metrics) ObserveDocument(status string) {
	m.documents.WithLabelValues(status).Inc()
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
