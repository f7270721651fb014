// Package monitoring - Prometheus metrics, rolling prediction statistics and class drift checks.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "braintumor"

// Error reasons used as the reason label of the prediction error counter.
const (
	ReasonInvalidUpload  = "invalid_upload"
	ReasonModelNotLoaded = "model_not_loaded"
	ReasonInference      = "inference_failure"
)

// Recorder owns the service's Prometheus collectors on a private registry.
type Recorder struct {
	registry     *prometheus.Registry
	predictions  *prometheus.CounterVec
	errors       *prometheus.CounterVec
	duration     prometheus.Histogram
	confidence   prometheus.Histogram
	modelLoaded  prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewRecorder creates and registers every collector. The per-class counters start at zero
// for each of classes so they are exported before the first prediction.
//
// Arguments:
//   - classes: The class labels.
//
// Returns:
//   - *Recorder: The recorder.
func NewRecorder(classes []string) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Total number of successful predictions by predicted class.",
		}, []string{"class"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_errors_total",
			Help:      "Total number of failed prediction requests by reason.",
		}, []string{"reason"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "Time spent preprocessing and running the model.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_confidence",
			Help:      "Confidence of the predicted class.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		modelLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_loaded",
			Help:      "1 when a model is loaded and serving, 0 otherwise.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"path", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
	}

	r.registry.MustRegister(
		r.predictions, r.errors, r.duration, r.confidence, r.modelLoaded,
		r.httpRequests, r.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	for _, class := range classes {
		r.predictions.WithLabelValues(class)
	}
	for _, reason := range []string{ReasonInvalidUpload, ReasonModelNotLoaded, ReasonInference} {
		r.errors.WithLabelValues(reason)
	}
	return r
}

// ObservePrediction records a successful prediction.
func (r *Recorder) ObservePrediction(class string, confidence float64, took time.Duration) {
	r.predictions.WithLabelValues(class).Inc()
	r.confidence.Observe(confidence)
	r.duration.Observe(took.Seconds())
}

// ObserveError records a failed prediction request.
func (r *Recorder) ObserveError(reason string) {
	r.errors.WithLabelValues(reason).Inc()
}

// SetModelLoaded sets the model readiness gauge.
func (r *Recorder) SetModelLoaded(loaded bool) {
	if loaded {
		r.modelLoaded.Set(1)
		return
	}
	r.modelLoaded.Set(0)
}

// ObserveHTTP records one served HTTP request.
func (r *Recorder) ObserveHTTP(path, method string, status int, took time.Duration) {
	r.httpRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(path).Observe(took.Seconds())
}

// Registry exposes the private registry, for tests and extra collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
