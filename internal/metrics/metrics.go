// Package metrics exposes Prometheus instrumentation for the gateway:
// HTTP requests, provider calls and key-value table operations.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/totalrecall/internal/store"
)

const namespace = "totalrecall"

const (
	statusSuccess  = "success"
	statusNotFound = "not_found"
	statusError    = "error"
)

// Recorder owns every collector and the registry they are registered with
type Recorder struct {
	registry *prometheus.Registry

	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
	providerCalls       *prometheus.CounterVec
	providerDuration    *prometheus.HistogramVec
	storeOps            *prometheus.CounterVec
	storeDuration       *prometheus.HistogramVec
	conversationsOpened prometheus.Counter
}

// New builds a recorder on its own registry. Go runtime and process
// collectors are included when withRuntime is set.
func New(withRuntime bool) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "route"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of provider API calls",
		}, []string{"provider", "op", "status"}),
		providerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of provider API calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"provider", "op"}),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of key-value table operations",
		}, []string{"table", "op", "status"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Duration of key-value table operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"table", "op"}),
		conversationsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_created_total",
			Help:      "Total number of conversations started",
		}),
	}

	r.registry.MustRegister(
		r.httpRequests, r.httpDuration,
		r.providerCalls, r.providerDuration,
		r.storeOps, r.storeDuration,
		r.conversationsOpened,
	)
	if withRuntime {
		r.registry.MustRegister(collectors.NewGoCollector())
		r.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return r
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records one served request. route is the registered
// path pattern, not the raw URL.
func (r *Recorder) ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveProviderCall implements aiconnectors.Observer
func (r *Recorder) ObserveProviderCall(provider, op string, duration time.Duration, err error) {
	r.providerCalls.WithLabelValues(provider, op, status(err)).Inc()
	r.providerDuration.WithLabelValues(provider, op).Observe(duration.Seconds())
}

// ObserveStoreOp implements store.Observer
func (r *Recorder) ObserveStoreOp(table, op string, duration time.Duration, err error) {
	st := status(err)
	if errors.Is(err, store.ErrNotFound) {
		st = statusNotFound
	}
	r.storeOps.WithLabelValues(table, op, st).Inc()
	r.storeDuration.WithLabelValues(table, op).Observe(duration.Seconds())
}

// ConversationCreated counts a newly started conversation
func (r *Recorder) ConversationCreated() {
	r.conversationsOpened.Inc()
}

func status(err error) string {
	if err != nil {
		return statusError
	}
	return statusSuccess
}
