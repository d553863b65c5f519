package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checkout holds the completion metrics.
type Checkout struct {
	Completions   *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
	Compensations *prometheus.CounterVec
	Requests      *prometheus.CounterVec
}

func NewCheckout(reg prometheus.Registerer, service string) *Checkout {
	m := &Checkout{
		Completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Subsystem: service,
			Name:      "completions_total",
			Help:      "Checkout completion attempts by outcome.",
		}, []string{"outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "checkout",
			Subsystem: service,
			Name:      "completion_duration_ms",
			Help:      "Checkout completion latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"outcome"}),
		Compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Subsystem: service,
			Name:      "compensations_total",
			Help:      "Failed completions that had side effects rolled back, by reason.",
		}, []string{"reason"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Subsystem: service,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}), // status is the class, e.g. 2xx
	}
	reg.MustRegister(m.Completions, m.Duration, m.Compensations, m.Requests)
	return m
}

func (m *Checkout) ObserveCompletion(outcome string, d time.Duration) {
	m.Completions.WithLabelValues(outcome).Inc()
	m.Duration.WithLabelValues(outcome).Observe(float64(d.Milliseconds()))
}

func (m *Checkout) ObserveCompensation(reason string) {
	m.Compensations.WithLabelValues(reason).Inc()
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
