// Package metrics concentra os coletores Prometheus do serviço.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics agrupa os coletores HTTP e de checkout
type Metrics struct {
	httpRequests     *prometheus.CounterVec
	httpDurations    *prometheus.HistogramVec
	checkoutOutcomes *prometheus.CounterVec
	checkoutDuration *prometheus.HistogramVec
	outboxPublished  *prometheus.CounterVec
}

// New cria e registra os coletores em reg
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests by route, method and status.",
			},
			[]string{"method", "route", "status"},
		),
		httpDurations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route and method.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		checkoutOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkout_total",
				Help:      "Checkout attempts by outcome.",
			},
			[]string{"outcome"},
		),
		checkoutDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "checkout_duration_seconds",
				Help:      "Checkout latency by outcome.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
			},
			[]string{"outcome"},
		),
		outboxPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_events_total",
				Help:      "Outbox events relayed to the broker by result.",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		m.httpRequests,
		m.httpDurations,
		m.checkoutOutcomes,
		m.checkoutDuration,
		m.outboxPublished,
	)
	return m
}

// ObserveCheckout registra o desfecho de um checkout
func (m *Metrics) ObserveCheckout(outcome string, duration time.Duration) {
	m.checkoutOutcomes.WithLabelValues(outcome).Inc()
	m.checkoutDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObservePublish registra o resultado do envio de um evento do outbox
func (m *Metrics) ObservePublish(ok bool) {
	result := "published"
	if !ok {
		result = "failed"
	}
	m.outboxPublished.WithLabelValues(result).Inc()
}

// Middleware mede as requisições HTTP pelo padrão da rota, não pelo path cru
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDurations.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
