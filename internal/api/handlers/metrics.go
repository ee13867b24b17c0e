package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/skillgate/skillgate/internal/metrics"
)

// MetricsHandler exposes Prometheus metrics for scraping.
type MetricsHandler struct {
	registry *prometheus.Registry
	metrics  *metrics.PrometheusMetrics
	logger   zerolog.Logger
}

// NewMetricsHandler creates a registry with process/go collectors plus the
// Skillgate collectors and returns the handler wrapping it.
func NewMetricsHandler(logger zerolog.Logger) (*MetricsHandler, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m, err := metrics.NewPrometheusMetrics(registry)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		registry: registry,
		metrics:  m,
		logger:   logger.With().Str("component", "metrics_handler").Logger(),
	}, nil
}

// Metrics returns the collectors for instrumented components to record into.
func (h *MetricsHandler) Metrics() *metrics.PrometheusMetrics {
	return h.metrics
}

// RegisterPublicRoutes registers metrics routes that don't require authentication.
func (h *MetricsHandler) RegisterPublicRoutes(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})))
}
