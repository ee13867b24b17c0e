// Package metrics provides Prometheus metrics collection for Skillgate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics holds all registered collectors.
type PrometheusMetrics struct {
	// AuthValidations counts session validations by result.
	AuthValidations *prometheus.CounterVec
	// CacheLookups counts cache lookups by namespace and outcome.
	CacheLookups *prometheus.CounterVec
	// EntitlementChecks counts product access checks by outcome.
	EntitlementChecks *prometheus.CounterVec
	// SkillExecutions counts skill executions by action and status.
	SkillExecutions *prometheus.CounterVec
	// Charges counts committed charges by method.
	Charges *prometheus.CounterVec
	// ChargeAmount observes committed charge amounts in pence.
	ChargeAmount prometheus.Histogram
	// WebhookEvents counts received webhook events by source and outcome.
	WebhookEvents *prometheus.CounterVec
}

// NewPrometheusMetrics creates and registers all collectors on the registry.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		AuthValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillgate_auth_validations_total",
			Help: "Session validations by result (authenticated, unauthenticated, error).",
		}, []string{"result"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillgate_cache_lookups_total",
			Help: "Cache lookups by namespace (session, product) and outcome (hit, miss, error).",
		}, []string{"namespace", "outcome"}),
		EntitlementChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillgate_entitlement_checks_total",
			Help: "Product access checks by outcome (allowed, denied).",
		}, []string{"outcome"}),
		SkillExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillgate_skill_executions_total",
			Help: "Skill executions by action id and status (completed, rejected, failed).",
		}, []string{"action_id", "status"}),
		Charges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillgate_charges_total",
			Help: "Committed charges by method (free, credits, metered).",
		}, []string{"method"}),
		ChargeAmount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "skillgate_charge_amount_pence",
			Help:    "Committed charge amounts in pence.",
			Buckets: []float64{50, 100, 200, 400, 600, 1000, 2000, 5000},
		}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillgate_webhook_events_total",
			Help: "Received webhook events by source (storefront, stripe) and outcome (processed, rejected, failed).",
		}, []string{"source", "outcome"}),
	}

	collectors := []prometheus.Collector{
		m.AuthValidations,
		m.CacheLookups,
		m.EntitlementChecks,
		m.SkillExecutions,
		m.Charges,
		m.ChargeAmount,
		m.WebhookEvents,
	}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordAuthValidation records a session validation outcome.
func (m *PrometheusMetrics) RecordAuthValidation(result string) {
	m.AuthValidations.WithLabelValues(result).Inc()
}

// RecordCacheLookup records a cache lookup outcome.
func (m *PrometheusMetrics) RecordCacheLookup(namespace, outcome string) {
	m.CacheLookups.WithLabelValues(namespace, outcome).Inc()
}

// RecordEntitlementCheck records a product access check outcome.
func (m *PrometheusMetrics) RecordEntitlementCheck(outcome string) {
	m.EntitlementChecks.WithLabelValues(outcome).Inc()
}

// RecordSkillExecution records a skill execution outcome.
func (m *PrometheusMetrics) RecordSkillExecution(actionID, status string) {
	m.SkillExecutions.WithLabelValues(actionID, status).Inc()
}

// RecordCharge records a committed charge.
func (m *PrometheusMetrics) RecordCharge(method string, amountPence int64) {
	m.Charges.WithLabelValues(method).Inc()
	m.ChargeAmount.Observe(float64(amountPence))
}

// RecordWebhookEvent records a received webhook event.
func (m *PrometheusMetrics) RecordWebhookEvent(source, outcome string) {
	m.WebhookEvents.WithLabelValues(source, outcome).Inc()
}
