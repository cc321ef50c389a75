package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the service's own operational metrics, exposed on /metrics.
type Collector struct {
	deploymentsTotal   *prometheus.CounterVec
	deploymentDuration prometheus.Histogram

	checksTotal   *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
	tenantHealth  *prometheus.GaugeVec

	rulesEvaluated *prometheus.CounterVec
	alertsTotal    *prometheus.CounterVec
	alertsActive   prometheus.Gauge

	notificationsSent   *prometheus.CounterVec
	notificationLatency *prometheus.HistogramVec

	schedulerInFlight prometheus.Gauge
}

func NewCollector() *Collector {
	return &Collector{
		deploymentsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_deployments_total",
				Help: "Total tenant deployments by outcome",
			},
			[]string{"outcome"},
		),
		deploymentDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tenantd_deployment_duration_seconds",
				Help:    "Duration of tenant deployments in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		checksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_health_checks_total",
				Help: "Total health check cycles per tenant and status",
			},
			[]string{"tenant_id", "status"},
		),
		checkDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantd_health_check_duration_seconds",
				Help:    "Duration of one tenant's health check cycle",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"tenant_id"},
		),
		tenantHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tenantd_tenant_health",
				Help: "Latest tenant health (0 healthy, 1 degraded, 2 unhealthy)",
			},
			[]string{"tenant_id"},
		),
		rulesEvaluated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_alert_rules_evaluated_total",
				Help: "Alert rule evaluations by outcome",
			},
			[]string{"outcome"},
		),
		alertsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_alerts_total",
				Help: "Alerts created by severity",
			},
			[]string{"severity"},
		),
		alertsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tenantd_alerts_active",
				Help: "Currently active alerts",
			},
		),
		notificationsSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_notifications_total",
				Help: "Alert notifications by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
		notificationLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantd_notification_latency_seconds",
				Help:    "Latency of notification delivery attempts",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 15},
			},
			[]string{"channel"},
		),
		schedulerInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tenantd_scheduler_in_flight_checks",
				Help: "Health checks currently executing",
			},
		),
	}
}

func (c *Collector) RecordDeployment(outcome string, duration time.Duration) {
	c.deploymentsTotal.WithLabelValues(outcome).Inc()
	c.deploymentDuration.Observe(duration.Seconds())
}

func (c *Collector) RecordHealthCheck(tenantID, status string, duration time.Duration) {
	c.checksTotal.WithLabelValues(tenantID, status).Inc()
	c.checkDuration.WithLabelValues(tenantID).Observe(duration.Seconds())

	var level float64
	switch status {
	case "degraded":
		level = 1
	case "unhealthy":
		level = 2
	}
	c.tenantHealth.WithLabelValues(tenantID).Set(level)
}

func (c *Collector) RecordRuleEvaluation(outcome string) {
	c.rulesEvaluated.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordAlertCreated(severity string) {
	c.alertsTotal.WithLabelValues(severity).Inc()
	c.alertsActive.Inc()
}

func (c *Collector) RecordAlertResolved() {
	c.alertsActive.Dec()
}

func (c *Collector) RecordNotification(channel string, success bool, latency time.Duration) {
	outcome := "sent"
	if !success {
		outcome = "failed"
	}
	c.notificationsSent.WithLabelValues(channel, outcome).Inc()
	c.notificationLatency.WithLabelValues(channel).Observe(latency.Seconds())
}

func (c *Collector) CheckStarted()  { c.schedulerInFlight.Inc() }
func (c *Collector) CheckFinished() { c.schedulerInFlight.Dec() }
