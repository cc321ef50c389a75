package events

import (
	"time"
)

// Event names consumed by dashboards and the surrounding application layer.
const (
	TypeTenantActivated        = "tenant.activated"
	TypeInfrastructureDeployed = "infrastructure.deployed"
	TypeAlertTriggered         = "alert.triggered"
	TypeAlertResolved          = "alert.resolved"
	TypeHealthCheckRecorded    = "healthcheck.recorded"
)

type Event struct {
	Type       string                 `json:"type"`
	TenantID   string                 `json:"tenant_id,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

func TenantActivated(tenantID string) Event {
	return Event{Type: TypeTenantActivated, TenantID: tenantID, OccurredAt: time.Now()}
}

func InfrastructureDeployed(tenantID, infraID, appURL string) Event {
	return Event{
		Type:       TypeInfrastructureDeployed,
		TenantID:   tenantID,
		OccurredAt: time.Now(),
		Payload: map[string]interface{}{
			"infrastructure_id": infraID,
			"application_url":   appURL,
		},
	}
}

func AlertTriggered(alertID, ruleID string, tenantID *string, severity string) Event {
	e := Event{
		Type:       TypeAlertTriggered,
		OccurredAt: time.Now(),
		Payload: map[string]interface{}{
			"alert_id": alertID,
			"rule_id":  ruleID,
			"severity": severity,
		},
	}
	if tenantID != nil {
		e.TenantID = *tenantID
	}
	return e
}

func AlertResolved(alertID, resolvedBy string, tenantID *string) Event {
	e := Event{
		Type:       TypeAlertResolved,
		OccurredAt: time.Now(),
		Payload: map[string]interface{}{
			"alert_id":    alertID,
			"resolved_by": resolvedBy,
		},
	}
	if tenantID != nil {
		e.TenantID = *tenantID
	}
	return e
}

func HealthCheckRecorded(tenantID, resultID, status string) Event {
	return Event{
		Type:       TypeHealthCheckRecorded,
		TenantID:   tenantID,
		OccurredAt: time.Now(),
		Payload: map[string]interface{}{
			"result_id": resultID,
			"status":    status,
		},
	}
}
