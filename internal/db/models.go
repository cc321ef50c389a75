package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type TenantStatus string

const (
	TenantPending   TenantStatus = "pending"
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantCancelled TenantStatus = "cancelled"
)

type InfrastructureStatus string

const (
	InfraDeploying InfrastructureStatus = "deploying"
	InfraDeployed  InfrastructureStatus = "deployed"
	InfraFailed    InfrastructureStatus = "failed"
)

type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// Severity ranks health statuses so aggregation can take the worst one.
func (s HealthStatus) Severity() int {
	switch s {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

type AlertStatus string

const (
	AlertActive     AlertStatus = "active"
	AlertResolved   AlertStatus = "resolved"
	AlertSuppressed AlertStatus = "suppressed"
)

type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationSent      NotificationStatus = "sent"
	NotificationFailed    NotificationStatus = "failed"
	NotificationDelivered NotificationStatus = "delivered"
)

type Tenant struct {
	ID          string       `json:"id" db:"id"`
	Name        string       `json:"name" db:"name"`
	Subdomain   string       `json:"subdomain" db:"subdomain"`
	Status      TenantStatus `json:"status" db:"status"`
	Modules     StringSlice  `json:"modules" db:"modules"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	ActivatedAt *time.Time   `json:"activated_at,omitempty" db:"activated_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}

type Subscription struct {
	ID          string      `json:"id" db:"id"`
	TenantID    string      `json:"-" db:"tenant_id"`
	Plan        string      `json:"plan" db:"plan"`
	Modules     StringSlice `json:"modules" db:"modules"`
	PeriodStart time.Time   `json:"period_start" db:"period_start"`
	PeriodEnd   *time.Time  `json:"period_end,omitempty" db:"period_end"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}

type TenantInfrastructure struct {
	ID             string               `json:"id" db:"id"`
	TenantID       string               `json:"tenant_id" db:"tenant_id"`
	Namespace      string               `json:"namespace" db:"namespace"`
	DatabaseDSN    string               `json:"database_dsn" db:"database_dsn"`
	DocumentDBURL  string               `json:"document_db_url" db:"document_db_url"`
	CacheAddr      string               `json:"cache_addr" db:"cache_addr"`
	IdentityRealm  string               `json:"identity_realm" db:"identity_realm"`
	ApplicationURL string               `json:"application_url" db:"application_url"`
	Status         InfrastructureStatus `json:"status" db:"status"`
	Error          string               `json:"error,omitempty" db:"error"`
	CreatedAt      time.Time            `json:"created_at" db:"created_at"`
	DeployedAt     *time.Time           `json:"deployed_at,omitempty" db:"deployed_at"`
}

// HealthCheckResult is one aggregated check cycle for one tenant.
// Rows are append-only; SubChecks keeps the order the checks ran in.
type HealthCheckResult struct {
	ID        string       `json:"id" db:"id"`
	TenantID  string       `json:"tenant_id" db:"tenant_id"`
	Status    HealthStatus `json:"status" db:"status"`
	SubChecks SubCheckList `json:"sub_checks" db:"sub_checks"`
	CheckedAt time.Time    `json:"checked_at" db:"checked_at"`
}

type SubCheck struct {
	Name       string       `json:"name"`
	Status     HealthStatus `json:"status"`
	Message    string       `json:"message,omitempty"`
	DurationMs int64        `json:"duration_ms"`
}

type AlertRule struct {
	ID          string              `json:"id" db:"id"`
	TenantID    *string             `json:"tenant_id,omitempty" db:"tenant_id"` // nil = platform-wide
	Name        string              `json:"name" db:"name"`
	MetricQuery string              `json:"metric_query" db:"metric_query"`
	Operator    string              `json:"operator" db:"operator"`
	Threshold   float64             `json:"threshold" db:"threshold"`
	Interval    int                 `json:"interval_seconds" db:"interval_seconds"`
	Severity    string              `json:"severity" db:"severity"`
	Enabled     bool                `json:"enabled" db:"enabled"`
	Targets     NotificationTargets `json:"targets" db:"targets"`
	CreatedAt   time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at" db:"updated_at"`
}

// ConditionMet evaluates the rule's operator against a sample value.
func (r *AlertRule) ConditionMet(value float64) (bool, error) {
	switch r.Operator {
	case "gt":
		return value > r.Threshold, nil
	case "lt":
		return value < r.Threshold, nil
	case "gte":
		return value >= r.Threshold, nil
	case "lte":
		return value <= r.Threshold, nil
	case "eq":
		return value == r.Threshold, nil
	case "ne":
		return value != r.Threshold, nil
	default:
		return false, fmt.Errorf("unknown operator %q", r.Operator)
	}
}

type NotificationTarget struct {
	Channel string `json:"channel"` // email, chat_webhook, webhook, sms
	Address string `json:"address"`
}

type Alert struct {
	ID             string      `json:"id" db:"id"`
	RuleID         string      `json:"rule_id" db:"rule_id"`
	TenantID       *string     `json:"tenant_id,omitempty" db:"tenant_id"`
	Severity       string      `json:"severity" db:"severity"`
	Status         AlertStatus `json:"status" db:"status"`
	Context        JSONB       `json:"context" db:"context"`
	TriggeredAt    time.Time   `json:"triggered_at" db:"triggered_at"`
	ResolvedAt     *time.Time  `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy     *string     `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolutionNote *string     `json:"resolution_note,omitempty" db:"resolution_note"`
}

type AlertNotification struct {
	ID          string             `json:"id" db:"id"`
	AlertID     string             `json:"alert_id" db:"alert_id"`
	Channel     string             `json:"channel" db:"channel"`
	Recipient   string             `json:"recipient" db:"recipient"`
	Status      NotificationStatus `json:"status" db:"status"`
	Error       string             `json:"error,omitempty" db:"error"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	SentAt      *time.Time         `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt *time.Time         `json:"delivered_at,omitempty" db:"delivered_at"`
}

// Advance enforces the only legal notification transitions:
// pending -> sent -> delivered, or pending -> failed.
func (n *AlertNotification) Advance(next NotificationStatus, at time.Time) error {
	switch {
	case n.Status == NotificationPending && next == NotificationSent:
		n.Status = NotificationSent
		n.SentAt = &at
	case n.Status == NotificationPending && next == NotificationFailed:
		n.Status = NotificationFailed
	case n.Status == NotificationSent && next == NotificationDelivered:
		n.Status = NotificationDelivered
		n.DeliveredAt = &at
	default:
		return fmt.Errorf("illegal notification transition %s -> %s", n.Status, next)
	}
	return nil
}

// Custom types for PostgreSQL JSONB columns

type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = []string{}
		return nil
	}
	return json.Unmarshal(value.([]byte), s)
}

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	return json.Unmarshal(value.([]byte), j)
}

type SubCheckList []SubCheck

func (l SubCheckList) Value() (driver.Value, error) {
	return json.Marshal(l)
}

func (l *SubCheckList) Scan(value interface{}) error {
	if value == nil {
		*l = SubCheckList{}
		return nil
	}
	return json.Unmarshal(value.([]byte), l)
}

type NotificationTargets []NotificationTarget

func (t NotificationTargets) Value() (driver.Value, error) {
	return json.Marshal(t)
}

func (t *NotificationTargets) Scan(value interface{}) error {
	if value == nil {
		*t = NotificationTargets{}
		return nil
	}
	return json.Unmarshal(value.([]byte), t)
}
