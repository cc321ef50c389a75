package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Alert rule operations

func (r *Repository) CreateAlertRule(ctx context.Context, rule *AlertRule) error {
	query := `
        INSERT INTO alert_rules (
            id, tenant_id, name, metric_query, operator, threshold,
            interval_seconds, severity, enabled, targets, created_at, updated_at
        ) VALUES (
            :id, :tenant_id, :name, :metric_query, :operator, :threshold,
            :interval_seconds, :severity, :enabled, :targets, :created_at, :updated_at
        )`

	_, err := r.db.NamedExecContext(ctx, query, rule)
	return err
}

func (r *Repository) GetAlertRule(ctx context.Context, id string) (*AlertRule, error) {
	var rule AlertRule
	query := `SELECT * FROM alert_rules WHERE id = $1`
	err := r.db.GetContext(ctx, &rule, query, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alert rule %s: %w", id, ErrNotFound)
	}
	return &rule, err
}

// GetAlertRules returns every rule, disabled ones included. The admin API
// lists from here; the engine evaluates only the enabled subset.
func (r *Repository) GetAlertRules(ctx context.Context) ([]*AlertRule, error) {
	rules := []*AlertRule{}
	query := `SELECT * FROM alert_rules ORDER BY created_at`
	err := r.db.SelectContext(ctx, &rules, query)
	return rules, err
}

func (r *Repository) GetEnabledAlertRules(ctx context.Context) ([]*AlertRule, error) {
	rules := []*AlertRule{}
	query := `SELECT * FROM alert_rules WHERE enabled = true ORDER BY created_at`
	err := r.db.SelectContext(ctx, &rules, query)
	return rules, err
}

func (r *Repository) UpdateAlertRule(ctx context.Context, rule *AlertRule) error {
	query := `
        UPDATE alert_rules SET
            name = :name,
            metric_query = :metric_query,
            operator = :operator,
            threshold = :threshold,
            interval_seconds = :interval_seconds,
            severity = :severity,
            enabled = :enabled,
            targets = :targets,
            updated_at = :updated_at
        WHERE id = :id`

	_, err := r.db.NamedExecContext(ctx, query, rule)
	return err
}

func (r *Repository) DeleteAlertRule(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = $1`, id)
	return err
}

// Alert operations

func (r *Repository) CreateAlert(ctx context.Context, a *Alert) error {
	query := `
        INSERT INTO alerts (
            id, rule_id, tenant_id, severity, status, context, triggered_at
        ) VALUES (
            :id, :rule_id, :tenant_id, :severity, :status, :context, :triggered_at
        )`

	_, err := r.db.NamedExecContext(ctx, query, a)
	return err
}

func (r *Repository) GetAlert(ctx context.Context, id string) (*Alert, error) {
	var a Alert
	query := `SELECT * FROM alerts WHERE id = $1`
	err := r.db.GetContext(ctx, &a, query, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return &a, err
}

// GetActiveAlertByRuleAndTenant is the dedup lookup. tenantID may be nil for
// platform-wide rules, hence IS NOT DISTINCT FROM.
func (r *Repository) GetActiveAlertByRuleAndTenant(ctx context.Context, ruleID string, tenantID *string) (*Alert, error) {
	var a Alert
	query := `
        SELECT * FROM alerts
        WHERE rule_id = $1 AND tenant_id IS NOT DISTINCT FROM $2 AND status = $3
        LIMIT 1`

	err := r.db.GetContext(ctx, &a, query, ruleID, tenantID, AlertActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &a, err
}

func (r *Repository) GetActiveAlerts(ctx context.Context, tenantID *string) ([]*Alert, error) {
	alerts := []*Alert{}
	if tenantID == nil {
		query := `SELECT * FROM alerts WHERE status = $1 ORDER BY triggered_at DESC`
		err := r.db.SelectContext(ctx, &alerts, query, AlertActive)
		return alerts, err
	}
	query := `SELECT * FROM alerts WHERE status = $1 AND tenant_id = $2 ORDER BY triggered_at DESC`
	err := r.db.SelectContext(ctx, &alerts, query, AlertActive, *tenantID)
	return alerts, err
}

func (r *Repository) UpdateAlert(ctx context.Context, a *Alert) error {
	query := `
        UPDATE alerts SET
            status = :status,
            resolved_at = :resolved_at,
            resolved_by = :resolved_by,
            resolution_note = :resolution_note
        WHERE id = :id`

	_, err := r.db.NamedExecContext(ctx, query, a)
	return err
}

// Alert notification operations

func (r *Repository) CreateAlertNotification(ctx context.Context, n *AlertNotification) error {
	query := `
        INSERT INTO alert_notifications (
            id, alert_id, channel, recipient, status, error, created_at, sent_at, delivered_at
        ) VALUES (
            :id, :alert_id, :channel, :recipient, :status, :error, :created_at, :sent_at, :delivered_at
        )`

	_, err := r.db.NamedExecContext(ctx, query, n)
	return err
}

func (r *Repository) UpdateAlertNotification(ctx context.Context, n *AlertNotification) error {
	query := `
        UPDATE alert_notifications SET
            status = :status,
            error = :error,
            sent_at = :sent_at,
            delivered_at = :delivered_at
        WHERE id = :id`

	_, err := r.db.NamedExecContext(ctx, query, n)
	return err
}

func (r *Repository) GetAlertNotification(ctx context.Context, id string) (*AlertNotification, error) {
	var n AlertNotification
	query := `SELECT * FROM alert_notifications WHERE id = $1`
	err := r.db.GetContext(ctx, &n, query, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return &n, err
}

func (r *Repository) GetAlertNotifications(ctx context.Context, alertID string) ([]*AlertNotification, error) {
	notifications := []*AlertNotification{}
	query := `SELECT * FROM alert_notifications WHERE alert_id = $1 ORDER BY created_at`
	err := r.db.SelectContext(ctx, &notifications, query, alertID)
	return notifications, err
}
