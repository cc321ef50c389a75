package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ospreyops/tenantd/internal/db"
	"github.com/ospreyops/tenantd/internal/events"
	"github.com/ospreyops/tenantd/internal/metrics"
	"github.com/ospreyops/tenantd/internal/notify"
)

// AlertStore is the slice of the registry the alert service needs.
type AlertStore interface {
	CreateAlert(ctx context.Context, a *db.Alert) error
	GetAlert(ctx context.Context, id string) (*db.Alert, error)
	GetActiveAlertByRuleAndTenant(ctx context.Context, ruleID string, tenantID *string) (*db.Alert, error)
	GetActiveAlerts(ctx context.Context, tenantID *string) ([]*db.Alert, error)
	UpdateAlert(ctx context.Context, a *db.Alert) error
}

// Service owns alert lifecycle: creation with dedup, and manual resolution.
// Resolution is deliberately decoupled from the condition clearing; an
// alert stays active until an operator resolves it.
type Service struct {
	store      AlertStore
	dispatcher *notify.Dispatcher
	publisher  events.Publisher
	metrics    *metrics.Collector
	logger     *zap.Logger
}

func NewService(store AlertStore, dispatcher *notify.Dispatcher, publisher events.Publisher, collector *metrics.Collector, logger *zap.Logger) *Service {
	return &Service{
		store:      store,
		dispatcher: dispatcher,
		publisher:  publisher,
		metrics:    collector,
		logger:     logger,
	}
}

// TriggerFromSample creates an alert for a breached rule unless one is
// already active for the (rule, tenant) pair. Returns the alert and whether
// it was newly created.
func (s *Service) TriggerFromSample(ctx context.Context, rule *db.AlertRule, sample metrics.Sample) (*db.Alert, bool, error) {
	existing, err := s.store.GetActiveAlertByRuleAndTenant(ctx, rule.ID, rule.TenantID)
	if err != nil {
		return nil, false, fmt.Errorf("dedup lookup for rule %s: %w", rule.ID, err)
	}
	if existing != nil {
		// Still breaching, already alerted. Not an error.
		return existing, false, nil
	}

	alertCtx := db.JSONB{
		"value":     sample.Value,
		"threshold": rule.Threshold,
		"operator":  rule.Operator,
		"query":     rule.MetricQuery,
	}
	for k, v := range sample.Labels {
		alertCtx["label_"+k] = v
	}

	alert := &db.Alert{
		ID:          uuid.New().String(),
		RuleID:      rule.ID,
		TenantID:    rule.TenantID,
		Severity:    rule.Severity,
		Status:      db.AlertActive,
		Context:     alertCtx,
		TriggeredAt: time.Now(),
	}
	if err := s.store.CreateAlert(ctx, alert); err != nil {
		return nil, false, fmt.Errorf("failed to persist alert for rule %s: %w", rule.ID, err)
	}

	s.publisher.Publish(ctx, events.AlertTriggered(alert.ID, rule.ID, rule.TenantID, rule.Severity))
	s.metrics.RecordAlertCreated(rule.Severity)
	s.logger.Info("Alert triggered",
		zap.String("alert_id", alert.ID),
		zap.String("rule_id", rule.ID),
		zap.String("severity", rule.Severity),
		zap.Float64("value", sample.Value),
	)

	// Targets are independent; a failed send is recorded on its own
	// notification row and must not stop the rest.
	for _, target := range rule.Targets {
		if _, err := s.dispatcher.Send(ctx, alert, rule.Name, target); err != nil {
			s.logger.Warn("Notification target failed",
				zap.Error(err),
				zap.String("alert_id", alert.ID),
				zap.String("channel", target.Channel),
			)
		}
	}

	return alert, true, nil
}

// Resolve closes an active alert on operator request. It does not re-check
// the underlying condition.
func (s *Service) Resolve(ctx context.Context, alertID, resolvedBy, note string) (*db.Alert, error) {
	alert, err := s.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.Status != db.AlertActive {
		return nil, fmt.Errorf("alert %s is %s, only active alerts can be resolved", alertID, alert.Status)
	}

	now := time.Now()
	alert.Status = db.AlertResolved
	alert.ResolvedAt = &now
	alert.ResolvedBy = &resolvedBy
	if note != "" {
		alert.ResolutionNote = &note
	}

	if err := s.store.UpdateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to resolve alert %s: %w", alertID, err)
	}

	s.publisher.Publish(ctx, events.AlertResolved(alert.ID, resolvedBy, alert.TenantID))
	s.metrics.RecordAlertResolved()
	s.logger.Info("Alert resolved",
		zap.String("alert_id", alert.ID),
		zap.String("resolved_by", resolvedBy),
	)
	return alert, nil
}

func (s *Service) ActiveAlerts(ctx context.Context, tenantID *string) ([]*db.Alert, error) {
	return s.store.GetActiveAlerts(ctx, tenantID)
}
