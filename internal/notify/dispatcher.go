package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ospreyops/tenantd/internal/db"
	"github.com/ospreyops/tenantd/internal/metrics"
)

// NotificationStore persists per-target delivery state.
type NotificationStore interface {
	CreateAlertNotification(ctx context.Context, n *db.AlertNotification) error
	UpdateAlertNotification(ctx context.Context, n *db.AlertNotification) error
}

// Dispatcher sends an alert to one target at a time and records the outcome.
// Targets are independent: a failure for one never blocks the others, the
// alert engine just calls Send once per target.
type Dispatcher struct {
	channels map[string]Channel
	store    NotificationStore
	limiter  *rate.Limiter
	metrics  *metrics.Collector
	logger   *zap.Logger
}

func NewDispatcher(channels map[string]Channel, store NotificationStore, perSecond float64, collector *metrics.Collector, logger *zap.Logger) *Dispatcher {
	if perSecond <= 0 {
		perSecond = 5
	}
	return &Dispatcher{
		channels: channels,
		store:    store,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1),
		metrics:  collector,
		logger:   logger,
	}
}

// Send creates the pending notification record, attempts delivery, and
// advances the record to sent or failed. The returned record reflects what
// was persisted even when delivery failed.
func (d *Dispatcher) Send(ctx context.Context, alert *db.Alert, ruleName string, target db.NotificationTarget) (*db.AlertNotification, error) {
	notification := &db.AlertNotification{
		ID:        uuid.New().String(),
		AlertID:   alert.ID,
		Channel:   target.Channel,
		Recipient: target.Address,
		Status:    db.NotificationPending,
		CreatedAt: time.Now(),
	}
	if err := d.store.CreateAlertNotification(ctx, notification); err != nil {
		return nil, fmt.Errorf("failed to record notification: %w", err)
	}

	start := time.Now()
	err := d.deliver(ctx, alert, ruleName, target)
	latency := time.Since(start)

	if err != nil {
		notification.Error = err.Error()
		if terr := notification.Advance(db.NotificationFailed, time.Now()); terr != nil {
			return notification, terr
		}
		d.metrics.RecordNotification(target.Channel, false, latency)
		d.logger.Warn("Notification delivery failed",
			zap.Error(err),
			zap.String("alert_id", alert.ID),
			zap.String("channel", target.Channel),
			zap.String("recipient", target.Address),
		)
	} else {
		if terr := notification.Advance(db.NotificationSent, time.Now()); terr != nil {
			return notification, terr
		}
		d.metrics.RecordNotification(target.Channel, true, latency)
	}

	if uerr := d.store.UpdateAlertNotification(ctx, notification); uerr != nil {
		d.logger.Error("Failed to update notification state",
			zap.Error(uerr),
			zap.String("notification_id", notification.ID),
		)
	}
	return notification, err
}

func (d *Dispatcher) deliver(ctx context.Context, alert *db.Alert, ruleName string, target db.NotificationTarget) error {
	channel, ok := d.channels[target.Channel]
	if !ok {
		return fmt.Errorf("unknown notification channel %q", target.Channel)
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	tenantID := ""
	if alert.TenantID != nil {
		tenantID = *alert.TenantID
	}
	return channel.Send(ctx, target.Address, Payload{
		AlertID:     alert.ID,
		RuleName:    ruleName,
		Severity:    alert.Severity,
		TenantID:    tenantID,
		Context:     alert.Context,
		TriggeredAt: alert.TriggeredAt,
	})
}

// MarkDelivered advances a sent notification once the channel confirms
// delivery asynchronously (provider callbacks).
func (d *Dispatcher) MarkDelivered(ctx context.Context, notification *db.AlertNotification) error {
	if err := notification.Advance(db.NotificationDelivered, time.Now()); err != nil {
		return err
	}
	return d.store.UpdateAlertNotification(ctx, notification)
}
