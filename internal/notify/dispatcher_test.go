package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ospreyops/tenantd/internal/db"
	"github.com/ospreyops/tenantd/internal/metrics"
)

var testMetrics = metrics.NewCollector()

type memNotificationStore struct {
	mu      sync.Mutex
	records map[string]*db.AlertNotification
}

func newMemNotificationStore() *memNotificationStore {
	return &memNotificationStore{records: make(map[string]*db.AlertNotification)}
}

func (s *memNotificationStore) CreateAlertNotification(_ context.Context, n *db.AlertNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[n.ID] = n
	return nil
}

func (s *memNotificationStore) UpdateAlertNotification(_ context.Context, n *db.AlertNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[n.ID]; !ok {
		return db.ErrNotFound
	}
	s.records[n.ID] = n
	return nil
}

type stubChannel struct {
	mu       sync.Mutex
	payloads []Payload
	failWith error
}

func (c *stubChannel) Send(_ context.Context, _ string, payload Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWith != nil {
		return c.failWith
	}
	c.payloads = append(c.payloads, payload)
	return nil
}

func testAlert() *db.Alert {
	tenantID := "t1"
	return &db.Alert{
		ID:          "a1",
		RuleID:      "r1",
		TenantID:    &tenantID,
		Severity:    "critical",
		Status:      db.AlertActive,
		Context:     db.JSONB{"value": 95.0},
		TriggeredAt: time.Now(),
	}
}

func TestSendAdvancesToSent(t *testing.T) {
	store := newMemNotificationStore()
	channel := &stubChannel{}
	d := NewDispatcher(map[string]Channel{ChannelEmail: channel}, store, 1000, testMetrics, zap.NewNop())

	n, err := d.Send(context.Background(), testAlert(), "high cpu", db.NotificationTarget{
		Channel: ChannelEmail,
		Address: "ops@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, db.NotificationSent, n.Status)
	require.NotNil(t, n.SentAt)
	assert.Empty(t, n.Error)

	require.Len(t, channel.payloads, 1)
	assert.Equal(t, "a1", channel.payloads[0].AlertID)
	assert.Equal(t, "high cpu", channel.payloads[0].RuleName)
	assert.Equal(t, "t1", channel.payloads[0].TenantID)

	assert.Equal(t, db.NotificationSent, store.records[n.ID].Status)
}

func TestSendRecordsFailure(t *testing.T) {
	store := newMemNotificationStore()
	channel := &stubChannel{failWith: errors.New("webhook timeout")}
	d := NewDispatcher(map[string]Channel{ChannelWebhook: channel}, store, 1000, testMetrics, zap.NewNop())

	n, err := d.Send(context.Background(), testAlert(), "high cpu", db.NotificationTarget{
		Channel: ChannelWebhook,
		Address: "https://hooks.example.com/x",
	})
	require.Error(t, err)
	require.NotNil(t, n, "the failed attempt is still recorded")
	assert.Equal(t, db.NotificationFailed, n.Status)
	assert.Contains(t, n.Error, "webhook timeout")
	assert.Nil(t, n.SentAt)
	assert.Equal(t, db.NotificationFailed, store.records[n.ID].Status)
}

func TestSendUnknownChannel(t *testing.T) {
	store := newMemNotificationStore()
	d := NewDispatcher(map[string]Channel{}, store, 1000, testMetrics, zap.NewNop())

	n, err := d.Send(context.Background(), testAlert(), "high cpu", db.NotificationTarget{
		Channel: "pager",
		Address: "x",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown notification channel")
	assert.Equal(t, db.NotificationFailed, n.Status)
}

func TestMarkDelivered(t *testing.T) {
	store := newMemNotificationStore()
	channel := &stubChannel{}
	d := NewDispatcher(map[string]Channel{ChannelEmail: channel}, store, 1000, testMetrics, zap.NewNop())

	n, err := d.Send(context.Background(), testAlert(), "high cpu", db.NotificationTarget{
		Channel: ChannelEmail,
		Address: "ops@example.com",
	})
	require.NoError(t, err)

	require.NoError(t, d.MarkDelivered(context.Background(), n))
	assert.Equal(t, db.NotificationDelivered, n.Status)
	require.NotNil(t, n.DeliveredAt)
	assert.Equal(t, db.NotificationDelivered, store.records[n.ID].Status)

	// Delivered is terminal.
	require.Error(t, d.MarkDelivered(context.Background(), n))
}

func TestMarkDeliveredRejectsFailedNotification(t *testing.T) {
	store := newMemNotificationStore()
	channel := &stubChannel{failWith: errors.New("bounced")}
	d := NewDispatcher(map[string]Channel{ChannelEmail: channel}, store, 1000, testMetrics, zap.NewNop())

	n, err := d.Send(context.Background(), testAlert(), "high cpu", db.NotificationTarget{
		Channel: ChannelEmail,
		Address: "ops@example.com",
	})
	require.Error(t, err)
	require.Error(t, d.MarkDelivered(context.Background(), n), "failed notifications never become delivered")
}
