package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionMet(t *testing.T) {
	tests := []struct {
		operator  string
		threshold float64
		value     float64
		want      bool
	}{
		{"gt", 90, 95, true},
		{"gt", 90, 90, false},
		{"lt", 10, 5, true},
		{"lt", 10, 10, false},
		{"gte", 90, 90, true},
		{"gte", 90, 89.9, false},
		{"lte", 10, 10, true},
		{"lte", 10, 10.1, false},
		{"eq", 1, 1, true},
		{"eq", 1, 0, false},
		{"ne", 1, 0, true},
		{"ne", 1, 1, false},
	}
	for _, tt := range tests {
		rule := &AlertRule{Operator: tt.operator, Threshold: tt.threshold}
		got, err := rule.ConditionMet(tt.value)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s %v against threshold %v", tt.operator, tt.value, tt.threshold)
	}

	rule := &AlertRule{Operator: "contains", Threshold: 1}
	_, err := rule.ConditionMet(1)
	require.Error(t, err)
}

func TestNotificationAdvance(t *testing.T) {
	now := time.Now()

	t.Run("pending to sent to delivered", func(t *testing.T) {
		n := &AlertNotification{Status: NotificationPending}
		require.NoError(t, n.Advance(NotificationSent, now))
		assert.Equal(t, NotificationSent, n.Status)
		require.NotNil(t, n.SentAt)

		require.NoError(t, n.Advance(NotificationDelivered, now))
		assert.Equal(t, NotificationDelivered, n.Status)
		require.NotNil(t, n.DeliveredAt)
	})

	t.Run("pending to failed", func(t *testing.T) {
		n := &AlertNotification{Status: NotificationPending}
		require.NoError(t, n.Advance(NotificationFailed, now))
		assert.Equal(t, NotificationFailed, n.Status)
		assert.Nil(t, n.SentAt)
	})

	t.Run("illegal transitions", func(t *testing.T) {
		illegal := []struct {
			from, to NotificationStatus
		}{
			{NotificationPending, NotificationDelivered},
			{NotificationSent, NotificationFailed},
			{NotificationFailed, NotificationSent},
			{NotificationFailed, NotificationDelivered},
			{NotificationDelivered, NotificationSent},
			{NotificationDelivered, NotificationFailed},
		}
		for _, tt := range illegal {
			n := &AlertNotification{Status: tt.from}
			assert.Error(t, n.Advance(tt.to, now), "%s -> %s must be rejected", tt.from, tt.to)
		}
	})
}

func TestHealthStatusSeverity(t *testing.T) {
	assert.Greater(t, StatusUnhealthy.Severity(), StatusDegraded.Severity())
	assert.Greater(t, StatusDegraded.Severity(), StatusHealthy.Severity())
}
