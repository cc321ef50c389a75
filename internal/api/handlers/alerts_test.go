package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ospreyops/tenantd/internal/db"
)

type fakeAlertStore struct {
	rules []*db.AlertRule
}

func (s *fakeAlertStore) CreateAlertRule(_ context.Context, rule *db.AlertRule) error {
	s.rules = append(s.rules, rule)
	return nil
}

func (s *fakeAlertStore) GetAlertRule(_ context.Context, id string) (*db.AlertRule, error) {
	for _, r := range s.rules {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *fakeAlertStore) GetAlertRules(_ context.Context) ([]*db.AlertRule, error) {
	return s.rules, nil
}

func (s *fakeAlertStore) UpdateAlertRule(_ context.Context, rule *db.AlertRule) error {
	for i, r := range s.rules {
		if r.ID == rule.ID {
			s.rules[i] = rule
			return nil
		}
	}
	return db.ErrNotFound
}

func (s *fakeAlertStore) DeleteAlertRule(_ context.Context, id string) error {
	for i, r := range s.rules {
		if r.ID == id {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *fakeAlertStore) GetAlertNotification(_ context.Context, _ string) (*db.AlertNotification, error) {
	return nil, db.ErrNotFound
}

func newRuleRouter(store *fakeAlertStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewAlertHandler(store, nil, nil, 30*time.Second, zap.NewNop())
	router := gin.New()
	router.GET("/alert-rules", h.ListRules)
	router.GET("/alert-rules/:id", h.GetRule)
	return router
}

func TestListRulesIncludesDisabled(t *testing.T) {
	store := &fakeAlertStore{rules: []*db.AlertRule{
		{ID: "r1", Name: "cpu high", MetricQuery: "cpu", Operator: "gt", Threshold: 90, Interval: 60, Severity: "warning", Enabled: true},
		{ID: "r2", Name: "mem high", MetricQuery: "mem", Operator: "gt", Threshold: 80, Interval: 60, Severity: "warning", Enabled: false},
	}}
	router := newRuleRouter(store)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/alert-rules", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Rules []*db.AlertRule `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Rules, 2, "a disabled rule must still show up in the listing")

	byID := map[string]bool{}
	for _, r := range resp.Rules {
		byID[r.ID] = r.Enabled
	}
	assert.True(t, byID["r1"])
	assert.False(t, byID["r2"])
}

func TestGetRuleNotFound(t *testing.T) {
	router := newRuleRouter(&fakeAlertStore{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/alert-rules/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
