package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ospreyops/tenantd/internal/alerting"
	"github.com/ospreyops/tenantd/internal/db"
	"github.com/ospreyops/tenantd/internal/notify"
)

// AlertStore is the slice of the repository the alert handlers touch.
// *db.Repository satisfies it.
type AlertStore interface {
	CreateAlertRule(ctx context.Context, rule *db.AlertRule) error
	GetAlertRule(ctx context.Context, id string) (*db.AlertRule, error)
	GetAlertRules(ctx context.Context) ([]*db.AlertRule, error)
	UpdateAlertRule(ctx context.Context, rule *db.AlertRule) error
	DeleteAlertRule(ctx context.Context, id string) error
	GetAlertNotification(ctx context.Context, id string) (*db.AlertNotification, error)
}

type AlertHandler struct {
	repo            AlertStore
	alerts          *alerting.Service
	dispatcher      *notify.Dispatcher
	minRuleInterval time.Duration
	logger          *zap.Logger
}

func NewAlertHandler(repo AlertStore, alerts *alerting.Service, dispatcher *notify.Dispatcher, minRuleInterval time.Duration, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{
		repo:            repo,
		alerts:          alerts,
		dispatcher:      dispatcher,
		minRuleInterval: minRuleInterval,
		logger:          logger,
	}
}

// ListActive returns active alerts, tenant-scoped when ?tenant_id is given,
// platform-wide otherwise.
func (h *AlertHandler) ListActive(c *gin.Context) {
	var tenantID *string
	if v := c.Query("tenant_id"); v != "" {
		tenantID = &v
	}

	alerts, err := h.alerts.ActiveAlerts(c.Request.Context(), tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load alerts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

type resolveRequest struct {
	ResolvedBy string `json:"resolved_by" binding:"required"`
	Note       string `json:"note"`
}

func (h *AlertHandler) Resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alert, err := h.alerts.Resolve(c.Request.Context(), c.Param("id"), req.ResolvedBy, req.Note)
	if err != nil {
		status := http.StatusConflict
		if errors.Is(err, db.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, alert)
}

// ConfirmDelivery is the callback channels hit once a provider confirms
// delivery; it advances sent -> delivered.
func (h *AlertHandler) ConfirmDelivery(c *gin.Context) {
	notification, err := h.repo.GetAlertNotification(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}

	if err := h.dispatcher.MarkDelivered(c.Request.Context(), notification); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, notification)
}

// Alert rule CRUD

type ruleRequest struct {
	TenantID    *string                 `json:"tenant_id"`
	Name        string                  `json:"name" binding:"required"`
	MetricQuery string                  `json:"metric_query" binding:"required"`
	Operator    string                  `json:"operator" binding:"required"`
	Threshold   float64                 `json:"threshold"`
	Interval    int                     `json:"interval_seconds"`
	Severity    string                  `json:"severity" binding:"required"`
	Enabled     *bool                   `json:"enabled"`
	Targets     []db.NotificationTarget `json:"targets"`
}

func (r *ruleRequest) toRule(id string) *db.AlertRule {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	now := time.Now()
	return &db.AlertRule{
		ID:          id,
		TenantID:    r.TenantID,
		Name:        r.Name,
		MetricQuery: r.MetricQuery,
		Operator:    r.Operator,
		Threshold:   r.Threshold,
		Interval:    r.Interval,
		Severity:    r.Severity,
		Enabled:     enabled,
		Targets:     r.Targets,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (h *AlertHandler) CreateRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule := req.toRule(uuid.New().String())
	if err := alerting.ValidateRule(rule, h.minRuleInterval); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.repo.CreateAlertRule(c.Request.Context(), rule); err != nil {
		h.logger.Error("Failed to create alert rule", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create rule"})
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// ListRules returns every rule, disabled ones included; administrators
// need to see what they have switched off.
func (h *AlertHandler) ListRules(c *gin.Context) {
	rules, err := h.repo.GetAlertRules(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rules"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

func (h *AlertHandler) GetRule(c *gin.Context) {
	rule, err := h.repo.GetAlertRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *AlertHandler) UpdateRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	existing, err := h.repo.GetAlertRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}

	rule := req.toRule(existing.ID)
	rule.CreatedAt = existing.CreatedAt
	if err := alerting.ValidateRule(rule, h.minRuleInterval); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.repo.UpdateAlertRule(c.Request.Context(), rule); err != nil {
		h.logger.Error("Failed to update alert rule", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update rule"})
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *AlertHandler) DeleteRule(c *gin.Context) {
	if err := h.repo.DeleteAlertRule(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete rule"})
		return
	}
	c.Status(http.StatusNoContent)
}
