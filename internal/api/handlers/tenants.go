package handlers

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ospreyops/tenantd/internal/db"
	"github.com/ospreyops/tenantd/internal/provision"
	"github.com/ospreyops/tenantd/internal/storage/redis"
)

var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

type TenantHandler struct {
	repo         *db.Repository
	cache        *redis.Client
	orchestrator *provision.Orchestrator
	logger       *zap.Logger
}

func NewTenantHandler(repo *db.Repository, cache *redis.Client, orchestrator *provision.Orchestrator, logger *zap.Logger) *TenantHandler {
	return &TenantHandler{
		repo:         repo,
		cache:        cache,
		orchestrator: orchestrator,
		logger:       logger,
	}
}

type createTenantRequest struct {
	Name      string   `json:"name" binding:"required"`
	Subdomain string   `json:"subdomain" binding:"required"`
	Plan      string   `json:"plan" binding:"required"`
	Modules   []string `json:"modules"`
}

// Create registers a new tenant in pending state along with its initial
// subscription. Deployment is a separate, explicit command.
func (h *TenantHandler) Create(c *gin.Context) {
	var req createTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !subdomainPattern.MatchString(req.Subdomain) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subdomain must be a valid DNS label"})
		return
	}

	taken, err := h.repo.SubdomainExists(c.Request.Context(), req.Subdomain)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check subdomain"})
		return
	}
	if taken {
		c.JSON(http.StatusConflict, gin.H{"error": "subdomain already in use"})
		return
	}

	now := time.Now()
	tenant := &db.Tenant{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Subdomain: req.Subdomain,
		Status:    db.TenantPending,
		Modules:   req.Modules,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.repo.CreateTenant(c.Request.Context(), tenant); err != nil {
		h.logger.Error("Failed to create tenant", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create tenant"})
		return
	}

	subscription := &db.Subscription{
		ID:          uuid.New().String(),
		TenantID:    tenant.ID,
		Plan:        req.Plan,
		Modules:     req.Modules,
		PeriodStart: now,
		CreatedAt:   now,
	}
	if err := h.repo.CreateSubscription(c.Request.Context(), subscription); err != nil {
		h.logger.Error("Failed to create subscription", zap.Error(err), zap.String("tenant_id", tenant.ID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create subscription"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"tenant": tenant, "subscription": subscription})
}

func (h *TenantHandler) Get(c *gin.Context) {
	tenant, err := h.repo.GetTenant(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		return
	}
	c.JSON(http.StatusOK, tenant)
}

func (h *TenantHandler) Subscriptions(c *gin.Context) {
	subs, err := h.repo.GetSubscriptions(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load subscriptions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs})
}

// Suspend takes an active tenant out of service. Suspended tenants drop out
// of the health check rotation until resumed.
func (h *TenantHandler) Suspend(c *gin.Context) {
	h.transition(c, db.TenantActive, db.TenantSuspended)
}

// Resume puts a suspended tenant back in service.
func (h *TenantHandler) Resume(c *gin.Context) {
	h.transition(c, db.TenantSuspended, db.TenantActive)
}

// Cancel is terminal; infrastructure teardown is handled out of band.
func (h *TenantHandler) Cancel(c *gin.Context) {
	tenant, err := h.repo.GetTenant(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		return
	}
	if tenant.Status == db.TenantCancelled {
		c.JSON(http.StatusConflict, gin.H{"error": "tenant is already cancelled"})
		return
	}
	if err := h.repo.UpdateTenantStatus(c.Request.Context(), tenant.ID, db.TenantCancelled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update tenant"})
		return
	}
	tenant.Status = db.TenantCancelled
	c.JSON(http.StatusOK, tenant)
}

func (h *TenantHandler) transition(c *gin.Context, from, to db.TenantStatus) {
	tenant, err := h.repo.GetTenant(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		return
	}
	if tenant.Status != from {
		c.JSON(http.StatusConflict, gin.H{"error": "tenant is " + string(tenant.Status) + ", expected " + string(from)})
		return
	}
	if err := h.repo.UpdateTenantStatus(c.Request.Context(), tenant.ID, to); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update tenant"})
		return
	}
	tenant.Status = to
	c.JSON(http.StatusOK, tenant)
}

// Deploy runs the full provisioning sequence for a pending tenant. The
// request blocks until the deployment finishes or fails; callers retry by
// re-issuing the command after the failed record is marked.
func (h *TenantHandler) Deploy(c *gin.Context) {
	tenantID := c.Param("id")

	info, err := h.orchestrator.Deploy(c.Request.Context(), tenantID)
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, db.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, provision.ErrTenantNotPending), errors.Is(err, provision.ErrAlreadyDeployed):
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"infrastructure_id": info.InfrastructureID,
		"namespace":         info.Namespace,
		"application_url":   info.ApplicationURL,
	})
}

func (h *TenantHandler) HealthHistory(c *gin.Context) {
	tenantID := c.Param("id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	results, err := h.repo.GetHealthHistory(c.Request.Context(), tenantID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load health history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// LatestHealth serves the cached latest result and falls back to the
// history table when the cache misses.
func (h *TenantHandler) LatestHealth(c *gin.Context) {
	tenantID := c.Param("id")

	var cached db.HealthCheckResult
	if err := h.cache.GetCachedTenantHealth(c.Request.Context(), tenantID, &cached); err == nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	results, err := h.repo.GetHealthHistory(c.Request.Context(), tenantID, 1)
	if err != nil || len(results) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no health results for tenant"})
		return
	}
	c.JSON(http.StatusOK, results[0])
}
