package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ospreyops/tenantd/internal/db"
	"github.com/ospreyops/tenantd/internal/events"
	"github.com/ospreyops/tenantd/internal/metrics"
)

var (
	ErrTenantNotPending = errors.New("tenant is not pending")
	ErrAlreadyDeployed  = errors.New("tenant already has live infrastructure")
)

// Registry is the slice of the tenant store the orchestrator needs.
type Registry interface {
	GetTenant(ctx context.Context, id string) (*db.Tenant, error)
	GetCurrentInfrastructure(ctx context.Context, tenantID string) (*db.TenantInfrastructure, error)
	CreateInfrastructure(ctx context.Context, infra *db.TenantInfrastructure) error
	FinalizeInfrastructure(ctx context.Context, infra *db.TenantInfrastructure) error
	MarkInfrastructureFailed(ctx context.Context, id, reason string) error
	ActivateTenant(ctx context.Context, id string, at time.Time) error
}

type DeploymentInfo struct {
	InfrastructureID string
	Namespace        string
	ApplicationURL   string
}

// Orchestrator drives the five-step tenant deployment. Steps run strictly in
// order because each one consumes identifiers the previous one produced.
// Deployments for different tenants may run concurrently.
type Orchestrator struct {
	registry  Registry
	prov      Provisioners
	publisher events.Publisher
	metrics   *metrics.Collector
	logger    *zap.Logger
}

func NewOrchestrator(registry Registry, prov Provisioners, publisher events.Publisher, collector *metrics.Collector, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		registry:  registry,
		prov:      prov,
		publisher: publisher,
		metrics:   collector,
		logger:    logger,
	}
}

// Deploy provisions the full isolated stack for a pending tenant. On any
// step failure the namespace is torn down once, the infrastructure record is
// marked failed, and the tenant stays pending so the command can be retried.
func (o *Orchestrator) Deploy(ctx context.Context, tenantID string) (*DeploymentInfo, error) {
	start := time.Now()

	tenant, err := o.registry.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("deployment failed: %w", err)
	}
	if tenant.Status != db.TenantPending {
		return nil, fmt.Errorf("deployment failed: %w: tenant %s is %s", ErrTenantNotPending, tenant.ID, tenant.Status)
	}

	existing, err := o.registry.GetCurrentInfrastructure(ctx, tenant.ID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("deployment failed: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("deployment failed: %w: infrastructure %s is %s", ErrAlreadyDeployed, existing.ID, existing.Status)
	}

	namespace := "tenant-" + tenant.Subdomain
	infra := &db.TenantInfrastructure{
		ID:        uuid.New().String(),
		TenantID:  tenant.ID,
		Namespace: namespace,
		Status:    db.InfraDeploying,
		CreatedAt: time.Now(),
	}
	if err := o.registry.CreateInfrastructure(ctx, infra); err != nil {
		return nil, fmt.Errorf("deployment failed: could not record deployment attempt: %w", err)
	}

	logger := o.logger.With(
		zap.String("tenant_id", tenant.ID),
		zap.String("subdomain", tenant.Subdomain),
		zap.String("namespace", namespace),
	)
	logger.Info("Starting tenant deployment")

	info, err := o.runSteps(ctx, tenant, infra, logger)
	if err != nil {
		o.rollback(namespace, logger)
		o.markFailed(ctx, infra.ID, err, logger)
		o.metrics.RecordDeployment("failure", time.Since(start))
		logger.Error("Tenant deployment failed", zap.Error(err))
		return nil, fmt.Errorf("deployment failed: %w", err)
	}

	now := time.Now()
	infra.Status = db.InfraDeployed
	infra.DeployedAt = &now
	if err := o.registry.FinalizeInfrastructure(ctx, infra); err != nil {
		err = fmt.Errorf("could not persist infrastructure: %w", err)
		o.rollback(namespace, logger)
		o.markFailed(ctx, infra.ID, err, logger)
		o.metrics.RecordDeployment("failure", time.Since(start))
		return nil, fmt.Errorf("deployment failed: %w", err)
	}
	if err := o.registry.ActivateTenant(ctx, tenant.ID, now); err != nil {
		// The record was just persisted as deployed; a deployment that
		// reports failure must not leave it that way, or every retry is
		// rejected by the live-infrastructure precondition.
		err = fmt.Errorf("could not activate tenant: %w", err)
		o.markFailed(ctx, infra.ID, err, logger)
		o.metrics.RecordDeployment("failure", time.Since(start))
		return nil, fmt.Errorf("deployment failed: %w", err)
	}

	o.publisher.Publish(ctx,
		events.InfrastructureDeployed(tenant.ID, infra.ID, infra.ApplicationURL),
		events.TenantActivated(tenant.ID),
	)
	o.metrics.RecordDeployment("success", time.Since(start))
	logger.Info("Tenant deployment complete",
		zap.String("application_url", info.ApplicationURL),
		zap.Duration("duration", time.Since(start)),
	)
	return info, nil
}

func (o *Orchestrator) runSteps(ctx context.Context, tenant *db.Tenant, infra *db.TenantInfrastructure, logger *zap.Logger) (*DeploymentInfo, error) {
	// Cancellation is honored between steps: a cancelled context stops
	// issuing new provisioning calls and falls through to rollback.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("deployment cancelled: %w", err)
	}
	if err := o.prov.Namespace.Provision(ctx, infra.Namespace); err != nil {
		return nil, fmt.Errorf("namespace provisioning: %w", err)
	}
	logger.Debug("Namespace provisioned")

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("deployment cancelled: %w", err)
	}
	dsn, err := o.prov.Relational.Provision(ctx, infra.Namespace, tenant.Subdomain)
	if err != nil {
		return nil, fmt.Errorf("relational database provisioning: %w", err)
	}
	infra.DatabaseDSN = dsn

	docURL, err := o.prov.Document.Provision(ctx, infra.Namespace, tenant.Subdomain)
	if err != nil {
		return nil, fmt.Errorf("document store provisioning: %w", err)
	}
	infra.DocumentDBURL = docURL
	logger.Debug("Databases provisioned")

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("deployment cancelled: %w", err)
	}
	cacheAddr, err := o.prov.Cache.Provision(ctx, infra.Namespace)
	if err != nil {
		return nil, fmt.Errorf("cache provisioning: %w", err)
	}
	infra.CacheAddr = cacheAddr

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("deployment cancelled: %w", err)
	}
	realm, err := o.prov.Identity.Provision(ctx, tenant.Subdomain)
	if err != nil {
		return nil, fmt.Errorf("identity realm provisioning: %w", err)
	}
	infra.IdentityRealm = realm.Realm
	logger.Debug("Identity realm created", zap.String("realm", realm.Realm))

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("deployment cancelled: %w", err)
	}
	appURL, err := o.prov.Deployer.Deploy(ctx, DeploymentSpec{
		Namespace:     infra.Namespace,
		TenantID:      tenant.ID,
		Subdomain:     tenant.Subdomain,
		Modules:       tenant.Modules,
		DatabaseDSN:   infra.DatabaseDSN,
		DocumentDBURL: infra.DocumentDBURL,
		CacheAddr:     infra.CacheAddr,
		IdentityRealm: realm,
	})
	if err != nil {
		return nil, fmt.Errorf("application deployment: %w", err)
	}
	infra.ApplicationURL = appURL

	return &DeploymentInfo{
		InfrastructureID: infra.ID,
		Namespace:        infra.Namespace,
		ApplicationURL:   appURL,
	}, nil
}

// markFailed records the failure reason on the infrastructure record so the
// tenant can be redeployed. It survives caller cancellation; losing the mark
// would strand the tenant behind the live-infrastructure precondition.
func (o *Orchestrator) markFailed(ctx context.Context, infraID string, reason error, logger *zap.Logger) {
	if err := o.registry.MarkInfrastructureFailed(context.WithoutCancel(ctx), infraID, reason.Error()); err != nil {
		logger.Error("Failed to mark infrastructure as failed", zap.Error(err))
	}
}

// rollback tears the namespace down exactly once per failed deployment.
// Best effort: the platform removes every resource inside the namespace, so
// individual step cleanup is unnecessary.
func (o *Orchestrator) rollback(namespace string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := o.prov.Namespace.Teardown(ctx, namespace); err != nil {
		logger.Error("Namespace cleanup failed, resources may be orphaned",
			zap.Error(err),
			zap.String("namespace", namespace),
		)
		return
	}
	logger.Info("Namespace cleaned up after failed deployment", zap.String("namespace", namespace))
}
