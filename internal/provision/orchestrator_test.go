package provision

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
	"github.com/ospreyops/tenantd/internal/events"
	"github.com/ospreyops/tenantd/internal/metrics"
)

var testMetrics = metrics.NewCollector()

type fakeRegistry struct {
	mu          sync.Mutex
	tenants     map[string]*db.Tenant
	infra       []*db.TenantInfrastructure
	finalizeErr error
	activateErr error
}

func newFakeRegistry(tenants ...*db.Tenant) *fakeRegistry {
	r := &fakeRegistry{tenants: make(map[string]*db.Tenant)}
	for _, t := range tenants {
		r.tenants[t.ID] = t
	}
	return r
}

func (r *fakeRegistry) GetTenant(_ context.Context, id string) (*db.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return t, nil
}

func (r *fakeRegistry) GetCurrentInfrastructure(_ context.Context, tenantID string) (*db.TenantInfrastructure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.infra) - 1; i >= 0; i-- {
		if r.infra[i].TenantID == tenantID && r.infra[i].Status != db.InfraFailed {
			return r.infra[i], nil
		}
	}
	return nil, db.ErrNotFound
}

func (r *fakeRegistry) CreateInfrastructure(_ context.Context, infra *db.TenantInfrastructure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infra = append(r.infra, infra)
	return nil
}

func (r *fakeRegistry) FinalizeInfrastructure(_ context.Context, infra *db.TenantInfrastructure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalizeErr != nil {
		return r.finalizeErr
	}
	for i, existing := range r.infra {
		if existing.ID == infra.ID {
			r.infra[i] = infra
			return nil
		}
	}
	return db.ErrNotFound
}

func (r *fakeRegistry) MarkInfrastructureFailed(_ context.Context, id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, infra := range r.infra {
		if infra.ID == id {
			infra.Status = db.InfraFailed
			infra.Error = reason
			return nil
		}
	}
	return db.ErrNotFound
}

func (r *fakeRegistry) ActivateTenant(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activateErr != nil {
		return r.activateErr
	}
	t, ok := r.tenants[id]
	if !ok {
		return db.ErrNotFound
	}
	t.Status = db.TenantActive
	t.ActivatedAt = &at
	return nil
}

func (r *fakeRegistry) infraFor(tenantID string) []*db.TenantInfrastructure {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*db.TenantInfrastructure
	for _, infra := range r.infra {
		if infra.TenantID == tenantID {
			out = append(out, infra)
		}
	}
	return out
}

type stubProvisioners struct {
	mu            sync.Mutex
	namespaceErr  error
	relationalErr error
	documentErr   error
	cacheErr      error
	identityErr   error
	deployErr     error
	teardowns     []string
}

func (s *stubProvisioners) Provision(_ context.Context, namespace string) error {
	return s.namespaceErr
}

func (s *stubProvisioners) Teardown(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardowns = append(s.teardowns, namespace)
	return nil
}

func (s *stubProvisioners) teardownCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.teardowns)
}

type stubRelational struct{ stub *stubProvisioners }

func (s stubRelational) Provision(_ context.Context, namespace, slug string) (string, error) {
	if s.stub.relationalErr != nil {
		return "", s.stub.relationalErr
	}
	return "postgres://tenant_" + slug + "@db/tenant_" + slug, nil
}

type stubDocument struct{ stub *stubProvisioners }

func (s stubDocument) Provision(_ context.Context, namespace, slug string) (string, error) {
	if s.stub.documentErr != nil {
		return "", s.stub.documentErr
	}
	return "http://couch:5984/tenant_" + slug, nil
}

type stubCache struct{ stub *stubProvisioners }

func (s stubCache) Provision(_ context.Context, namespace string) (string, error) {
	if s.stub.cacheErr != nil {
		return "", s.stub.cacheErr
	}
	return "redis." + namespace + ":6379", nil
}

type stubIdentity struct{ stub *stubProvisioners }

func (s stubIdentity) Provision(_ context.Context, slug string) (*IdentityRealm, error) {
	if s.stub.identityErr != nil {
		return nil, s.stub.identityErr
	}
	return &IdentityRealm{Realm: "tenant-" + slug, ClientID: slug + "-app", ClientSecret: "secret"}, nil
}

type stubDeployer struct{ stub *stubProvisioners }

func (s stubDeployer) Deploy(_ context.Context, spec DeploymentSpec) (string, error) {
	if s.stub.deployErr != nil {
		return "", s.stub.deployErr
	}
	return "https://" + spec.Subdomain + ".example.com", nil
}

func newTestOrchestrator(registry Registry, stub *stubProvisioners) *Orchestrator {
	logger := zap.NewNop()
	return NewOrchestrator(registry, Provisioners{
		Namespace:  stub,
		Relational: stubRelational{stub},
		Document:   stubDocument{stub},
		Cache:      stubCache{stub},
		Identity:   stubIdentity{stub},
		Deployer:   stubDeployer{stub},
	}, events.NewLogPublisher(logger), testMetrics, logger)
}

func pendingTenant(id, subdomain string) *db.Tenant {
	return &db.Tenant{
		ID:        id,
		Name:      subdomain,
		Subdomain: subdomain,
		Status:    db.TenantPending,
		Modules:   db.StringSlice{"crm", "billing"},
		CreatedAt: time.Now(),
	}
}

func TestDeploySuccess(t *testing.T) {
	registry := newFakeRegistry(pendingTenant("t1", "acme"))
	stub := &stubProvisioners{}
	o := newTestOrchestrator(registry, stub)

	info, err := o.Deploy(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-acme", info.Namespace)
	assert.Equal(t, "https://acme.example.com", info.ApplicationURL)

	records := registry.infraFor("t1")
	require.Len(t, records, 1)
	infra := records[0]
	assert.Equal(t, db.InfraDeployed, infra.Status)
	assert.NotEmpty(t, infra.DatabaseDSN)
	assert.NotEmpty(t, infra.DocumentDBURL)
	assert.NotEmpty(t, infra.CacheAddr)
	assert.Equal(t, "tenant-acme", infra.IdentityRealm)
	require.NotNil(t, infra.DeployedAt)

	tenant, err := registry.GetTenant(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, db.TenantActive, tenant.Status)
	assert.NotNil(t, tenant.ActivatedAt)

	assert.Zero(t, stub.teardownCount(), "successful deployment must not tear down")
}

func TestDeployStepFailureCleansUpOnce(t *testing.T) {
	registry := newFakeRegistry(pendingTenant("t2", "beta"))
	stub := &stubProvisioners{identityErr: errors.New("keycloak unreachable")}
	o := newTestOrchestrator(registry, stub)

	_, err := o.Deploy(context.Background(), "t2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deployment failed")
	assert.Contains(t, err.Error(), "identity realm provisioning")

	assert.Equal(t, 1, stub.teardownCount(), "cleanup must run exactly once")
	assert.Equal(t, []string{"tenant-beta"}, stub.teardowns)

	records := registry.infraFor("t2")
	require.Len(t, records, 1)
	assert.Equal(t, db.InfraFailed, records[0].Status)
	assert.Contains(t, records[0].Error, "keycloak unreachable")

	tenant, _ := registry.GetTenant(context.Background(), "t2")
	assert.Equal(t, db.TenantPending, tenant.Status, "failed deployment must leave the tenant pending")
}

func TestDeployRetriesAfterFailure(t *testing.T) {
	registry := newFakeRegistry(pendingTenant("t3", "gamma"))
	stub := &stubProvisioners{cacheErr: errors.New("no capacity")}
	o := newTestOrchestrator(registry, stub)

	_, err := o.Deploy(context.Background(), "t3")
	require.Error(t, err)

	// The failed record does not block a retry.
	stub.cacheErr = nil
	info, err := o.Deploy(context.Background(), "t3")
	require.NoError(t, err)
	assert.Equal(t, "tenant-gamma", info.Namespace)

	records := registry.infraFor("t3")
	require.Len(t, records, 2)
	assert.Equal(t, db.InfraFailed, records[0].Status)
	assert.Equal(t, db.InfraDeployed, records[1].Status)
}

func TestDeployFinalizeFailureMarksRecordFailed(t *testing.T) {
	registry := newFakeRegistry(pendingTenant("t7", "eta"))
	registry.finalizeErr = errors.New("connection reset")
	stub := &stubProvisioners{}
	o := newTestOrchestrator(registry, stub)

	_, err := o.Deploy(context.Background(), "t7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not persist infrastructure")
	assert.Equal(t, 1, stub.teardownCount())

	records := registry.infraFor("t7")
	require.Len(t, records, 1)
	assert.Equal(t, db.InfraFailed, records[0].Status)
	assert.Contains(t, records[0].Error, "connection reset")

	tenant, _ := registry.GetTenant(context.Background(), "t7")
	assert.Equal(t, db.TenantPending, tenant.Status)

	// The failed record must not block the retry.
	registry.finalizeErr = nil
	_, err = o.Deploy(context.Background(), "t7")
	require.NoError(t, err)
}

func TestDeployActivateFailureMarksRecordFailed(t *testing.T) {
	registry := newFakeRegistry(pendingTenant("t8", "theta"))
	registry.activateErr = errors.New("tenants table unavailable")
	o := newTestOrchestrator(registry, &stubProvisioners{})

	_, err := o.Deploy(context.Background(), "t8")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not activate tenant")

	// A failed deployment must never leave a deployed record behind.
	records := registry.infraFor("t8")
	require.Len(t, records, 1)
	assert.Equal(t, db.InfraFailed, records[0].Status)

	registry.activateErr = nil
	_, err = o.Deploy(context.Background(), "t8")
	require.NoError(t, err)

	tenant, _ := registry.GetTenant(context.Background(), "t8")
	assert.Equal(t, db.TenantActive, tenant.Status)
}

func TestDeployRejectsNonPendingTenant(t *testing.T) {
	tenant := pendingTenant("t4", "delta")
	tenant.Status = db.TenantActive
	registry := newFakeRegistry(tenant)
	o := newTestOrchestrator(registry, &stubProvisioners{})

	_, err := o.Deploy(context.Background(), "t4")
	require.ErrorIs(t, err, ErrTenantNotPending)
	assert.Empty(t, registry.infraFor("t4"), "rejected deployment must not record an attempt")
}

func TestDeployRejectsLiveInfrastructure(t *testing.T) {
	registry := newFakeRegistry(pendingTenant("t5", "epsilon"))
	registry.infra = append(registry.infra, &db.TenantInfrastructure{
		ID:       "existing",
		TenantID: "t5",
		Status:   db.InfraDeploying,
	})
	o := newTestOrchestrator(registry, &stubProvisioners{})

	_, err := o.Deploy(context.Background(), "t5")
	require.ErrorIs(t, err, ErrAlreadyDeployed)
}

func TestDeployUnknownTenant(t *testing.T) {
	o := newTestOrchestrator(newFakeRegistry(), &stubProvisioners{})
	_, err := o.Deploy(context.Background(), "missing")
	require.ErrorIs(t, err, db.ErrNotFound)
}

func TestDeployCancelledContext(t *testing.T) {
	registry := newFakeRegistry(pendingTenant("t6", "zeta"))
	stub := &stubProvisioners{}
	o := newTestOrchestrator(registry, stub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Deploy(ctx, "t6")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deployment cancelled")

	// Cancellation after the attempt record exists still cleans up and marks
	// the attempt failed.
	assert.Equal(t, 1, stub.teardownCount())
	records := registry.infraFor("t6")
	require.Len(t, records, 1)
	assert.Equal(t, db.InfraFailed, records[0].Status)
}
