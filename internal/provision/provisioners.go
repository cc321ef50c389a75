package provision

import (
	"context"
)

// Collaborator contracts for the deployment steps. Each call is idempotent
// per invocation: re-running against an existing resource either reuses it
// or fails cleanly, it never half-creates.

type NamespaceProvisioner interface {
	Provision(ctx context.Context, namespace string) error
	// Teardown removes the namespace and everything inside it. Used for
	// rollback; missing resources are not an error.
	Teardown(ctx context.Context, namespace string) error
}

type RelationalDBProvisioner interface {
	// Provision creates an isolated database and owner role for the tenant
	// and returns the connection string the application should use.
	Provision(ctx context.Context, namespace, tenantSlug string) (dsn string, err error)
}

type DocumentDBProvisioner interface {
	Provision(ctx context.Context, namespace, tenantSlug string) (dbURL string, err error)
}

type CacheProvisioner interface {
	Provision(ctx context.Context, namespace string) (addr string, err error)
}

type IdentityRealm struct {
	Realm        string
	ClientID     string
	ClientSecret string
}

type IdentityRealmProvisioner interface {
	Provision(ctx context.Context, tenantSlug string) (*IdentityRealm, error)
}

// DeploymentSpec carries everything the workload needs injected at deploy
// time. Produced step by step by the orchestrator.
type DeploymentSpec struct {
	Namespace     string
	TenantID      string
	Subdomain     string
	Modules       []string
	DatabaseDSN   string
	DocumentDBURL string
	CacheAddr     string
	IdentityRealm *IdentityRealm
}

type ApplicationDeployer interface {
	Deploy(ctx context.Context, spec DeploymentSpec) (appURL string, err error)
}

// Provisioners bundles the collaborators the orchestrator drives.
type Provisioners struct {
	Namespace  NamespaceProvisioner
	Relational RelationalDBProvisioner
	Document   DocumentDBProvisioner
	Cache      CacheProvisioner
	Identity   IdentityRealmProvisioner
	Deployer   ApplicationDeployer
}
