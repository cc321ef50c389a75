package health

import (
	"context"
	"time"

	"github.com/ospreyops/tenantd/internal/db"
	"github.com/ospreyops/tenantd/pkg/keycloak"
)

// IdentityCheck verifies the tenant's realm is served by the identity
// provider.
type IdentityCheck struct {
	client *keycloak.Client
}

func NewIdentityCheck(client *keycloak.Client) *IdentityCheck {
	return &IdentityCheck{client: client}
}

func (*IdentityCheck) Name() string { return "identity" }

func (c *IdentityCheck) Run(ctx context.Context, _ *db.Tenant, infra *db.TenantInfrastructure) db.SubCheck {
	start := time.Now()
	sub := db.SubCheck{Name: "identity"}

	if err := c.client.Ping(ctx, infra.IdentityRealm); err != nil {
		sub.Status = db.StatusUnhealthy
		sub.Message = err.Error()
	} else {
		sub.Status = db.StatusHealthy
	}
	sub.DurationMs = time.Since(start).Milliseconds()
	return sub
}
