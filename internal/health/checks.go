package health

import (
	"context"

	"github.com/ospreyops/tenantd/internal/db"
)

// Check is one independent sub-check of a tenant's stack. Implementations
// must honor the context deadline and report failures through the returned
// SubCheck, never by panicking; the runner still guards against panics.
type Check interface {
	Name() string
	Run(ctx context.Context, tenant *db.Tenant, infra *db.TenantInfrastructure) db.SubCheck
}

// Aggregate folds sub-check statuses into the overall one: unhealthy beats
// degraded beats healthy, regardless of order.
func Aggregate(subs []db.SubCheck) db.HealthStatus {
	overall := db.StatusHealthy
	for _, s := range subs {
		if s.Status.Severity() > overall.Severity() {
			overall = s.Status
		}
	}
	return overall
}
