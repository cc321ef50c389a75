package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ospreyops/tenantd/internal/db"
)

// Runner executes every sub-check for one tenant concurrently and folds the
// outcomes into a single result. Sub-check order in the result matches the
// configured check order, not completion order.
type Runner struct {
	checks []Check
}

func NewRunner(checks ...Check) *Runner {
	return &Runner{checks: checks}
}

// RunTenant never returns an error: everything that can go wrong, including
// a panicking check, becomes part of the recorded result.
func (r *Runner) RunTenant(ctx context.Context, tenant *db.Tenant, infra *db.TenantInfrastructure) *db.HealthCheckResult {
	result := &db.HealthCheckResult{
		ID:        uuid.New().String(),
		TenantID:  tenant.ID,
		CheckedAt: time.Now(),
	}

	if infra == nil {
		result.Status = db.StatusUnhealthy
		result.SubChecks = db.SubCheckList{{
			Name:    "infrastructure",
			Status:  db.StatusUnhealthy,
			Message: "no deployed infrastructure record for tenant",
		}}
		return result
	}

	subs := make([]db.SubCheck, len(r.checks))
	var wg sync.WaitGroup
	for i, check := range r.checks {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			subs[i] = runGuarded(ctx, check, tenant, infra)
		}(i, check)
	}
	wg.Wait()

	result.SubChecks = subs
	result.Status = Aggregate(subs)
	return result
}

// runGuarded converts a panic in one check into an unhealthy sub-check so
// the other concurrent checks and the scheduler loop keep going.
func runGuarded(ctx context.Context, check Check, tenant *db.Tenant, infra *db.TenantInfrastructure) (sub db.SubCheck) {
	defer func() {
		if rec := recover(); rec != nil {
			sub = db.SubCheck{
				Name:    check.Name(),
				Status:  db.StatusUnhealthy,
				Message: fmt.Sprintf("check panicked: %v", rec),
			}
		}
	}()
	return check.Run(ctx, tenant, infra)
}
