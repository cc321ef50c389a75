package health

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/ospreyops/tenantd/internal/db"
)

// DatabaseCheck verifies the tenant's relational database answers on its
// provisioned DSN.
type DatabaseCheck struct{}

func (DatabaseCheck) Name() string { return "database" }

func (DatabaseCheck) Run(ctx context.Context, _ *db.Tenant, infra *db.TenantInfrastructure) db.SubCheck {
	start := time.Now()
	sub := db.SubCheck{Name: "database"}

	conn, err := sql.Open("postgres", infra.DatabaseDSN)
	if err != nil {
		sub.Status = db.StatusUnhealthy
		sub.Message = fmt.Sprintf("invalid dsn: %v", err)
		sub.DurationMs = time.Since(start).Milliseconds()
		return sub
	}
	defer conn.Close()

	if err := conn.PingContext(ctx); err != nil {
		sub.Status = db.StatusUnhealthy
		sub.Message = fmt.Sprintf("connect failed: %v", err)
	} else {
		sub.Status = db.StatusHealthy
	}
	sub.DurationMs = time.Since(start).Milliseconds()
	return sub
}
