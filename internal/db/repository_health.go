package db

import (
	"context"
)

// Health check results are append-only; there is no update path.

func (r *Repository) SaveHealthCheckResult(ctx context.Context, result *HealthCheckResult) error {
	query := `
        INSERT INTO health_check_results (id, tenant_id, status, sub_checks, checked_at)
        VALUES (:id, :tenant_id, :status, :sub_checks, :checked_at)`

	_, err := r.db.NamedExecContext(ctx, query, result)
	return err
}

func (r *Repository) GetHealthHistory(ctx context.Context, tenantID string, limit int) ([]*HealthCheckResult, error) {
	if limit <= 0 {
		limit = 50
	}
	results := []*HealthCheckResult{}
	query := `
        SELECT * FROM health_check_results
        WHERE tenant_id = $1
        ORDER BY checked_at DESC
        LIMIT $2`

	err := r.db.SelectContext(ctx, &results, query, tenantID, limit)
	return results, err
}
