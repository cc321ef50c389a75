package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var ErrNotFound = errors.New("not found")

type Repository struct {
	db *sqlx.DB
}

func NewConnection(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Tenant operations

func (r *Repository) CreateTenant(ctx context.Context, t *Tenant) error {
	query := `
        INSERT INTO tenants (id, name, subdomain, status, modules, created_at, updated_at)
        VALUES (:id, :name, :subdomain, :status, :modules, :created_at, :updated_at)`

	_, err := r.db.NamedExecContext(ctx, query, t)
	return err
}

func (r *Repository) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	var t Tenant
	query := `SELECT * FROM tenants WHERE id = $1`
	err := r.db.GetContext(ctx, &t, query, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tenant %s: %w", id, ErrNotFound)
	}
	return &t, err
}

func (r *Repository) GetActiveTenants(ctx context.Context) ([]*Tenant, error) {
	tenants := []*Tenant{}
	query := `SELECT * FROM tenants WHERE status = $1 ORDER BY created_at`
	err := r.db.SelectContext(ctx, &tenants, query, TenantActive)
	return tenants, err
}

func (r *Repository) SubdomainExists(ctx context.Context, subdomain string) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM tenants WHERE subdomain = $1`
	err := r.db.GetContext(ctx, &count, query, subdomain)
	return count > 0, err
}

func (r *Repository) UpdateTenantStatus(ctx context.Context, id string, status TenantStatus) error {
	query := `UPDATE tenants SET status = $2, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tenant %s: %w", id, ErrNotFound)
	}
	return nil
}

// ActivateTenant transitions a tenant to active and stamps activated_at.
func (r *Repository) ActivateTenant(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE tenants SET status = $2, activated_at = $3, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, TenantActive, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tenant %s: %w", id, ErrNotFound)
	}
	return nil
}

// Subscription operations

func (r *Repository) CreateSubscription(ctx context.Context, s *Subscription) error {
	query := `
        INSERT INTO subscriptions (id, tenant_id, plan, modules, period_start, period_end, created_at)
        VALUES (:id, :tenant_id, :plan, :modules, :period_start, :period_end, :created_at)`

	_, err := r.db.NamedExecContext(ctx, query, s)
	return err
}

func (r *Repository) GetSubscriptions(ctx context.Context, tenantID string) ([]*Subscription, error) {
	subs := []*Subscription{}
	query := `SELECT * FROM subscriptions WHERE tenant_id = $1 ORDER BY period_start DESC`
	err := r.db.SelectContext(ctx, &subs, query, tenantID)
	return subs, err
}

// Infrastructure operations

// CreateInfrastructure inserts a deploying record. A partial unique index on
// (tenant_id) WHERE status <> 'failed' rejects a second live record, which
// keeps the one-non-failed-record-per-tenant invariant in the database.
func (r *Repository) CreateInfrastructure(ctx context.Context, infra *TenantInfrastructure) error {
	query := `
        INSERT INTO tenant_infrastructure (
            id, tenant_id, namespace, database_dsn, document_db_url,
            cache_addr, identity_realm, application_url, status, error, created_at
        ) VALUES (
            :id, :tenant_id, :namespace, :database_dsn, :document_db_url,
            :cache_addr, :identity_realm, :application_url, :status, :error, :created_at
        )`

	_, err := r.db.NamedExecContext(ctx, query, infra)
	return err
}

func (r *Repository) GetCurrentInfrastructure(ctx context.Context, tenantID string) (*TenantInfrastructure, error) {
	var infra TenantInfrastructure
	query := `
        SELECT * FROM tenant_infrastructure
        WHERE tenant_id = $1 AND status <> $2
        ORDER BY created_at DESC LIMIT 1`

	err := r.db.GetContext(ctx, &infra, query, tenantID, InfraFailed)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("infrastructure for tenant %s: %w", tenantID, ErrNotFound)
	}
	return &infra, err
}

func (r *Repository) FinalizeInfrastructure(ctx context.Context, infra *TenantInfrastructure) error {
	query := `
        UPDATE tenant_infrastructure SET
            database_dsn = :database_dsn,
            document_db_url = :document_db_url,
            cache_addr = :cache_addr,
            identity_realm = :identity_realm,
            application_url = :application_url,
            status = :status,
            deployed_at = :deployed_at
        WHERE id = :id`

	_, err := r.db.NamedExecContext(ctx, query, infra)
	return err
}

func (r *Repository) MarkInfrastructureFailed(ctx context.Context, id, reason string) error {
	query := `UPDATE tenant_infrastructure SET status = $2, error = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, InfraFailed, reason)
	return err
}
