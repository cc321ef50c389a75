package provision

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
)

// PostgresProvisioner creates one database and one owner role per tenant on
// a shared cluster, using a superuser admin connection. It implements
// RelationalDBProvisioner.
type PostgresProvisioner struct {
	adminDSN string
}

func NewPostgresProvisioner(adminDSN string) *PostgresProvisioner {
	return &PostgresProvisioner{adminDSN: adminDSN}
}

func (p *PostgresProvisioner) Provision(ctx context.Context, namespace, tenantSlug string) (string, error) {
	conn, err := pgx.Connect(ctx, p.adminDSN)
	if err != nil {
		return "", fmt.Errorf("connect to admin database: %w", err)
	}
	defer conn.Close(ctx)

	dbName := "tenant_" + sanitizeIdent(tenantSlug)
	roleName := dbName + "_app"
	password, err := randomPassword()
	if err != nil {
		return "", err
	}

	// Identifiers cannot be bound as parameters; they are derived from the
	// subdomain which is validated at signup, and sanitized again here.
	if _, err := conn.Exec(ctx, fmt.Sprintf(
		`CREATE ROLE %s LOGIN PASSWORD '%s'`, pgx.Identifier{roleName}.Sanitize(), password)); err != nil {
		if !isDuplicate(err) {
			return "", fmt.Errorf("create role %s: %w", roleName, err)
		}
		if _, err := conn.Exec(ctx, fmt.Sprintf(
			`ALTER ROLE %s WITH PASSWORD '%s'`, pgx.Identifier{roleName}.Sanitize(), password)); err != nil {
			return "", fmt.Errorf("reset role password for %s: %w", roleName, err)
		}
	}

	if _, err := conn.Exec(ctx, fmt.Sprintf(
		`CREATE DATABASE %s OWNER %s`,
		pgx.Identifier{dbName}.Sanitize(), pgx.Identifier{roleName}.Sanitize())); err != nil {
		if !isDuplicate(err) {
			return "", fmt.Errorf("create database %s: %w", dbName, err)
		}
	}

	admin, err := url.Parse(p.adminDSN)
	if err != nil {
		return "", fmt.Errorf("parse admin dsn: %w", err)
	}

	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(roleName, password),
		Host:     admin.Host,
		Path:     "/" + dbName,
		RawQuery: "sslmode=require",
	}
	return dsn.String(), nil
}

func sanitizeIdent(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune('_')
		}
	}
	return b.String()
}

func randomPassword() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func isDuplicate(err error) bool {
	// 42710 duplicate_object, 42P04 duplicate_database
	msg := err.Error()
	return strings.Contains(msg, "42710") || strings.Contains(msg, "42P04") ||
		strings.Contains(msg, "already exists")
}
