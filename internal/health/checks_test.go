package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ospreyops/tenantd/internal/db"
)

func TestApplicationCheck(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		want       db.HealthStatus
	}{
		{"ok", http.StatusOK, db.StatusHealthy},
		{"no content", http.StatusNoContent, db.StatusHealthy},
		{"server error", http.StatusInternalServerError, db.StatusUnhealthy},
		{"bad gateway", http.StatusBadGateway, db.StatusUnhealthy},
		{"unauthorized", http.StatusUnauthorized, db.StatusDegraded},
		{"not found", http.StatusNotFound, db.StatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/healthz", r.URL.Path)
				w.WriteHeader(tt.statusCode)
			}))
			defer srv.Close()

			check := NewApplicationCheck()
			sub := check.Run(context.Background(), testTenant(), &db.TenantInfrastructure{ApplicationURL: srv.URL})
			assert.Equal(t, tt.want, sub.Status)
		})
	}
}

func TestApplicationCheckUnreachable(t *testing.T) {
	check := NewApplicationCheck()
	sub := check.Run(context.Background(), testTenant(), &db.TenantInfrastructure{
		ApplicationURL: "http://127.0.0.1:1",
	})
	assert.Equal(t, db.StatusUnhealthy, sub.Status)
	assert.Contains(t, sub.Message, "request failed")
}

type stubModuleChecker struct{ err error }

func (s stubModuleChecker) CheckModule(_ context.Context, _ string) error { return s.err }

func TestModuleCheck(t *testing.T) {
	infra := testInfra()

	t.Run("all modules healthy", func(t *testing.T) {
		check := NewModuleCheck(map[string]ModuleChecker{
			"crm":     stubModuleChecker{},
			"billing": stubModuleChecker{},
		})
		tenant := testTenant()
		tenant.Modules = db.StringSlice{"crm", "billing"}

		sub := check.Run(context.Background(), tenant, infra)
		assert.Equal(t, db.StatusHealthy, sub.Status)
	})

	t.Run("failing module", func(t *testing.T) {
		check := NewModuleCheck(map[string]ModuleChecker{
			"crm":     stubModuleChecker{},
			"billing": stubModuleChecker{err: errors.New("billing returned status 500")},
		})
		tenant := testTenant()
		tenant.Modules = db.StringSlice{"crm", "billing"}

		sub := check.Run(context.Background(), tenant, infra)
		assert.Equal(t, db.StatusUnhealthy, sub.Status)
		assert.Contains(t, sub.Message, "billing")
	})

	t.Run("unregistered module degrades", func(t *testing.T) {
		check := NewModuleCheck(map[string]ModuleChecker{
			"crm": stubModuleChecker{},
		})
		tenant := testTenant()
		tenant.Modules = db.StringSlice{"crm", "forecasting"}

		sub := check.Run(context.Background(), tenant, infra)
		assert.Equal(t, db.StatusDegraded, sub.Status)
		assert.Contains(t, sub.Message, "forecasting")
	})

	t.Run("failure outranks unknown", func(t *testing.T) {
		check := NewModuleCheck(map[string]ModuleChecker{
			"crm": stubModuleChecker{err: errors.New("down")},
		})
		tenant := testTenant()
		tenant.Modules = db.StringSlice{"crm", "forecasting"}

		sub := check.Run(context.Background(), tenant, infra)
		assert.Equal(t, db.StatusUnhealthy, sub.Status)
	})
}

func TestHTTPModuleChecker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz/modules/crm":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	assert.NoError(t, NewHTTPModuleChecker("crm").CheckModule(context.Background(), srv.URL))

	err := NewHTTPModuleChecker("billing").CheckModule(context.Background(), srv.URL)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "billing")
}
