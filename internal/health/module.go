package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ospreyops/tenantd/internal/db"
)

// ModuleChecker probes one application module's health endpoint. Checkers
// are registered per module type at startup; unknown modules on a tenant
// are reported as degraded rather than silently skipped.
type ModuleChecker interface {
	CheckModule(ctx context.Context, appURL string) error
}

// HTTPModuleChecker is the default checker: modules expose their health
// under the application's /healthz/modules/<name>.
type HTTPModuleChecker struct {
	module string
	client *http.Client
}

func NewHTTPModuleChecker(module string) *HTTPModuleChecker {
	return &HTTPModuleChecker{
		module: module,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *HTTPModuleChecker) CheckModule(ctx context.Context, appURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, appURL+"/healthz/modules/"+c.module, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("module %s: %w", c.module, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("module %s returned status %d", c.module, resp.StatusCode)
	}
	return nil
}

// ModuleCheck fans a tenant's enabled module list through the registry and
// reports one sub-check covering all of them.
type ModuleCheck struct {
	registry map[string]ModuleChecker
}

func NewModuleCheck(registry map[string]ModuleChecker) *ModuleCheck {
	return &ModuleCheck{registry: registry}
}

func (*ModuleCheck) Name() string { return "modules" }

func (c *ModuleCheck) Run(ctx context.Context, tenant *db.Tenant, infra *db.TenantInfrastructure) db.SubCheck {
	start := time.Now()
	sub := db.SubCheck{Name: "modules", Status: db.StatusHealthy}

	var failed, unknown []string
	for _, module := range tenant.Modules {
		checker, ok := c.registry[module]
		if !ok {
			unknown = append(unknown, module)
			continue
		}
		if err := checker.CheckModule(ctx, infra.ApplicationURL); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", module, err))
		}
	}

	switch {
	case len(failed) > 0:
		sub.Status = db.StatusUnhealthy
		sub.Message = fmt.Sprintf("failing modules: %v", failed)
	case len(unknown) > 0:
		sub.Status = db.StatusDegraded
		sub.Message = fmt.Sprintf("no checker registered for modules: %v", unknown)
	}
	sub.DurationMs = time.Since(start).Milliseconds()
	return sub
}
