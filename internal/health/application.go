package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ospreyops/tenantd/internal/db"
)

// ApplicationCheck probes the tenant application's liveness endpoint. The
// HTTP round trip is capped at 30 seconds no matter what the scheduler's
// cycle timeout is.
type ApplicationCheck struct {
	client *http.Client
}

func NewApplicationCheck() *ApplicationCheck {
	return &ApplicationCheck{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (*ApplicationCheck) Name() string { return "application" }

func (c *ApplicationCheck) Run(ctx context.Context, _ *db.Tenant, infra *db.TenantInfrastructure) db.SubCheck {
	start := time.Now()
	sub := db.SubCheck{Name: "application"}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, infra.ApplicationURL+"/healthz", nil)
	if err != nil {
		sub.Status = db.StatusUnhealthy
		sub.Message = fmt.Sprintf("invalid application url: %v", err)
		sub.DurationMs = time.Since(start).Milliseconds()
		return sub
	}

	resp, err := c.client.Do(req)
	if err != nil {
		sub.Status = db.StatusUnhealthy
		sub.Message = fmt.Sprintf("request failed: %v", err)
		sub.DurationMs = time.Since(start).Milliseconds()
		return sub
	}
	defer resp.Body.Close()

	sub.DurationMs = time.Since(start).Milliseconds()
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		sub.Status = db.StatusHealthy
	case resp.StatusCode >= 500:
		sub.Status = db.StatusUnhealthy
		sub.Message = fmt.Sprintf("liveness returned %d", resp.StatusCode)
	default:
		sub.Status = db.StatusDegraded
		sub.Message = fmt.Sprintf("liveness returned %d", resp.StatusCode)
	}
	return sub
}
