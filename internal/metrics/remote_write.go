package metrics

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/prometheus/prompb"

	"github.com/ospreyops/tenantd/internal/db"
)

// HealthWriter publishes health check outcomes to the metrics backend so
// alert rules can be written against them (tenant_health_status,
// tenant_subcheck_healthy).
type HealthWriter interface {
	WriteHealthResult(ctx context.Context, tenant *db.Tenant, result *db.HealthCheckResult) error
}

type RemoteWriter struct {
	url          string
	tenantHeader string
	authToken    string
	client       *http.Client
}

func NewRemoteWriter(writeURL, tenantHeader, authToken string, timeout time.Duration) *RemoteWriter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteWriter{
		url:          strings.TrimRight(writeURL, "/"),
		tenantHeader: tenantHeader,
		authToken:    authToken,
		client:       &http.Client{Timeout: timeout},
	}
}

func (w *RemoteWriter) WriteHealthResult(ctx context.Context, tenant *db.Tenant, result *db.HealthCheckResult) error {
	now := result.CheckedAt.UnixNano() / int64(time.Millisecond)

	timeseries := []prompb.TimeSeries{
		{
			Labels: []prompb.Label{
				{Name: "__name__", Value: "tenant_health_status"},
				{Name: "tenant_id", Value: tenant.ID},
				{Name: "subdomain", Value: tenant.Subdomain},
			},
			Samples: []prompb.Sample{
				{Value: float64(result.Status.Severity()), Timestamp: now},
			},
		},
	}

	for _, sub := range result.SubChecks {
		healthy := 1.0
		if sub.Status != db.StatusHealthy {
			healthy = 0.0
		}
		timeseries = append(timeseries,
			prompb.TimeSeries{
				Labels: []prompb.Label{
					{Name: "__name__", Value: "tenant_subcheck_healthy"},
					{Name: "tenant_id", Value: tenant.ID},
					{Name: "subdomain", Value: tenant.Subdomain},
					{Name: "check", Value: sub.Name},
				},
				Samples: []prompb.Sample{
					{Value: healthy, Timestamp: now},
				},
			},
			prompb.TimeSeries{
				Labels: []prompb.Label{
					{Name: "__name__", Value: "tenant_subcheck_duration_seconds"},
					{Name: "tenant_id", Value: tenant.ID},
					{Name: "subdomain", Value: tenant.Subdomain},
					{Name: "check", Value: sub.Name},
				},
				Samples: []prompb.Sample{
					{Value: float64(sub.DurationMs) / 1000, Timestamp: now},
				},
			},
		)
	}

	return w.remoteWrite(ctx, tenant.ID, timeseries)
}

func (w *RemoteWriter) remoteWrite(ctx context.Context, tenantID string, timeseries []prompb.TimeSeries) error {
	req := &prompb.WriteRequest{
		Timeseries: timeseries,
	}

	data, err := req.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal write request: %w", err)
	}

	compressed := snappy.Encode(nil, data)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url+"/api/v1/push", bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if w.tenantHeader != "" {
		httpReq.Header.Set(w.tenantHeader, tenantID)
	}
	if w.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+w.authToken)
	}

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("remote write failed with status %d", resp.StatusCode)
	}

	return nil
}
