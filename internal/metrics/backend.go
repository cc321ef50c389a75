package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/common/model"
)

// Sample is one time-series sample returned by the metrics backend.
type Sample struct {
	Labels    map[string]string
	Value     float64
	Timestamp time.Time
}

// Backend runs instant queries against the metrics store. The alert engine
// is its only consumer.
type Backend interface {
	Query(ctx context.Context, query string) ([]Sample, error)
}

// PrometheusBackend talks to the Prometheus-compatible HTTP query API
// (Prometheus, Mimir, Thanos).
type PrometheusBackend struct {
	url          string
	tenantHeader string
	authToken    string
	client       *http.Client
}

func NewPrometheusBackend(queryURL, tenantHeader, authToken string, timeout time.Duration) *PrometheusBackend {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PrometheusBackend{
		url:          strings.TrimRight(queryURL, "/"),
		tenantHeader: tenantHeader,
		authToken:    authToken,
		client:       &http.Client{Timeout: timeout},
	}
}

func (b *PrometheusBackend) Query(ctx context.Context, query string) ([]Sample, error) {
	form := url.Values{}
	form.Set("query", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url+"/api/v1/query",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if b.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+b.authToken)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metrics query failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metrics query returned status %d", resp.StatusCode)
	}

	var body struct {
		Status string `json:"status"`
		Data   struct {
			ResultType string          `json:"resultType"`
			Result     json.RawMessage `json:"result"`
		} `json:"data"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode query response: %w", err)
	}
	if body.Status != "success" {
		return nil, fmt.Errorf("metrics query error: %s", body.Error)
	}
	if body.Data.ResultType != "vector" {
		return nil, fmt.Errorf("unsupported result type %q", body.Data.ResultType)
	}

	var vector model.Vector
	if err := json.Unmarshal(body.Data.Result, &vector); err != nil {
		return nil, fmt.Errorf("failed to decode result vector: %w", err)
	}

	samples := make([]Sample, 0, len(vector))
	for _, s := range vector {
		labels := make(map[string]string, len(s.Metric))
		for k, v := range s.Metric {
			labels[string(k)] = string(v)
		}
		samples = append(samples, Sample{
			Labels:    labels,
			Value:     float64(s.Value),
			Timestamp: s.Timestamp.Time(),
		})
	}
	return samples, nil
}
