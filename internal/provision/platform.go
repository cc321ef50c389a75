package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// PlatformClient talks to the internal platform controller REST API, which
// owns execution namespaces and workload deployments. It implements both
// NamespaceProvisioner and ApplicationDeployer.
type PlatformClient struct {
	url       string
	authToken string
	client    *http.Client
}

func NewPlatformClient(baseURL, authToken string, timeout time.Duration) *PlatformClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &PlatformClient{
		url:       strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		client:    &http.Client{Timeout: timeout},
	}
}

func (p *PlatformClient) Provision(ctx context.Context, namespace string) error {
	resp, err := p.do(ctx, http.MethodPut, "/v1/namespaces/"+namespace, map[string]interface{}{
		"labels": map[string]string{"managed-by": "tenantd"},
	})
	if err != nil {
		return fmt.Errorf("create namespace %s: %w", namespace, err)
	}
	defer resp.Body.Close()

	// 409 means the namespace already exists, which the deterministic
	// naming makes safe to reuse.
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("create namespace %s: unexpected status %d", namespace, resp.StatusCode)
	}
	return nil
}

func (p *PlatformClient) Teardown(ctx context.Context, namespace string) error {
	resp, err := p.do(ctx, http.MethodDelete, "/v1/namespaces/"+namespace, nil)
	if err != nil {
		return fmt.Errorf("delete namespace %s: %w", namespace, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete namespace %s: unexpected status %d", namespace, resp.StatusCode)
	}
	return nil
}

// DeployCache asks the platform to run a cache instance inside the
// namespace and returns its in-cluster address.
func (p *PlatformClient) DeployCache(ctx context.Context, namespace string) (string, error) {
	resp, err := p.do(ctx, http.MethodPost, "/v1/namespaces/"+namespace+"/workloads", map[string]interface{}{
		"kind": "cache",
		"name": "cache",
	})
	if err != nil {
		return "", fmt.Errorf("deploy cache in %s: %w", namespace, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("deploy cache in %s: unexpected status %d", namespace, resp.StatusCode)
	}

	var body struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode cache deployment response: %w", err)
	}
	if body.Address == "" {
		return "", fmt.Errorf("platform returned no cache address for %s", namespace)
	}
	return body.Address, nil
}

func (p *PlatformClient) Deploy(ctx context.Context, spec DeploymentSpec) (string, error) {
	env := map[string]string{
		"DATABASE_URL":           spec.DatabaseDSN,
		"DOCUMENT_DB_URL":        spec.DocumentDBURL,
		"CACHE_ADDR":             spec.CacheAddr,
		"IDENTITY_REALM":         spec.IdentityRealm.Realm,
		"IDENTITY_CLIENT_ID":     spec.IdentityRealm.ClientID,
		"IDENTITY_CLIENT_SECRET": spec.IdentityRealm.ClientSecret,
		"ENABLED_MODULES":        strings.Join(spec.Modules, ","),
	}

	resp, err := p.do(ctx, http.MethodPost, "/v1/namespaces/"+spec.Namespace+"/workloads", map[string]interface{}{
		"kind":      "application",
		"name":      "app",
		"tenant_id": spec.TenantID,
		"subdomain": spec.Subdomain,
		"env":       env,
	})
	if err != nil {
		return "", fmt.Errorf("deploy application in %s: %w", spec.Namespace, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("deploy application in %s: unexpected status %d", spec.Namespace, resp.StatusCode)
	}

	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode application deployment response: %w", err)
	}
	if body.URL == "" {
		return "", fmt.Errorf("platform returned no application URL for %s", spec.Namespace)
	}
	return body.URL, nil
}

func (p *PlatformClient) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.url+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	return p.client.Do(req)
}
