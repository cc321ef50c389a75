package provision

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CouchProvisioner creates an isolated document database per tenant on a
// CouchDB-compatible server. It implements DocumentDBProvisioner.
type CouchProvisioner struct {
	url      string
	username string
	password string
	client   *http.Client
}

func NewCouchProvisioner(baseURL, username, password string, timeout time.Duration) *CouchProvisioner {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &CouchProvisioner{
		url:      strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *CouchProvisioner) Provision(ctx context.Context, namespace, tenantSlug string) (string, error) {
	dbName := "tenant_" + sanitizeIdent(tenantSlug)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.url+"/"+dbName, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("create document database %s: %w", dbName, err)
	}
	defer resp.Body.Close()

	// 412 means the database already exists.
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusPreconditionFailed {
		return "", fmt.Errorf("create document database %s: unexpected status %d", dbName, resp.StatusCode)
	}

	base, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("parse document store url: %w", err)
	}
	dbURL := url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/" + dbName}
	return dbURL.String(), nil
}
