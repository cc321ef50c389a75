package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Client is a minimal Keycloak admin API client. It only covers what tenant
// provisioning needs: realm lifecycle, one confidential client per realm,
// and a reachability probe.
type Client struct {
	baseURL      string
	adminRealm   string
	clientID     string
	clientSecret string
	http         *http.Client

	mu          sync.Mutex
	accessToken string
}

func NewClient(baseURL, adminRealm, clientID, clientSecret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		adminRealm:   adminRealm,
		clientID:     clientID,
		clientSecret: clientSecret,
		http:         &http.Client{Timeout: timeout},
	}
}

type RealmClient struct {
	Realm        string
	ClientID     string
	ClientSecret string
}

// CreateRealm creates an enabled realm named after the tenant.
func (c *Client) CreateRealm(ctx context.Context, realm string) error {
	body := map[string]interface{}{
		"realm":   realm,
		"enabled": true,
	}
	resp, err := c.doJSON(ctx, http.MethodPost, "/admin/realms", body)
	if err != nil {
		return fmt.Errorf("create realm %s: %w", realm, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("create realm %s: unexpected status %d", realm, resp.StatusCode)
	}
	return nil
}

// CreateClient registers a confidential client in the realm and returns its
// generated secret.
func (c *Client) CreateClient(ctx context.Context, realm, clientID string) (*RealmClient, error) {
	body := map[string]interface{}{
		"clientId":                  clientID,
		"enabled":                   true,
		"publicClient":              false,
		"serviceAccountsEnabled":    true,
		"standardFlowEnabled":       true,
		"directAccessGrantsEnabled": true,
	}
	resp, err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/admin/realms/%s/clients", realm), body)
	if err != nil {
		return nil, fmt.Errorf("create client %s in realm %s: %w", clientID, realm, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("create client %s in realm %s: unexpected status %d", clientID, realm, resp.StatusCode)
	}

	secret, err := c.fetchClientSecret(ctx, realm, clientID)
	if err != nil {
		return nil, err
	}

	return &RealmClient{Realm: realm, ClientID: clientID, ClientSecret: secret}, nil
}

func (c *Client) fetchClientSecret(ctx context.Context, realm, clientID string) (string, error) {
	resp, err := c.doJSON(ctx, http.MethodGet,
		fmt.Sprintf("/admin/realms/%s/clients?clientId=%s", realm, url.QueryEscape(clientID)), nil)
	if err != nil {
		return "", fmt.Errorf("lookup client %s: %w", clientID, err)
	}
	defer resp.Body.Close()

	var clients []struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&clients); err != nil {
		return "", fmt.Errorf("decode client lookup: %w", err)
	}
	if len(clients) == 0 {
		return "", fmt.Errorf("client %s not found after creation", clientID)
	}

	secretResp, err := c.doJSON(ctx, http.MethodGet,
		fmt.Sprintf("/admin/realms/%s/clients/%s/client-secret", realm, clients[0].ID), nil)
	if err != nil {
		return "", fmt.Errorf("fetch client secret: %w", err)
	}
	defer secretResp.Body.Close()

	var secret struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(secretResp.Body).Decode(&secret); err != nil {
		return "", fmt.Errorf("decode client secret: %w", err)
	}
	return secret.Value, nil
}

// DeleteRealm removes a realm. Missing realms are not an error so cleanup
// can run after partial provisioning.
func (c *Client) DeleteRealm(ctx context.Context, realm string) error {
	resp, err := c.doJSON(ctx, http.MethodDelete, "/admin/realms/"+realm, nil)
	if err != nil {
		return fmt.Errorf("delete realm %s: %w", realm, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete realm %s: unexpected status %d", realm, resp.StatusCode)
	}
	return nil
}

// Ping checks that the realm's discovery document is served.
func (c *Client) Ping(ctx context.Context, realm string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/realms/%s/.well-known/openid-configuration", c.baseURL, realm), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("identity provider returned status %d for realm %s", resp.StatusCode, realm)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

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

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.http.Do(req)
}

// token returns a cached admin token, refreshing it when the exp claim is
// within 30 seconds of now. The claim is read without signature verification;
// the token came from the provider over the same connection we trust for
// admin calls.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && !tokenExpiring(c.accessToken) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", c.baseURL, c.adminRealm),
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch admin token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch admin token: unexpected status %d", resp.StatusCode)
	}

	var tr struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token response contained no access token")
	}

	c.accessToken = tr.AccessToken
	return c.accessToken, nil
}

func tokenExpiring(tokenString string) bool {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return true
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return time.Until(exp.Time) < 30*time.Second
}
