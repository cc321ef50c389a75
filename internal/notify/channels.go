package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/smtp"
	"strings"
	"time"
)

// Payload is the structured alert document every channel delivers.
type Payload struct {
	AlertID     string                 `json:"alert_id"`
	RuleName    string                 `json:"rule_name"`
	Severity    string                 `json:"severity"`
	TenantID    string                 `json:"tenant_id,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`
	TriggeredAt time.Time              `json:"triggered_at"`
}

func (p Payload) subject() string {
	return fmt.Sprintf("[%s] alert: %s", strings.ToUpper(p.Severity), p.RuleName)
}

// Channel delivers one alert payload to one address.
type Channel interface {
	Send(ctx context.Context, address string, payload Payload) error
}

// Channel names form a closed set; the dispatcher's registry is keyed by
// them and populated at startup.
const (
	ChannelEmail       = "email"
	ChannelChatWebhook = "chat_webhook"
	ChannelWebhook     = "webhook"
	ChannelSMS         = "sms"
)

// EmailChannel sends plain-text mail through the configured relay. The
// whole SMTP conversation runs under a connection deadline; a stalled relay
// must not hang the dispatching goroutine.
type EmailChannel struct {
	addr    string
	from    string
	timeout time.Duration
}

func NewEmailChannel(addr, from string, timeout time.Duration) *EmailChannel {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &EmailChannel{addr: addr, from: from, timeout: timeout}
}

func (c *EmailChannel) Send(ctx context.Context, address string, payload Payload) error {
	body, err := json.MarshalIndent(payload.Context, "", "  ")
	if err != nil {
		body = nil
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\nAlert %s triggered at %s.\n\n%s\r\n",
		c.from, address, payload.subject(), payload.AlertID,
		payload.TriggeredAt.Format(time.RFC3339), body)

	dialer := &net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", c.addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("smtp set deadline: %w", err)
	}

	host := c.addr
	if h, _, err := net.SplitHostPort(c.addr); err == nil {
		host = h
	}
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("smtp handshake with %s: %w", c.addr, err)
	}
	defer client.Close()

	if err := client.Mail(c.from); err != nil {
		return fmt.Errorf("smtp mail from %s: %w", c.from, err)
	}
	if err := client.Rcpt(address); err != nil {
		return fmt.Errorf("smtp rcpt %s: %w", address, err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp finish message: %w", err)
	}
	return client.Quit()
}

// ChatWebhookChannel posts a Slack-compatible message to the target URL.
type ChatWebhookChannel struct {
	client *http.Client
}

func NewChatWebhookChannel(timeout time.Duration) *ChatWebhookChannel {
	return &ChatWebhookChannel{client: &http.Client{Timeout: timeout}}
}

func (c *ChatWebhookChannel) Send(ctx context.Context, address string, payload Payload) error {
	text := fmt.Sprintf("%s\nalert: %s\ntenant: %s\ntriggered: %s",
		payload.subject(), payload.AlertID, payload.TenantID,
		payload.TriggeredAt.Format(time.RFC3339))

	return postJSON(ctx, c.client, address, map[string]interface{}{"text": text})
}

// WebhookChannel posts the raw payload to the target URL.
type WebhookChannel struct {
	client *http.Client
}

func NewWebhookChannel(timeout time.Duration) *WebhookChannel {
	return &WebhookChannel{client: &http.Client{Timeout: timeout}}
}

func (c *WebhookChannel) Send(ctx context.Context, address string, payload Payload) error {
	return postJSON(ctx, c.client, address, payload)
}

// SMSChannel relays a short message through an HTTP SMS gateway.
type SMSChannel struct {
	gatewayURL string
	client     *http.Client
}

func NewSMSChannel(gatewayURL string, timeout time.Duration) *SMSChannel {
	return &SMSChannel{gatewayURL: gatewayURL, client: &http.Client{Timeout: timeout}}
}

func (c *SMSChannel) Send(ctx context.Context, address string, payload Payload) error {
	return postJSON(ctx, c.client, c.gatewayURL, map[string]interface{}{
		"to":      address,
		"message": payload.subject(),
	})
}

func postJSON(ctx context.Context, client *http.Client, url string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
