package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookProvider posts alerts as JSON to a configured endpoint.
type WebhookProvider struct {
	URL    string
	Client *http.Client
}

func NewWebhookProvider(url string, timeout time.Duration) *WebhookProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookProvider{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

func (p *WebhookProvider) Name() string { return "webhook" }

func (p *WebhookProvider) Send(event Event, subject, body string) error {
	if p == nil || p.URL == "" {
		return nil
	}
	payload, err := json.Marshal(map[string]string{
		"event":   string(event),
		"subject": subject,
		"body":    body,
	})
	if err != nil {
		return err
	}
	resp, err := p.Client.Post(p.URL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
