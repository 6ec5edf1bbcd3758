package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zulandar/cadence/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultTimeout bounds one provider round trip.
const DefaultTimeout = 10 * time.Second

// Webhook posts messages as JSON to a provider endpoint.
type Webhook struct {
	url    string
	apiKey string
	from   string
	client *http.Client
}

type webhookResponse struct {
	ID        string `json:"id"`
	MessageID string `json:"messageId"`
}

// NewWebhook builds a webhook transport. With OAuth2 configured the client
// fetches and refreshes bearer tokens through the client-credentials flow;
// otherwise a static API key, if any, is sent as the bearer token.
func NewWebhook(cfg config.ProviderConfig, from string) (*Webhook, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("transport: webhook url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base := &http.Client{Timeout: timeout}

	w := &Webhook{url: cfg.URL, from: from, client: base}
	if cfg.OAuth2 != nil {
		cc := clientcredentials.Config{
			ClientID:     cfg.OAuth2.ClientID,
			ClientSecret: cfg.OAuth2.ClientSecret,
			TokenURL:     cfg.OAuth2.TokenURL,
			Scopes:       cfg.OAuth2.Scopes,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		client := cc.Client(ctx)
		client.Timeout = timeout
		w.client = client
	} else {
		w.apiKey = cfg.APIKey
	}
	return w, nil
}

// Send posts msg. A 409 answer means the provider already handled this
// idempotency key.
func (w *Webhook) Send(ctx context.Context, msg Outbound) (string, error) {
	if msg.From == "" {
		msg.From = w.from
	}
	reqBody, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("transport: encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if msg.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", msg.IdempotencyKey)
	}
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transport: post: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode == http.StatusConflict {
		return "", ErrAlreadyProcessed
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("transport: unexpected status %d body=%q", resp.StatusCode, string(body))
	}

	var wr webhookResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &wr); err != nil {
			return "", fmt.Errorf("transport: decode response: %w body=%q", err, string(body))
		}
	}
	if wr.ID != "" {
		return wr.ID, nil
	}
	return wr.MessageID, nil
}
