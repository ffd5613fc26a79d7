// Package channel implements the delivery channel adapter: permission
// negotiation, the durable push channel, the immediate local channel and the
// dedupe buffer in front of them.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/psikit/psikit-payments/internal/domain"
)

const defaultPushTimeout = 10 * time.Second

// PushChannel is the durable delivery mode: notifications are posted to a
// background-registered endpoint and survive the user navigating away.
type PushChannel struct {
	endpoint string
	client   *http.Client
}

// NewPushChannel creates a push channel. An empty endpoint means the durable
// channel is unavailable and the adapter falls back to local delivery.
func NewPushChannel(endpoint string, timeout time.Duration) *PushChannel {
	if timeout <= 0 {
		timeout = defaultPushTimeout
	}
	return &PushChannel{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Available reports whether the durable channel can be used.
func (p *PushChannel) Available() bool {
	return p != nil && p.endpoint != ""
}

// Present posts the notification to the registered endpoint.
func (p *PushChannel) Present(ctx context.Context, event domain.NotificationEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("push delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("push endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
