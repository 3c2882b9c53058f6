package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"sanatrack/safety-engine/internal/domain"
)

// WebhookNotifier posts a delivery request to an HTTP gateway (SMS or
// voice provider bridge). 4xx responses are permanent failures, everything
// else that is not 2xx is retried by the dispatcher.
type WebhookNotifier struct {
	client *resty.Client
	url    string
}

type webhookPayload struct {
	To       string `json:"to"`
	Channel  string `json:"channel"`
	Name     string `json:"name,omitempty"`
	Text     string `json:"text"`
	AlertID  string `json:"alert_id"`
	EntityID string `json:"entity_id"`
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	RaisedAt int64  `json:"raised_at"`
}

func NewWebhookNotifier(url, token string, timeout time.Duration) *WebhookNotifier {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &WebhookNotifier{client: client, url: url}
}

func (n *WebhookNotifier) Notify(ctx context.Context, contact domain.ContactRef, msg Message) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(webhookPayload{
			To:       contact.Address,
			Channel:  string(contact.Channel),
			Name:     contact.Name,
			Text:     msg.Text,
			AlertID:  msg.AlertID,
			EntityID: msg.EntityID,
			Kind:     string(msg.Kind),
			Severity: string(msg.Severity),
			RaisedAt: msg.RaisedAt.Unix(),
		}).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}

	status := resp.StatusCode()
	switch {
	case status >= 200 && status < 300:
		return nil
	case status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusRequestTimeout:
		return Permanent(fmt.Errorf("gateway rejected delivery: %s", resp.Status()))
	default:
		return fmt.Errorf("gateway error: %s", resp.Status())
	}
}
