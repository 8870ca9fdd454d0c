// Package alert delivers operational notifications to a
// Discord-compatible webhook. Delivery is best effort: a failed or
// misconfigured webhook is logged and never escalated, so alerting can
// never take down the path that triggered the alert.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// Severity classifies a notification for routing and display.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Discord embed colors per severity.
var severityColors = map[Severity]int{
	SeverityInfo:     0x3498db,
	SeverityWarning:  0xf1c40f,
	SeverityError:    0xe74c3c,
	SeverityCritical: 0x992d22,
}

// Notification is one operational event worth telling a human about.
type Notification struct {
	Title    string
	Message  string
	Severity Severity
	Fields   map[string]string
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// WebhookNotifier posts notifications as Discord embeds.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhookNotifier creates a notifier for the given webhook URL. An
// empty URL yields a disabled notifier that silently drops everything.
func NewWebhookNotifier(url string, logger *slog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With(slog.String("component", "alert")),
	}
}

// Enabled reports whether a webhook URL is configured.
func (w *WebhookNotifier) Enabled() bool {
	return w.url != ""
}

type webhookField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type webhookEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp"`
	Fields      []webhookField `json:"fields,omitempty"`
}

type webhookPayload struct {
	Embeds []webhookEmbed `json:"embeds"`
}

// Notify posts the notification. Failures are logged, never returned.
func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) {
	if !w.Enabled() {
		return
	}

	color, ok := severityColors[n.Severity]
	if !ok {
		color = severityColors[SeverityInfo]
	}

	embed := webhookEmbed{
		Title:       n.Title,
		Description: n.Message,
		Color:       color,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	// Stable field order across deliveries.
	names := make([]string, 0, len(n.Fields))
	for name := range n.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		embed.Fields = append(embed.Fields, webhookField{Name: name, Value: n.Fields[name], Inline: true})
	}

	body, err := json.Marshal(webhookPayload{Embeds: []webhookEmbed{embed}})
	if err != nil {
		w.logger.Warn("alert payload marshal failed", slog.String("error", err.Error()))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.logger.Warn("alert request build failed", slog.String("error", err.Error()))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("alert delivery failed",
			slog.String("title", n.Title),
			slog.String("error", err.Error()))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		w.logger.Warn("alert rejected by webhook",
			slog.String("title", n.Title),
			slog.String("status", fmt.Sprintf("%d", resp.StatusCode)))
		return
	}

	w.logger.Debug("alert delivered", slog.String("title", n.Title))
}

// NopNotifier drops all notifications. Used in tests and when alerting
// is disabled wholesale.
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, n Notification) {}
