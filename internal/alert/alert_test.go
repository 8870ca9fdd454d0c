package alert

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotify_PostsEmbed(t *testing.T) {
	var received webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, testLogger())
	n.Notify(context.Background(), Notification{
		Title:    "Index rebuild failed",
		Message:  "disk full",
		Severity: SeverityError,
		Fields:   map[string]string{"job_id": "j-1"},
	})

	require.Len(t, received.Embeds, 1)
	embed := received.Embeds[0]
	assert.Equal(t, "Index rebuild failed", embed.Title)
	assert.Equal(t, "disk full", embed.Description)
	assert.Equal(t, severityColors[SeverityError], embed.Color)
	require.Len(t, embed.Fields, 1)
	assert.Equal(t, "job_id", embed.Fields[0].Name)
	assert.Equal(t, "j-1", embed.Fields[0].Value)
}

func TestNotify_FieldsOrderedByName(t *testing.T) {
	var received webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, testLogger())
	n.Notify(context.Background(), Notification{
		Title:    "Ingestion job completed",
		Severity: SeverityInfo,
		Fields: map[string]string{
			"trigger": "schedule",
			"job_id":  "j-1",
			"elapsed": "2s",
		},
	})

	require.Len(t, received.Embeds, 1)
	var names []string
	for _, f := range received.Embeds[0].Fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"elapsed", "job_id", "trigger"}, names)
}

func TestNotify_UnknownSeverityFallsBackToInfoColor(t *testing.T) {
	var received webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, testLogger())
	n.Notify(context.Background(), Notification{Title: "t", Severity: Severity("bogus")})

	require.Len(t, received.Embeds, 1)
	assert.Equal(t, severityColors[SeverityInfo], received.Embeds[0].Color)
}

func TestNotify_ServerErrorDoesNotPanic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, testLogger())
	n.Notify(context.Background(), Notification{Title: "t", Severity: SeverityWarning})
}

func TestNotify_UnreachableWebhookIsSwallowed(t *testing.T) {
	n := NewWebhookNotifier("http://127.0.0.1:1/webhook", testLogger())
	n.Notify(context.Background(), Notification{Title: "t", Severity: SeverityCritical})
}

func TestNotify_EmptyURLDisabled(t *testing.T) {
	n := NewWebhookNotifier("", testLogger())
	assert.False(t, n.Enabled())
	n.Notify(context.Background(), Notification{Title: "t"})
}
