package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RobMal123/ai-helpdesk-chatbot/internal/chat"
	cerr "github.com/RobMal123/ai-helpdesk-chatbot/internal/errors"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/etl"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/index"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/llm"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/store"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/telemetry"
)

type fakeModel struct {
	answer string
	err    error
}

var _ llm.Client = (*fakeModel)(nil)

func (f *fakeModel) Complete(ctx context.Context, prompt string, history []llm.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeModel) Model() string { return "fake" }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer wires a server over a real bleve index built from two
// processed documents.
func newTestServer(t *testing.T, withDocs bool) *Server {
	t.Helper()
	return newTestServerWithModel(t, withDocs, &fakeModel{answer: "Use the settings page."})
}

func newTestServerWithModel(t *testing.T, withDocs bool, model *fakeModel) *Server {
	t.Helper()

	eng := store.NewBleveEngine()
	mgr := index.NewManager(eng, t.TempDir(), testLogger())
	t.Cleanup(func() { _ = mgr.Close() })

	processedDir := t.TempDir()
	if withDocs {
		require.NoError(t, os.WriteFile(filepath.Join(processedDir, "password.txt"),
			[]byte("Reset your password from the account settings page."), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(processedDir, "vpn.txt"),
			[]byte("Install the VPN client and import the profile."), 0o644))
	}

	metrics := telemetry.NewRecorder(nil, telemetry.Config{Enabled: true})
	t.Cleanup(func() { _ = metrics.Close() })

	downloader := etl.NewDownloader(etl.DownloaderOptions{
		RawDir:       filepath.Join(t.TempDir(), "raw"),
		ProcessedDir: processedDir,
	}, testLogger())
	controller := etl.NewController(downloader, etl.NewDirSource(processedDir), mgr, metrics, nil, testLogger(), etl.ControllerOptions{ScheduleHour: 2})

	if withDocs {
		_, err := controller.RunOnce(context.Background(), "test")
		require.NoError(t, err)
	}

	orchestrator := chat.NewOrchestrator(mgr, eng, model, metrics, testLogger(), chat.Options{TopK: 2, HistoryLimit: 5})
	return New("127.0.0.1:0", orchestrator, controller, mgr, metrics, testLogger())
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAsk_ReturnsAnswerWithSources(t *testing.T) {
	s := newTestServer(t, true)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/ask", askRequest{Query: "how do I reset my password"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp askResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Use the settings page.", resp.Answer)
	assert.Equal(t, "ok", resp.Outcome)
	assert.Contains(t, resp.Sources, "password.txt")
}

func TestAsk_EmptyQueryIsBadRequest(t *testing.T) {
	s := newTestServer(t, true)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/ask", askRequest{Query: "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Code)
}

func TestAsk_MalformedJSONIsBadRequest(t *testing.T) {
	s := newTestServer(t, true)

	req := httptest.NewRequest(http.MethodPost, "/ask", bytes.NewBufferString("{nope"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAsk_UnavailableIndexStillAnswers(t *testing.T) {
	s := newTestServer(t, false)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/ask", askRequest{Query: "anything"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp askResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unavailable", resp.Outcome)
	assert.NotEmpty(t, resp.Answer)
}

func TestAsk_ModelFailureStillAnswers(t *testing.T) {
	s := newTestServerWithModel(t, true, &fakeModel{err: cerr.ModelError("quota exceeded", nil)})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/ask", askRequest{Query: "reset my password"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp askResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Outcome)
	assert.NotEmpty(t, resp.Answer, "a fallback answer accompanies the failure")
	assert.Contains(t, resp.Error, "quota exceeded")
}

func TestRefresh_RunsJob(t *testing.T) {
	s := newTestServer(t, true)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp refreshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Outcome)
	assert.Equal(t, 2, resp.Documents)
	assert.NotEmpty(t, resp.JobID)
}

func TestHealth_ReadyWithIndex(t *testing.T) {
	s := newTestServer(t, true)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.IndexReady)
	assert.Equal(t, 2, resp.DocumentCount)
	assert.NotEmpty(t, resp.Generation)
}

func TestHealth_DegradedWithoutIndex(t *testing.T) {
	s := newTestServer(t, false)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.False(t, resp.IndexReady)
}

func TestMetrics_ReturnsSnapshot(t *testing.T) {
	s := newTestServer(t, true)

	// Answer one question so the snapshot has data.
	doJSON(t, s.Handler(), http.MethodPost, "/ask", askRequest{Query: "vpn setup"})

	rec := doJSON(t, s.Handler(), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap telemetry.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(1), snap.TotalQueries)
}

func TestListenAndServe_ShutsDownOnContextCancel(t *testing.T) {
	s := newTestServer(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	cancel()
	require.NoError(t, <-done)
}
