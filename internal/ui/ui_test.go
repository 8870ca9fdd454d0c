package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/RobMal123/ai-helpdesk-chatbot/internal/chat"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/telemetry"
)

func TestAnswer_PlainOutput(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true)

	r.Answer(&chat.Result{
		Answer:  "Reset it in settings.",
		Sources: []string{"kb/password.md"},
		Outcome: "ok",
	})

	out := buf.String()
	assert.Contains(t, out, "Reset it in settings.")
	assert.Contains(t, out, "Sources:")
	assert.Contains(t, out, "kb/password.md")
	assert.NotContains(t, out, "note:")
}

func TestAnswer_DegradedShowsNote(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true)

	r.Answer(&chat.Result{Answer: "Best guess.", Outcome: "degraded"})

	assert.Contains(t, buf.String(), "note:")
	assert.Contains(t, buf.String(), "not grounded")
}

func TestRefreshResult(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true)

	r.RefreshResult("job-123", "ok", 42, 1500*time.Millisecond)

	out := buf.String()
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "job-123")
	assert.Contains(t, out, "documents: 42")
	assert.Contains(t, out, "1.5s")
}

func TestStatus_RendersIndexAndJobs(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true)

	snap := &telemetry.Snapshot{
		TotalQueries: 10,
		TotalTokens:  2500,
		TopTerms:     []telemetry.TermCount{{Term: "password", Count: 6}},
	}
	jobs := []telemetry.JobRun{
		{JobID: "job-1", StartedAt: time.Date(2026, 9, 1, 2, 0, 0, 0, time.UTC), Processed: 12, Elapsed: 3 * time.Second, Outcome: "ok"},
	}

	r.Status(true, 12, "gen-abc", snap, jobs)

	out := buf.String()
	assert.Contains(t, out, "ready")
	assert.Contains(t, out, "12 documents")
	assert.Contains(t, out, "gen-abc")
	assert.Contains(t, out, "password(6)")
	assert.Contains(t, out, "2026-09-01 02:00")
}

func TestStatus_UnavailableIndex(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true)

	r.Status(false, 0, "", nil, nil)

	assert.Contains(t, buf.String(), "unavailable")
}

func TestNewRenderer_BufferIsPlain(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, false)
	r.Errorf("boom %d", 7)

	// No ANSI escapes when writing to a non-terminal.
	assert.Equal(t, "error: boom 7\n", buf.String())
}
