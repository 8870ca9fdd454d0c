// Package chat orchestrates answering a helpdesk question: retrieve
// passages from the published index, assemble the prompt, call the
// model, and record what happened.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/RobMal123/ai-helpdesk-chatbot/internal/engine"
	cerr "github.com/RobMal123/ai-helpdesk-chatbot/internal/errors"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/index"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/llm"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/telemetry"
)

// unavailableAnswer is returned while no index generation is
// published. Serving stays up; the answer just says so.
const unavailableAnswer = "The knowledge base is currently being updated. Please try again in a few minutes."

// errorAnswer is returned when retrieval or the model fails mid-query.
// The caller still receives a well-formed result; the failure detail
// rides along in Result.Err.
const errorAnswer = "I'm sorry, I encountered an error while processing your question. Please try again."

// Result is the outcome of answering one question.
type Result struct {
	Answer  string        `json:"answer"`
	Sources []string      `json:"sources,omitempty"`
	Outcome string        `json:"outcome"`
	Elapsed time.Duration `json:"-"`
	// Err carries the underlying failure when Outcome is "error".
	Err error `json:"-"`
}

// Options configures the orchestrator.
type Options struct {
	// TopK is the number of passages retrieved per question.
	TopK int
	// HistoryLimit is the number of trailing conversation turns kept.
	HistoryLimit int
}

// Orchestrator answers questions against the published snapshot.
type Orchestrator struct {
	manager *index.Manager
	engine  engine.Engine
	model   llm.Client
	metrics *telemetry.Recorder
	logger  *slog.Logger
	opts    Options
}

// NewOrchestrator wires the query-serving flow together.
func NewOrchestrator(manager *index.Manager, eng engine.Engine, model llm.Client, metrics *telemetry.Recorder, logger *slog.Logger, opts Options) *Orchestrator {
	if opts.TopK <= 0 {
		opts.TopK = 4
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 5
	}
	return &Orchestrator{
		manager: manager,
		engine:  eng,
		model:   model,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "chat")),
		opts:    opts,
	}
}

// Answer resolves one question. The returned error is non-nil only for
// invalid input; every failure past validation produces a well-formed
// fallback Result carrying the error, so chat-style callers always
// have an answer to show.
func (o *Orchestrator) Answer(ctx context.Context, query string, history []llm.Message) (*Result, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		o.record(telemetry.QueryEvent{
			Query:     query,
			Outcome:   telemetry.OutcomeInvalidInput,
			Latency:   time.Since(start),
			Timestamp: start,
		})
		return nil, cerr.New(cerr.ErrCodeQueryEmpty, "query must not be empty", nil)
	}

	snap := o.manager.Current()
	if snap == nil {
		o.logger.Warn("question received while index unavailable",
			slog.String("query", query))
		o.record(telemetry.QueryEvent{
			Query:     query,
			Outcome:   telemetry.OutcomeUnavailable,
			Latency:   time.Since(start),
			Timestamp: start,
		})
		return &Result{
			Answer:  unavailableAnswer,
			Outcome: string(telemetry.OutcomeUnavailable),
			Elapsed: time.Since(start),
		}, nil
	}

	passages, err := o.engine.Retrieve(ctx, snap, query, o.opts.TopK)
	if err != nil {
		return o.failed(start, query, 0, 0, err), nil
	}

	outcome := telemetry.OutcomeOK
	if len(passages) == 0 {
		// Nothing relevant in the knowledge base. Still answer, but
		// flag the response as ungrounded.
		outcome = telemetry.OutcomeDegraded
	}

	prompt := buildPrompt(query, passages)
	trimmed := NormalizeHistory(TruncateHistory(history, o.opts.HistoryLimit))

	answer, err := o.model.Complete(ctx, prompt, trimmed)
	if err != nil {
		return o.failed(start, query, len(passages), EstimateTokens(prompt), err), nil
	}

	elapsed := time.Since(start)
	o.record(telemetry.QueryEvent{
		Query:           query,
		Outcome:         outcome,
		PassageCount:    len(passages),
		EstimatedTokens: EstimateTokens(prompt),
		Latency:         elapsed,
		Timestamp:       start,
	})

	o.logger.Info("question answered",
		slog.String("outcome", string(outcome)),
		slog.Int("passages", len(passages)),
		slog.Duration("elapsed", elapsed))

	return &Result{
		Answer:  answer,
		Sources: uniqueSources(passages),
		Outcome: string(outcome),
		Elapsed: elapsed,
	}, nil
}

// failed converts a query-side failure into the fallback result and
// records it.
func (o *Orchestrator) failed(start time.Time, query string, passageCount, tokens int, err error) *Result {
	elapsed := time.Since(start)
	o.recordError(err)
	o.record(telemetry.QueryEvent{
		Query:           query,
		Outcome:         telemetry.OutcomeError,
		PassageCount:    passageCount,
		EstimatedTokens: tokens,
		Latency:         elapsed,
		Timestamp:       start,
	})
	o.logger.Error("question failed",
		slog.String("error", err.Error()),
		slog.Duration("elapsed", elapsed))

	return &Result{
		Answer:  errorAnswer,
		Outcome: string(telemetry.OutcomeError),
		Elapsed: elapsed,
		Err:     err,
	}
}

// buildPrompt assembles the retrieval context and question into the
// model prompt.
func buildPrompt(query string, passages []engine.Passage) string {
	texts := make([]string, 0, len(passages))
	for _, p := range passages {
		texts = append(texts, p.Text)
	}
	context := strings.Join(texts, "\n\n")
	if context == "" {
		context = "No relevant documentation was found."
	}
	return fmt.Sprintf("Context: %s\n\nQuestion: %s", context, query)
}

// EstimateTokens approximates the token count of a prompt. Four
// characters per token is close enough for usage accounting.
func EstimateTokens(prompt string) int {
	return len(prompt) / 4
}

// uniqueSources returns the distinct source URIs in rank order.
func uniqueSources(passages []engine.Passage) []string {
	seen := make(map[string]struct{}, len(passages))
	var sources []string
	for _, p := range passages {
		if p.SourceURI == "" {
			continue
		}
		if _, ok := seen[p.SourceURI]; ok {
			continue
		}
		seen[p.SourceURI] = struct{}{}
		sources = append(sources, p.SourceURI)
	}
	return sources
}

func (o *Orchestrator) record(event telemetry.QueryEvent) {
	if o.metrics != nil {
		o.metrics.RecordQuery(event)
	}
}

func (o *Orchestrator) recordError(err error) {
	if o.metrics != nil {
		o.metrics.RecordError(cerr.Kind(err))
	}
}
