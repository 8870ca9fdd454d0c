// Package telemetry records local usage metrics for the helpdesk
// service: query outcomes, latency distribution, estimated token
// spend, and ingestion job history. All data stays on disk next to
// the index - nothing is reported externally.
package telemetry

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Outcome classifies how a query was answered.
type Outcome string

const (
	OutcomeOK           Outcome = "ok"
	OutcomeInvalidInput Outcome = "invalid_input"
	OutcomeUnavailable  Outcome = "unavailable"
	OutcomeDegraded     Outcome = "degraded"
	OutcomeError        Outcome = "error"
)

// LatencyBucket is one histogram bucket of end-to-end query latency.
type LatencyBucket string

const (
	BucketUnder100ms LatencyBucket = "lt100ms"
	BucketUnder500ms LatencyBucket = "lt500ms"
	BucketUnder2s    LatencyBucket = "lt2s"
	BucketUnder10s   LatencyBucket = "lt10s"
	BucketOver10s    LatencyBucket = "ge10s"
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 100:
		return BucketUnder100ms
	case ms < 500:
		return BucketUnder500ms
	case ms < 2000:
		return BucketUnder2s
	case ms < 10000:
		return BucketUnder10s
	default:
		return BucketOver10s
	}
}

// QueryEvent is one answered (or failed) query for recording.
type QueryEvent struct {
	Query           string
	Outcome         Outcome
	PassageCount    int
	EstimatedTokens int
	Latency         time.Duration
	Timestamp       time.Time
}

// JobRun is one completed ingestion job for the history log.
type JobRun struct {
	JobID      string
	StartedAt  time.Time
	Downloaded int
	Processed  int
	Elapsed    time.Duration
	Outcome    string
}

// TermCount pairs a query term with its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is an immutable view of the in-memory metrics.
type Snapshot struct {
	OutcomeCounts       map[Outcome]int64       `json:"outcome_counts"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	ErrorCounts         map[string]int64        `json:"error_counts"`
	TopTerms            []TermCount             `json:"top_terms"`
	RecentQueries       []string                `json:"recent_queries"`
	TotalQueries        int64                   `json:"total_queries"`
	TotalTokens         int64                   `json:"total_tokens"`
	DocumentCount       int                     `json:"document_count"`
	IndexAvailable      bool                    `json:"index_available"`
	Since               time.Time               `json:"since"`
}

// MetricsStore persists aggregated metrics and job history.
type MetricsStore interface {
	SaveOutcomeCounts(date string, counts map[Outcome]int64) error
	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error
	SaveUsage(date string, queries, tokens int64) error
	UpsertTermCounts(terms map[string]int64) error
	GetTopTerms(limit int) ([]TermCount, error)
	SaveJobRun(run JobRun) error
	RecentJobRuns(limit int) ([]JobRun, error)
	Close() error
}

// Config configures the metrics recorder.
type Config struct {
	Enabled             bool
	TopTermsCapacity    int
	RecentQueryCapacity int
	FlushInterval       time.Duration
}

// DefaultConfig returns recorder defaults with recording enabled.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		TopTermsCapacity:    100,
		RecentQueryCapacity: 100,
		FlushInterval:       60 * time.Second,
	}
}

// Recorder collects helpdesk metrics. Thread-safe. When disabled via
// config every Record call is a no-op, so callers never guard it.
type Recorder struct {
	mu sync.RWMutex

	outcomes      map[Outcome]int64
	latencies     map[LatencyBucket]int64
	errorCounts   map[string]int64
	topTerms      *lru.Cache[string, int64]
	recentQueries *ringBuffer[string]
	totalQueries  int64
	totalTokens   int64
	documentCount int
	available     bool
	startTime     time.Time

	// Deltas since the last flush, so daily upserts add rather than
	// re-add the lifetime totals.
	deltaOutcomes  map[Outcome]int64
	deltaLatencies map[LatencyBucket]int64
	deltaTerms     map[string]int64
	deltaQueries   int64
	deltaTokens    int64

	store       MetricsStore
	config      Config
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closed      bool
}

// NewRecorder creates a metrics recorder. A nil store keeps metrics in
// memory only.
func NewRecorder(store MetricsStore, cfg Config) *Recorder {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	if cfg.RecentQueryCapacity <= 0 {
		cfg.RecentQueryCapacity = 100
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)

	r := &Recorder{
		outcomes:       make(map[Outcome]int64),
		latencies:      make(map[LatencyBucket]int64),
		errorCounts:    make(map[string]int64),
		topTerms:       topTerms,
		recentQueries:  newRingBuffer[string](cfg.RecentQueryCapacity),
		startTime:      time.Now(),
		deltaOutcomes:  make(map[Outcome]int64),
		deltaLatencies: make(map[LatencyBucket]int64),
		deltaTerms:     make(map[string]int64),
		store:          store,
		config:         cfg,
		stopCh:         make(chan struct{}),
	}

	if cfg.Enabled && cfg.FlushInterval > 0 && store != nil {
		r.flushTicker = time.NewTicker(cfg.FlushInterval)
		go r.flushLoop()
	}
	return r
}

// Enabled reports whether recording is active.
func (r *Recorder) Enabled() bool {
	return r.config.Enabled
}

func (r *Recorder) flushLoop() {
	for {
		select {
		case <-r.flushTicker.C:
			_ = r.Flush()
		case <-r.stopCh:
			return
		}
	}
}

// RecordQuery captures one query event.
func (r *Recorder) RecordQuery(event QueryEvent) {
	if !r.config.Enabled {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	r.outcomes[event.Outcome]++
	r.totalQueries++
	r.totalTokens += int64(event.EstimatedTokens)
	r.deltaOutcomes[event.Outcome]++
	r.deltaQueries++
	r.deltaTokens += int64(event.EstimatedTokens)

	bucket := LatencyToBucket(event.Latency)
	r.latencies[bucket]++
	r.deltaLatencies[bucket]++

	for _, term := range ExtractTerms(event.Query) {
		count, _ := r.topTerms.Get(term)
		r.topTerms.Add(term, count+1)
		r.deltaTerms[term]++
	}

	r.recentQueries.Add(event.Query)
}

// RecordError counts a failure by its error kind.
func (r *Recorder) RecordError(kind string) {
	if !r.config.Enabled {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.errorCounts[kind]++
}

// RecordJobRun persists one ingestion run to the history log.
func (r *Recorder) RecordJobRun(run JobRun) error {
	if !r.config.Enabled || r.store == nil {
		return nil
	}
	return r.store.SaveJobRun(run)
}

// SetIndexState updates the published-index gauges.
func (r *Recorder) SetIndexState(available bool, documentCount int) {
	if !r.config.Enabled {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.available = available
	r.documentCount = documentCount
}

// Snapshot returns the current metrics.
func (r *Recorder) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	outcomes := make(map[Outcome]int64, len(r.outcomes))
	for k, v := range r.outcomes {
		outcomes[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(r.latencies))
	for k, v := range r.latencies {
		latencies[k] = v
	}
	errCounts := make(map[string]int64, len(r.errorCounts))
	for k, v := range r.errorCounts {
		errCounts[k] = v
	}

	var topTerms []TermCount
	for _, key := range r.topTerms.Keys() {
		if count, ok := r.topTerms.Peek(key); ok {
			topTerms = append(topTerms, TermCount{Term: key, Count: count})
		}
	}
	sortTermCounts(topTerms)

	return &Snapshot{
		OutcomeCounts:       outcomes,
		LatencyDistribution: latencies,
		ErrorCounts:         errCounts,
		TopTerms:            topTerms,
		RecentQueries:       r.recentQueries.Items(),
		TotalQueries:        r.totalQueries,
		TotalTokens:         r.totalTokens,
		DocumentCount:       r.documentCount,
		IndexAvailable:      r.available,
		Since:               r.startTime,
	}
}

// Flush persists the counts accumulated since the previous flush.
func (r *Recorder) Flush() error {
	if r.store == nil || !r.config.Enabled {
		return nil
	}

	r.mu.Lock()
	outcomes := r.deltaOutcomes
	latencies := r.deltaLatencies
	terms := r.deltaTerms
	queries := r.deltaQueries
	tokens := r.deltaTokens
	r.deltaOutcomes = make(map[Outcome]int64)
	r.deltaLatencies = make(map[LatencyBucket]int64)
	r.deltaTerms = make(map[string]int64)
	r.deltaQueries = 0
	r.deltaTokens = 0
	r.mu.Unlock()

	today := time.Now().Format("2006-01-02")

	if err := r.store.SaveOutcomeCounts(today, outcomes); err != nil {
		return err
	}
	if err := r.store.SaveLatencyCounts(today, latencies); err != nil {
		return err
	}
	if err := r.store.UpsertTermCounts(terms); err != nil {
		return err
	}
	if queries > 0 {
		if err := r.store.SaveUsage(today, queries, tokens); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and stops the recorder.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if r.flushTicker != nil {
		r.flushTicker.Stop()
		close(r.stopCh)
	}
	return r.Flush()
}

// ExtractTerms splits a query into lowercase terms of length >= 3.
func ExtractTerms(query string) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	var terms []string
	for _, w := range strings.Fields(query) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

func sortTermCounts(terms []TermCount) {
	for i := 0; i < len(terms); i++ {
		for j := i + 1; j < len(terms); j++ {
			if terms[j].Count > terms[i].Count {
				terms[i], terms[j] = terms[j], terms[i]
			}
		}
	}
}

// ringBuffer is a fixed-capacity FIFO of recent values.
type ringBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int
	size     int
	capacity int
}

func newRingBuffer[T any](capacity int) *ringBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &ringBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add appends an item, evicting the oldest when full.
func (b *ringBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the buffered items oldest first.
func (b *ringBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []T{}
	}

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}
