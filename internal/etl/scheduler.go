package etl

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/RobMal123/ai-helpdesk-chatbot/internal/alert"
	cerr "github.com/RobMal123/ai-helpdesk-chatbot/internal/errors"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/index"
	"github.com/RobMal123/ai-helpdesk-chatbot/internal/telemetry"
)

// Job outcomes recorded in history.
const (
	JobOutcomeOK      = "ok"
	JobOutcomeSkipped = "skipped"
	JobOutcomeFailed  = "failed"
)

// JobRecord summarizes one ingestion run.
type JobRecord struct {
	JobID      string        `json:"job_id"`
	Trigger    string        `json:"trigger"`
	StartedAt  time.Time     `json:"started_at"`
	Downloaded int           `json:"downloaded"`
	Processed  int           `json:"processed"`
	Documents  int           `json:"documents"`
	Elapsed    time.Duration `json:"elapsed"`
	Outcome    string        `json:"outcome"`
}

// ControllerOptions configures the ingestion controller.
type ControllerOptions struct {
	// ScheduleHour is the local hour (0-23) of the daily run.
	ScheduleHour int
	// URLFile lists source URLs to download. Empty skips downloading.
	URLFile string
}

// Controller runs ingestion jobs: on a daily schedule, on demand, and
// at most one at a time.
type Controller struct {
	downloader *Downloader
	source     Source
	manager    *index.Manager
	metrics    *telemetry.Recorder
	alerts     alert.Notifier
	logger     *slog.Logger
	opts       ControllerOptions

	busy   atomic.Bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewController wires the ingestion pipeline together.
func NewController(downloader *Downloader, source Source, manager *index.Manager, metrics *telemetry.Recorder, alerts alert.Notifier, logger *slog.Logger, opts ControllerOptions) *Controller {
	if alerts == nil {
		alerts = alert.NopNotifier{}
	}
	return &Controller{
		downloader: downloader,
		source:     source,
		manager:    manager,
		metrics:    metrics,
		alerts:     alerts,
		logger:     logger.With(slog.String("component", "scheduler")),
		opts:       opts,
		stopCh:     make(chan struct{}),
	}
}

// Busy reports whether a job is currently running.
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// RunOnce executes one ingestion job. A second call while a job is in
// flight is rejected immediately with a busy error.
func (c *Controller) RunOnce(ctx context.Context, trigger string) (*JobRecord, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, cerr.New(cerr.ErrCodeJobBusy, "an ingestion job is already running", nil)
	}
	defer c.busy.Store(false)

	record := &JobRecord{
		JobID:     "job-" + uuid.NewString(),
		Trigger:   trigger,
		StartedAt: time.Now(),
	}
	logger := c.logger.With(slog.String("job_id", record.JobID), slog.String("trigger", trigger))
	logger.Info("ingestion started")

	err := c.run(ctx, record, logger)
	record.Elapsed = time.Since(record.StartedAt)

	if err != nil {
		record.Outcome = JobOutcomeFailed
		logger.Error("ingestion failed",
			slog.String("error", err.Error()),
			slog.Duration("elapsed", record.Elapsed))
		c.alerts.Notify(ctx, alert.Notification{
			Title:    "Ingestion job failed",
			Message:  err.Error(),
			Severity: alert.SeverityError,
			Fields: map[string]string{
				"job_id":  record.JobID,
				"trigger": trigger,
			},
		})
	} else {
		logger.Info("ingestion finished",
			slog.String("outcome", record.Outcome),
			slog.Int("downloaded", record.Downloaded),
			slog.Int("processed", record.Processed),
			slog.Int("documents", record.Documents),
			slog.Duration("elapsed", record.Elapsed))
		c.alerts.Notify(ctx, alert.Notification{
			Title:    "Ingestion job completed",
			Message:  fmt.Sprintf("Indexed %d documents", record.Documents),
			Severity: alert.SeverityInfo,
			Fields: map[string]string{
				"job_id":     record.JobID,
				"trigger":    trigger,
				"outcome":    record.Outcome,
				"downloaded": strconv.Itoa(record.Downloaded),
				"processed":  strconv.Itoa(record.Processed),
				"elapsed":    record.Elapsed.Round(time.Millisecond).String(),
			},
		})
	}

	c.saveHistory(record)
	if err != nil {
		return record, err
	}
	return record, nil
}

func (c *Controller) run(ctx context.Context, record *JobRecord, logger *slog.Logger) error {
	if c.opts.URLFile != "" {
		urls, err := ReadURLFile(c.opts.URLFile)
		if err != nil {
			return err
		}
		if len(urls) > 0 {
			downloaded, err := c.downloader.FetchAll(ctx, urls)
			record.Downloaded = downloaded
			if err != nil {
				return err
			}

			processed, err := c.downloader.Normalize(ctx)
			record.Processed = processed
			if err != nil {
				return err
			}
		}
	}

	docs, err := c.source.Load(ctx)
	if err != nil {
		return err
	}
	record.Documents = len(docs)

	snap, err := c.manager.Rebuild(ctx, docs)
	if err != nil {
		return err
	}
	if snap == nil {
		record.Outcome = JobOutcomeSkipped
		logger.Warn("rebuild skipped, no documents available")
		return nil
	}

	record.Outcome = JobOutcomeOK
	if c.metrics != nil {
		c.metrics.SetIndexState(true, snap.DocumentCount())
	}
	return nil
}

func (c *Controller) saveHistory(record *JobRecord) {
	if c.metrics == nil {
		return
	}
	err := c.metrics.RecordJobRun(telemetry.JobRun{
		JobID:      record.JobID,
		StartedAt:  record.StartedAt,
		Downloaded: record.Downloaded,
		Processed:  record.Processed,
		Elapsed:    record.Elapsed,
		Outcome:    record.Outcome,
	})
	if err != nil {
		c.logger.Warn("job history write failed", slog.String("error", err.Error()))
	}
}

// Start launches the daily schedule loop. Each tick fires at the
// configured hour; a run skipped because a manual job holds the busy
// flag is logged and retried the next day.
func (c *Controller) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			next := nextRun(time.Now(), c.opts.ScheduleHour)
			c.logger.Info("next scheduled ingestion",
				slog.Time("at", next))

			timer := time.NewTimer(time.Until(next))
			select {
			case <-timer.C:
				if _, err := c.RunOnce(ctx, "schedule"); err != nil {
					c.logger.Warn("scheduled ingestion did not complete",
						slog.String("error", err.Error()))
				}
			case <-c.stopCh:
				timer.Stop()
				return
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	}()
}

// Stop halts the schedule loop and waits for it to exit. A job already
// running is not interrupted.
func (c *Controller) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

// nextRun returns the next occurrence of the given hour after now.
func nextRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// String implements fmt.Stringer for log output.
func (r *JobRecord) String() string {
	return fmt.Sprintf("%s trigger=%s outcome=%s docs=%d elapsed=%s",
		r.JobID, r.Trigger, r.Outcome, r.Documents, r.Elapsed.Round(time.Millisecond))
}
