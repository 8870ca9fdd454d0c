package etl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	cerr "github.com/RobMal123/ai-helpdesk-chatbot/internal/errors"
)

// Downloader fetches source URLs into the raw directory and normalizes
// them into the processed directory.
type Downloader struct {
	rawDir       string
	processedDir string
	fetchTimeout time.Duration
	concurrency  int
	client       *http.Client
	logger       *slog.Logger
}

// DownloaderOptions configures a Downloader.
type DownloaderOptions struct {
	RawDir       string
	ProcessedDir string
	FetchTimeout time.Duration
	Concurrency  int
	HTTPClient   *http.Client
}

// NewDownloader creates a downloader with the given options.
func NewDownloader(opts DownloaderOptions, logger *slog.Logger) *Downloader {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 60 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Downloader{
		rawDir:       opts.RawDir,
		processedDir: opts.ProcessedDir,
		fetchTimeout: opts.FetchTimeout,
		concurrency:  opts.Concurrency,
		client:       client,
		logger:       logger.With(slog.String("component", "etl")),
	}
}

// ReadURLFile parses a source URL list: one URL per line, blank lines
// and # comments ignored.
func ReadURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open url file %s: %w", path, err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url file %s: %w", path, err)
	}
	return urls, nil
}

// FetchAll downloads every URL concurrently, each bounded by the fetch
// timeout. Individual failures are logged and counted; only a fully
// failed run returns an error. Returns the number of successful
// downloads.
func (d *Downloader) FetchAll(ctx context.Context, urls []string) (int, error) {
	if len(urls) == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(d.rawDir, 0o755); err != nil {
		return 0, cerr.InternalError(fmt.Sprintf("create raw directory: %v", err), err)
	}

	var mu sync.Mutex
	var succeeded int
	var firstErr error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for _, u := range urls {
		g.Go(func() error {
			if err := d.fetchOne(gctx, u); err != nil {
				d.logger.Warn("source fetch failed",
					slog.String("url", u),
					slog.String("error", err.Error()))
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				// Partial failure keeps the job going.
				return nil
			}
			mu.Lock()
			succeeded++
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return succeeded, err
	}
	if succeeded == 0 && firstErr != nil {
		return 0, firstErr
	}
	return succeeded, nil
}

// fetchOne downloads a single URL into the raw directory.
func (d *Downloader) fetchOne(ctx context.Context, rawURL string) error {
	fetchCtx, cancel := context.WithTimeout(ctx, d.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return cerr.FetchError(fmt.Sprintf("build request for %s: %v", rawURL, err), err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if fetchCtx.Err() == context.DeadlineExceeded {
			return cerr.New(cerr.ErrCodeFetchTimeout, fmt.Sprintf("fetch %s timed out after %s", rawURL, d.fetchTimeout), err)
		}
		return cerr.FetchError(fmt.Sprintf("fetch %s: %v", rawURL, err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return cerr.FetchError(fmt.Sprintf("fetch %s: status %d", rawURL, resp.StatusCode), nil)
	}

	dest := filepath.Join(d.rawDir, fileNameForURL(rawURL))
	f, err := os.Create(dest)
	if err != nil {
		return cerr.InternalError(fmt.Sprintf("create %s: %v", dest, err), err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return cerr.FetchError(fmt.Sprintf("write %s: %v", dest, err), err)
	}

	d.logger.Debug("source fetched", slog.String("url", rawURL), slog.String("dest", dest))
	return nil
}

// fileNameForURL derives a filesystem-safe name for a downloaded URL.
func fileNameForURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return sanitizeFileName(rawURL)
	}
	base := path.Base(u.Path)
	if base == "" || base == "/" || base == "." {
		base = "index.html"
	}
	return sanitizeFileName(u.Hostname() + "_" + base)
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitizeFileName(name string) string {
	return unsafeFileChars.ReplaceAllString(name, "_")
}

// htmlTag matches markup stripped during normalization.
var (
	htmlTag        = regexp.MustCompile(`(?s)<[^>]*>`)
	htmlScript     = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	multiBlankLine = regexp.MustCompile(`\n{3,}`)
)

// Normalize converts every raw file into a plain-text document in the
// processed directory. HTML files have their markup stripped; other
// files pass through with whitespace cleanup. Returns the number of
// processed documents.
func (d *Downloader) Normalize(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(d.rawDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, cerr.InternalError(fmt.Sprintf("read raw directory: %v", err), err)
	}
	if err := os.MkdirAll(d.processedDir, 0o755); err != nil {
		return 0, cerr.InternalError(fmt.Sprintf("create processed directory: %v", err), err)
	}

	var processed int
	for _, entry := range entries {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if entry.IsDir() {
			continue
		}

		src := filepath.Join(d.rawDir, entry.Name())
		data, err := os.ReadFile(src)
		if err != nil {
			d.logger.Warn("normalize read failed",
				slog.String("file", entry.Name()),
				slog.String("error", err.Error()))
			continue
		}

		text := normalizeText(string(data))
		if text == "" {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())) + ".txt"
		dest := filepath.Join(d.processedDir, name)
		if err := os.WriteFile(dest, []byte(text), 0o644); err != nil {
			d.logger.Warn("normalize write failed",
				slog.String("file", name),
				slog.String("error", err.Error()))
			continue
		}
		processed++
	}
	return processed, nil
}

// normalizeText strips markup and collapses excess blank lines.
func normalizeText(raw string) string {
	text := raw
	if strings.Contains(text, "<") && strings.Contains(text, ">") {
		text = htmlScript.ReplaceAllString(text, " ")
		text = htmlTag.ReplaceAllString(text, " ")
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	text = strings.Join(lines, "\n")
	text = multiBlankLine.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
