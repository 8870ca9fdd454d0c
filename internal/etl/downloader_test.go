package etl

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDownloader(t *testing.T, opts DownloaderOptions) *Downloader {
	t.Helper()
	if opts.RawDir == "" {
		opts.RawDir = filepath.Join(t.TempDir(), "raw")
	}
	if opts.ProcessedDir == "" {
		opts.ProcessedDir = filepath.Join(t.TempDir(), "processed")
	}
	return NewDownloader(opts, testLogger())
}

func TestReadURLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	content := "# helpdesk sources\nhttps://example.com/faq.html\n\nhttps://example.com/guide.txt\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	urls, err := ReadURLFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/faq.html", "https://example.com/guide.txt"}, urls)
}

func TestReadURLFile_MissingFileIsEmpty(t *testing.T) {
	urls, err := ReadURLFile(filepath.Join(t.TempDir(), "nope.txt"))
	require.NoError(t, err)
	assert.Nil(t, urls)
}

func TestFetchAll_DownloadsIntoRawDir(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("document body for " + r.URL.Path))
	}))
	defer srv.Close()

	rawDir := filepath.Join(t.TempDir(), "raw")
	d := newTestDownloader(t, DownloaderOptions{RawDir: rawDir})

	count, err := d.FetchAll(context.Background(), []string{srv.URL + "/faq.txt", srv.URL + "/guide.txt"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	entries, err := os.ReadDir(rawDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestFetchAll_PartialFailureContinues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	d := newTestDownloader(t, DownloaderOptions{})
	count, err := d.FetchAll(context.Background(), []string{srv.URL + "/good.txt", srv.URL + "/bad"})
	require.NoError(t, err, "one failed fetch must not fail the run")
	assert.Equal(t, 1, count)
}

func TestFetchAll_AllFailedReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := newTestDownloader(t, DownloaderOptions{})
	count, err := d.FetchAll(context.Background(), []string{srv.URL + "/a", srv.URL + "/b"})
	require.Error(t, err)
	assert.Zero(t, count)
}

func TestFetchAll_TimeoutBoundsSlowSources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	d := newTestDownloader(t, DownloaderOptions{FetchTimeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := d.FetchAll(context.Background(), []string{srv.URL})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNormalize_StripsHTML(t *testing.T) {
	rawDir := filepath.Join(t.TempDir(), "raw")
	processedDir := filepath.Join(t.TempDir(), "processed")
	require.NoError(t, os.MkdirAll(rawDir, 0o755))

	html := `<html><head><style>body { color: red }</style></head>
<body><h1>Password Reset</h1><p>Open settings and click reset.</p>
<script>track()</script></body></html>`
	require.NoError(t, os.WriteFile(filepath.Join(rawDir, "faq.html"), []byte(html), 0o644))

	d := newTestDownloader(t, DownloaderOptions{RawDir: rawDir, ProcessedDir: processedDir})
	count, err := d.Normalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	data, err := os.ReadFile(filepath.Join(processedDir, "faq.txt"))
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "Password Reset")
	assert.Contains(t, text, "Open settings and click reset.")
	assert.NotContains(t, text, "<h1>")
	assert.NotContains(t, text, "track()")
	assert.NotContains(t, text, "color: red")
}

func TestNormalize_PlainTextPassesThrough(t *testing.T) {
	rawDir := filepath.Join(t.TempDir(), "raw")
	processedDir := filepath.Join(t.TempDir(), "processed")
	require.NoError(t, os.MkdirAll(rawDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rawDir, "guide.txt"), []byte("Step one.\n\n\n\n\nStep two.\n"), 0o644))

	d := newTestDownloader(t, DownloaderOptions{RawDir: rawDir, ProcessedDir: processedDir})
	count, err := d.Normalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	data, err := os.ReadFile(filepath.Join(processedDir, "guide.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Step one.\n\nStep two.", string(data))
}

func TestNormalize_MissingRawDirIsEmpty(t *testing.T) {
	d := newTestDownloader(t, DownloaderOptions{RawDir: filepath.Join(t.TempDir(), "nope")})
	count, err := d.Normalize(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestFileNameForURL(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://example.com/docs/faq.html", "example.com_faq.html"},
		{"https://example.com/", "example.com_index.html"},
		{"https://example.com/path/with spaces?q=1", "example.com_with_spaces"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, fileNameForURL(tt.url), tt.url)
	}
}
