package netcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Cache provides a simple persistent HTTP cache with ETag/Last-Modified support.
type Cache struct {
	Dir    string
	Client *http.Client

	// Retries is the number of full-fetch attempts; Backoff is the delay
	// before the second attempt and doubles after each failure.
	Retries int
	Backoff time.Duration

	// Progress, when set, receives a status line while downloading.
	Progress io.Writer
}

// New returns a new Cache with a reasonable default HTTP client.
func New(dir string) *Cache {
	return &Cache{
		Dir: dir,
		Client: &http.Client{
			Timeout: 2 * time.Minute,
		},
		Retries: 3,
		Backoff: 2 * time.Second,
	}
}

type meta struct {
	URL          string `json:"url"`
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	// Optional server-provided filename hint
	Filename string `json:"filename,omitempty"`
	// DataFile is the basename of the cached payload file
	DataFile string `json:"data_file"`
}

// Get fetches the URL into the cache and returns a local file path.
// If the cache is valid, it is reused without downloading.
// Returns (path, fromCache, error).
func (c *Cache) Get(ctx context.Context, url string) (string, bool, error) {
	key := hash(url)
	mpath := filepath.Join(c.Dir, key+".json")
	dataPath := filepath.Join(c.Dir, key+".data")

	if m, ok := c.readMeta(mpath, url); ok {
		path, fromCache, err := c.revalidate(ctx, url, m, mpath, dataPath)
		if err == nil {
			return path, fromCache, nil
		}
		// Server or network trouble: keep serving the last good copy.
		slog.Debug("revalidation failed, using cached copy", "url", url, "error", err)
		return filepath.Join(c.Dir, m.DataFile), true, nil
	}

	retries := max(c.Retries, 1)
	backoff := c.Backoff
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", false, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", false, err
		}
		lastErr = c.fetch(req, url, mpath, dataPath)
		if lastErr == nil {
			return dataPath, false, nil
		}
		if !retryable(lastErr) {
			break
		}
		slog.Debug("fetch failed", "url", url, "attempt", attempt+1, "error", lastErr)
	}
	return "", false, lastErr
}

func (c *Cache) readMeta(mpath, url string) (meta, bool) {
	var m meta
	b, err := os.ReadFile(mpath)
	if err != nil {
		return m, false
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, false
	}
	if m.URL != url || m.DataFile == "" || !fileExists(filepath.Join(c.Dir, m.DataFile)) {
		return m, false
	}
	return m, true
}

// revalidate issues a conditional GET for an entry that is already cached.
func (c *Cache) revalidate(ctx context.Context, url string, m meta, mpath, dataPath string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, err
	}
	if m.ETag != "" {
		req.Header.Set("If-None-Match", m.ETag)
	}
	if m.LastModified != "" {
		req.Header.Set("If-Modified-Since", m.LastModified)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotModified {
		return filepath.Join(c.Dir, m.DataFile), true, nil
	}
	if err := c.store(resp, url, mpath, dataPath); err != nil {
		return "", false, err
	}
	return dataPath, false, nil
}

func (c *Cache) fetch(req *http.Request, url, mpath, dataPath string) error {
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.store(resp, url, mpath, dataPath)
}

type statusError struct{ code int }

func (e statusError) Error() string { return fmt.Sprintf("HTTP %d", e.code) }

func retryable(err error) bool {
	if se, ok := err.(statusError); ok {
		return se.code >= 500
	}
	return true
}

func (c *Cache) store(resp *http.Response, url, mpath, dataPath string) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError{resp.StatusCode}
	}
	var body io.Reader = resp.Body
	var pr *progressReporter
	if c.Progress != nil {
		pr = &progressReporter{out: c.Progress, total: resp.ContentLength, label: contentFilename(url, resp), start: time.Now(), lastTick: time.Now()}
		body = io.TeeReader(resp.Body, pr)
	}
	err := streamToFile(body, dataPath, 0o644)
	if pr != nil {
		pr.finish()
	}
	if err != nil {
		return err
	}
	return writeMeta(mpath, meta{
		URL:          url,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		Filename:     contentFilename(url, resp),
		DataFile:     filepath.Base(dataPath),
	})
}

func streamToFile(r io.Reader, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp := dst + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

type progressReporter struct {
	out      io.Writer
	total    int64
	read     int64
	label    string
	start    time.Time
	lastTick time.Time
}

func humanBytes(n int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
	)
	switch {
	case n >= MB:
		return fmt.Sprintf("%.2f MB", float64(n)/float64(MB))
	case n >= KB:
		return fmt.Sprintf("%.1f KB", float64(n)/float64(KB))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func (p *progressReporter) Write(b []byte) (int, error) {
	n := len(b)
	p.read += int64(n)
	now := time.Now()
	if now.Sub(p.lastTick) >= 200*time.Millisecond {
		p.print()
		p.lastTick = now
	}
	return n, nil
}

func (p *progressReporter) finish() {
	p.print()
	fmt.Fprint(p.out, "\n")
}

func (p *progressReporter) print() {
	totalStr := "unknown"
	if p.total > 0 {
		totalStr = humanBytes(p.total)
	}
	fmt.Fprintf(p.out, "\rFetching %s: %s / %s", p.label, humanBytes(p.read), totalStr)
}

func writeMeta(path string, m meta) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

// contentFilename tries to derive a filename from headers or URL path.
func contentFilename(url string, resp *http.Response) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		// very light parse; look for filename="..."
		if i := strings.Index(cd, "filename="); i >= 0 {
			if v := strings.Trim(cd[i+9:], "\"'"); v != "" {
				return v
			}
		}
	}
	slash := strings.LastIndex(url, "/")
	if slash >= 0 && slash+1 < len(url) {
		return url[slash+1:]
	}
	return "download"
}
