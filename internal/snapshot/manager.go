package snapshot

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/exp/mmap"

	"aprz.dev/aprz/internal/aprzerr"
)

// tableFileNames are the on-disk file names recognized inside the
// snapshot tarball, and the order phases expect them materialized in.
var tableFileNames = []string{
	"packages", "versions", "dependencies", "categories", "keywords",
	"users", "teams", "owners", "package_categories", "package_keywords",
	"package_downloads", "version_downloads",
}

// Progress reports download progress. Total is 0 when the server did
// not provide Content-Length (indeterminate progress).
type Progress struct {
	Total      int64
	Downloaded int64
}

// ProgressReporter receives progress updates during a download.
type ProgressReporter func(Progress)

// Manager owns the on-disk snapshot directory: opening and
// memory-mapping the ~12 tables, detecting staleness, and re-downloading
// the tarball when needed.
type Manager struct {
	TablesRoot string
	SourceURL  string
	TTL        time.Duration
	Reporter   ProgressReporter

	mapped []*mmap.ReaderAt // kept open for the lifetime of the Manager
}

// NewManager constructs a Manager rooted at tablesRoot.
func NewManager(tablesRoot, sourceURL string, ttl time.Duration) *Manager {
	return &Manager{TablesRoot: tablesRoot, SourceURL: sourceURL, TTL: ttl}
}

// Open tries each table file in turn; if any is missing, stale, or
// fails to decode, every existing table file is deleted (with
// a bounded exponential-backoff retry, since some platforms release
// mmaps asynchronously) and the tarball is re-downloaded from scratch.
// Table files carry no signature, so none is checked.
func (m *Manager) Open(ctx context.Context) (*Tables, error) {
	tbls, err := m.openFromFiles()
	if err == nil {
		return tbls, nil
	}

	slog.Debug("snapshot tables stale or missing, refreshing", slog.Any("reason", err))

	if err := m.cleanup(ctx); err != nil {
		return nil, fmt.Errorf("snapshot: cleanup before refresh: %w", err)
	}

	if err := m.download(ctx); err != nil {
		return nil, fmt.Errorf("snapshot: download: %w", err)
	}

	return m.openFromFiles()
}

// SyncTime reports when the snapshot tables were last refreshed, the
// freshness floor the orchestrator compares cached facts against (a
// fact collected before the snapshot it was derived from was last
// synced is stale even if its own cache entry hasn't expired yet).
// Zero means the tables have never been materialized.
func (m *Manager) SyncTime() time.Time {
	info, err := os.Stat(filepath.Join(m.TablesRoot, "versions.bin"))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func (m *Manager) openFromFiles() (*Tables, error) {
	for _, name := range tableFileNames {
		path := filepath.Join(m.TablesRoot, name+".bin")
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w: %w", name, aprzerr.Io, err)
		}
		if time.Since(info.ModTime()) > m.TTL {
			return nil, fmt.Errorf("table %q is stale", name)
		}
	}

	// The on-disk binary table format itself is the declared non-goal
	// (Table[T] abstraction, spec.md §9); loadDecodedTables's JSON
	// framing stands in for it, but the read path is a real read-only
	// mmap.ReaderAt per file, not a buffered os.ReadFile.
	tbls, mapped, err := loadDecodedTables(m.TablesRoot)
	if err != nil {
		return nil, err
	}

	m.closeMapped()
	m.mapped = mapped
	return tbls, nil
}

// closeMapped releases any previously-open table mmaps, tolerating a
// nil slice on the first call.
func (m *Manager) closeMapped() {
	for _, r := range m.mapped {
		r.Close()
	}
	m.mapped = nil
}

// Close releases every table file's memory map. Safe to call once, and
// safe to call on a Manager that never successfully opened any tables.
func (m *Manager) Close() error {
	m.closeMapped()
	return nil
}

// cleanup deletes every table file, retrying with exponential backoff
// (six attempts, 100ms initial delay doubling each time, each delay
// capped at 1s plus up to 50ms jitter, about 2.5s of waiting in all) to
// tolerate platforms
// where a prior mmap is released asynchronously and the delete would
// otherwise transiently fail.
func (m *Manager) cleanup(ctx context.Context) error {
	return retry.Do(
		func() error {
			entries, err := os.ReadDir(m.TablesRoot)
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			for _, e := range entries {
				if err := os.Remove(filepath.Join(m.TablesRoot, e.Name())); err != nil && !os.IsNotExist(err) {
					return err
				}
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(6),
		retry.Delay(100*time.Millisecond),
		retry.MaxDelay(1*time.Second),
		retry.MaxJitter(50*time.Millisecond),
		retry.LastErrorOnly(true),
	)
}

// download streams the remote tarball through a bounded channel to a
// blocking worker that gunzips and untars it, converting each
// recognized CSV into its on-disk table form.
func (m *Manager) download(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.SourceURL, nil)
	if err != nil {
		return fmt.Errorf("snapshot download: %w: %w", aprzerr.ConfigInvalid, err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("snapshot download: %w: %w", aprzerr.Http, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("snapshot download: unexpected status %d: %w", resp.StatusCode, aprzerr.Http)
	}

	total := resp.ContentLength // -1 when absent: indeterminate progress
	chunks := make(chan []byte, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(chunks)
		var downloaded int64
		buf := make([]byte, 64*1024)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				downloaded += int64(n)
				if m.Reporter != nil {
					t := total
					if t < 0 {
						t = 0
					}
					m.Reporter(Progress{Total: t, Downloaded: downloaded})
				}
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- err
				return
			}
		}
	}()

	if err := os.MkdirAll(m.TablesRoot, 0o755); err != nil {
		return err
	}

	pr := &channelReader{chunks: chunks, errCh: errCh}
	gz, err := gzip.NewReader(pr)
	if err != nil {
		return fmt.Errorf("gzip: %w: %w", aprzerr.Parse, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("tar: %w: %w", aprzerr.Parse, err)
		}

		name := tableNameForCSV(hdr.Name)
		if name == "" {
			continue // not a recognized table CSV
		}

		if err := convertCSVToTable(m.TablesRoot, name, tr); err != nil {
			return fmt.Errorf("converting table %q: %w", name, err)
		}
	}

	return nil
}

// channelReader adapts a channel of byte chunks to an io.Reader, the Go
// analog of the original's ChannelReader over an mpsc channel.
type channelReader struct {
	chunks  <-chan []byte
	errCh   <-chan error
	current []byte
}

func (r *channelReader) Read(p []byte) (int, error) {
	for len(r.current) == 0 {
		chunk, ok := <-r.chunks
		if !ok {
			select {
			case err := <-r.errCh:
				return 0, err
			default:
				return 0, io.EOF
			}
		}
		r.current = chunk
	}
	n := copy(p, r.current)
	r.current = r.current[n:]
	return n, nil
}

func tableNameForCSV(tarPath string) string {
	base := filepath.Base(tarPath)
	ext := filepath.Ext(base)
	if ext != ".csv" {
		return ""
	}
	name := base[:len(base)-len(ext)]
	for _, known := range tableFileNames {
		if known == name {
			return name
		}
	}
	return ""
}

// convertCSVToTable (see decode.go) converts one table's CSV rows into
// its persisted form.
