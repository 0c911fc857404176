package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"aprz.dev/aprz/internal/aprzerr"
)

// Lock is a single advisory exclusive lock file at <cache_root>/.lock.
// It protects only the structural cache layout (directory creation,
// table rotation), not individual per-key file writes — those are
// already disjoint by construction (see internal/orchestrator's
// per-repo/per-spec deduplication).
type Lock struct {
	path string
	file *os.File
}

// AcquireLock creates <root>/.lock exclusively. If another process
// already holds it, this fails fast with a clear error — the contract
// explicitly forbids waiting.
func AcquireLock(root string) (*Lock, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("cache lock: create root: %w: %w", aprzerr.Io, err)
	}

	path := filepath.Join(root, ".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("cache lock: %s is already held by another process", path)
		}
		return nil, fmt.Errorf("cache lock: %w: %w", aprzerr.Io, err)
	}

	return &Lock{path: path, file: f}, nil
}

// Release closes and removes the lock file. Safe to call once; callers
// typically defer it immediately after a successful AcquireLock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	cerr := l.file.Close()
	rerr := os.Remove(l.path)
	l.file = nil
	if cerr != nil {
		return cerr
	}
	return rerr
}
