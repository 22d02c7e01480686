// Package lock guards index rebuilds across processes with advisory file locks.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/domain"
)

// FileLocker takes one lock file per index under dir.
type FileLocker struct {
	dir    string
	logger *zap.Logger
}

// NewFileLocker creates a locker rooted at dir. The directory is created on first use.
func NewFileLocker(dir string, logger *zap.Logger) *FileLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileLocker{dir: dir, logger: logger}
}

// Path returns the lock file for index.
func (l *FileLocker) Path(index string) string {
	return filepath.Join(l.dir, "reindex-"+sanitize(index)+".lock")
}

// TryLock acquires the index lock without blocking. When another holder has it,
// the error wraps domain.ErrReindexInProgress.
func (l *FileLocker) TryLock(index string) (func(), error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	path := l.Path(index)
	fl := flock.New(path)
	acquired, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !acquired {
		return nil, fmt.Errorf("index %s: %w", index, domain.ErrReindexInProgress)
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			l.logger.Warn("release reindex lock", zap.String("path", path), zap.Error(err))
		}
	}, nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
