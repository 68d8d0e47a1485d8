// Package lockfile provides cross-process file locking for cache builds.
// A lock is an OS-level flock on a lock file; the file's modification time
// doubles as a staleness marker so locks abandoned by crashed or hung
// holders can be reclaimed.
package lockfile

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	pherrors "github.com/phasergun/phasergun/internal/errors"
)

// Defaults for lock acquisition.
const (
	DefaultStale      = 60 * time.Second
	DefaultMaxRetries = 10
	DefaultMinBackoff = 500 * time.Millisecond
	DefaultMaxBackoff = 3000 * time.Millisecond
)

// Options configures lock acquisition.
type Options struct {
	// Stale is the age after which an existing lock file is treated as
	// abandoned and removed.
	Stale time.Duration

	// MaxRetries is the number of acquisition attempts before failing.
	MaxRetries int

	// MinBackoff and MaxBackoff bound the randomized exponential backoff
	// between attempts.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// withDefaults fills zero fields.
func (o Options) withDefaults() Options {
	if o.Stale <= 0 {
		o.Stale = DefaultStale
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.MinBackoff <= 0 {
		o.MinBackoff = DefaultMinBackoff
	}
	if o.MaxBackoff < o.MinBackoff {
		o.MaxBackoff = DefaultMaxBackoff
	}
	return o
}

// Manager acquires locks with shared options.
type Manager struct {
	opts Options
}

// NewManager creates a lock manager. Zero option fields take defaults.
func NewManager(opts Options) *Manager {
	return &Manager{opts: opts.withDefaults()}
}

// Lock is a held lock. Release must be called on all exit paths.
type Lock struct {
	path string
	fl   *flock.Flock

	mu       sync.Mutex
	released bool
}

// Acquire obtains an exclusive lock at path, retrying with randomized
// exponential backoff. An existing lock file older than Options.Stale is
// treated as abandoned and removed.
func (m *Manager) Acquire(ctx context.Context, path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, pherrors.New(pherrors.ErrCodeLockFailed,
			fmt.Sprintf("create lock directory for %s", path), err)
	}

	for attempt := 0; attempt < m.opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, pherrors.New(pherrors.ErrCodeLockFailed, "lock acquisition cancelled", err)
		}

		fl := flock.New(path)
		acquired, err := fl.TryLock()
		if err != nil {
			return nil, pherrors.New(pherrors.ErrCodeLockFailed,
				fmt.Sprintf("try lock %s", path), err)
		}
		if acquired {
			// Record holder identity and refresh mtime for stale detection.
			_ = os.WriteFile(path, []byte(fmt.Sprintf("pid=%d acquired=%s\n",
				os.Getpid(), time.Now().Format(time.RFC3339Nano))), 0o644)
			return &Lock{path: path, fl: fl}, nil
		}

		// Held elsewhere. Reclaim if the holder looks abandoned.
		if info, statErr := os.Stat(path); statErr == nil {
			if time.Since(info.ModTime()) > m.opts.Stale {
				_ = os.Remove(path)
				continue
			}
		}

		if !m.sleepBackoff(ctx, attempt) {
			return nil, pherrors.New(pherrors.ErrCodeLockFailed, "lock acquisition cancelled", ctx.Err())
		}
	}

	return nil, pherrors.LockAcquisitionError(
		fmt.Sprintf("could not acquire %s after %d attempts", path, m.opts.MaxRetries), nil)
}

// sleepBackoff sleeps a randomized exponential backoff for the given
// attempt. Returns false if the context was cancelled.
func (m *Manager) sleepBackoff(ctx context.Context, attempt int) bool {
	ceiling := m.opts.MinBackoff << attempt
	if ceiling > m.opts.MaxBackoff || ceiling <= 0 {
		ceiling = m.opts.MaxBackoff
	}
	span := ceiling - m.opts.MinBackoff
	delay := m.opts.MinBackoff
	if span > 0 {
		delay += time.Duration(rand.Int63n(int64(span) + 1))
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Release removes the lock file and drops the OS lock. Safe to call more
// than once.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return nil
	}
	l.released = true

	// Remove the file first so a racing acquirer never observes an
	// unlocked but present lock file as a live holder.
	rmErr := os.Remove(l.path)
	if err := l.fl.Unlock(); err != nil {
		return pherrors.New(pherrors.ErrCodeLockFailed,
			fmt.Sprintf("release %s", l.path), err)
	}
	if rmErr != nil && !os.IsNotExist(rmErr) {
		return pherrors.New(pherrors.ErrCodeLockFailed,
			fmt.Sprintf("remove %s", l.path), rmErr)
	}
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}
