package filestore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrLockContention is returned when a lock could not be acquired within
// the retry budget.
var ErrLockContention = errors.New("lock contention")

// LockOptions bounds lock acquisition.
type LockOptions struct {
	Retries    int           // additional attempts after the first
	BaseDelay  time.Duration // first retry delay, doubled each retry
	MaxDelay   time.Duration
	StaleAfter time.Duration // a lock older than this is presumed abandoned
}

// DefaultLockOptions returns the defaults used when no config is supplied.
func DefaultLockOptions() LockOptions {
	return LockOptions{
		Retries:    5,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   2 * time.Second,
		StaleAfter: 10 * time.Second,
	}
}

// Locker serializes writers of a file through a sibling "<file>.lock"
// created with O_EXCL. It works across processes sharing the directory.
type Locker struct {
	opts LockOptions
	now  func() time.Time

	beforeReclaim func(lockPath string) // test hook, runs between the stale check and the reclaim
}

// NewLocker creates a Locker. Zero fields fall back to DefaultLockOptions.
func NewLocker(opts LockOptions) *Locker {
	def := DefaultLockOptions()
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = def.BaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = def.MaxDelay
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = def.StaleAfter
	}
	return &Locker{opts: opts, now: time.Now}
}

var errLockHeld = errors.New("lock held")

// Acquire takes the lock guarding path. The returned release func removes
// the lock only if it is still ours.
func (l *Locker) Acquire(ctx context.Context, path string) (release func(), err error) {
	lockPath := path + ".lock"
	token := newToken()

	b := &backoff.ExponentialBackOff{
		InitialInterval:     l.opts.BaseDelay,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         l.opts.MaxDelay,
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		err := l.tryAcquire(lockPath, token)
		if err == nil || errors.Is(err, errLockHeld) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(l.opts.Retries+1)), //nolint:gosec // Retries is clamped to >= 0
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		if errors.Is(err, errLockHeld) {
			return nil, fmt.Errorf("%w: %s", ErrLockContention, path)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("acquire lock %s: %w", lockPath, err)
	}

	return func() {
		data, err := os.ReadFile(lockPath)
		if err != nil || string(data) != token {
			slog.Warn("lock lost before release", "path", lockPath)
			return
		}
		if err := os.Remove(lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Error("release lock", "path", lockPath, "error", err)
		}
	}, nil
}

func (l *Locker) tryAcquire(lockPath, token string) error {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err == nil {
		_, werr := f.WriteString(token)
		cerr := f.Close()
		if werr != nil || cerr != nil {
			_ = os.Remove(lockPath)
			return errors.Join(werr, cerr)
		}
		return nil
	}
	if !errors.Is(err, os.ErrExist) {
		return err
	}

	info, statErr := os.Stat(lockPath)
	if statErr != nil {
		// Released between our open and stat: try again.
		return errLockHeld
	}
	if age := l.now().Sub(info.ModTime()); age > l.opts.StaleAfter {
		slog.Warn("reclaiming stale lock", "path", lockPath, "age", age)
		if err := l.reclaim(lockPath, token, info); err != nil {
			return err
		}
		return l.tryAcquire(lockPath, token)
	}
	return errLockHeld
}

// reclaim moves the stale lock described by stale out of the way. The
// rename is atomic, so of several waiters only one moves a given file; a
// waiter that moved a lock other than the one it judged stale puts it back
// and reports the lock as held.
func (l *Locker) reclaim(lockPath, token string, stale os.FileInfo) error {
	if l.beforeReclaim != nil {
		l.beforeReclaim(lockPath)
	}
	grave := lockPath + ".stale-" + token
	if err := os.Rename(lockPath, grave); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errLockHeld
		}
		return err
	}
	moved, err := os.Stat(grave)
	if err == nil && (!os.SameFile(stale, moved) || !moved.ModTime().Equal(stale.ModTime())) {
		if lerr := os.Link(grave, lockPath); lerr != nil {
			slog.Error("restore reclaimed lock", "path", lockPath, "error", lerr)
		}
		_ = os.Remove(grave)
		return errLockHeld
	}
	_ = os.Remove(grave)
	return nil
}

func newToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%d:%s", os.Getpid(), hex.EncodeToString(b))
}
