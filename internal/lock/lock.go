// Package lock enforces single-instance execution of the scheduler daemon
// via a PID token visible to every process on the machine.
package lock

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// TokenName is the file name of the single-instance token.
const TokenName = "docschedd.lock"

// ErrHeld is returned by Acquire when a live scheduler already owns the lock.
var ErrHeld = errors.New("scheduler already running")

// Lock manages the single-instance PID token.
type Lock struct {
	path   string
	logger *slog.Logger
}

// New creates a Lock rooted at dir. If dir is empty, DefaultDir() is used.
func New(dir string, logger *slog.Logger) *Lock {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Lock{
		path:   filepath.Join(dir, TokenName),
		logger: logger.With("component", "lock"),
	}
}

// DefaultDir returns the directory for the lock token: the kernel-backed
// /dev/shm when present, otherwise the system temp directory.
func DefaultDir() string {
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// Path returns the token path.
func (l *Lock) Path() string {
	return l.path
}

// Acquire takes the lock for the calling process and returns its pid.
// If a live scheduler owns the token, it returns the owner's pid and ErrHeld.
// A stale token (dead or invalid owner) is removed and acquisition retried
// once. Any other failure to create the token is fatal to the caller.
func (l *Lock) Acquire() (int, error) {
	if pid := l.Owner(); pid > 0 {
		return pid, ErrHeld
	}

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			// Lost a create race to another starting instance.
			if pid := l.Owner(); pid > 0 {
				return pid, ErrHeld
			}
		}
		return 0, fmt.Errorf("create lock token %s: %w", l.path, err)
	}
	defer f.Close()

	pid := os.Getpid()
	if _, err := fmt.Fprintf(f, "%-9.9d", pid); err != nil {
		os.Remove(l.path)
		return 0, fmt.Errorf("write lock token: %w", err)
	}

	l.logger.Debug("lock acquired", "pid", pid, "path", l.path)
	return pid, nil
}

// Owner returns the pid of the live scheduler holding the token, or 0 when
// no live owner exists. Invalid and stale tokens are removed as a side
// effect so a subsequent Acquire succeeds.
func (l *Lock) Owner() int {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid < 2 {
		l.logger.Warn("removing invalid lock token", "path", l.path)
		os.Remove(l.path)
		return 0
	}

	if alive(pid) {
		return pid
	}

	l.logger.Info("removing stale lock token", "pid", pid, "path", l.path)
	os.Remove(l.path)
	return 0
}

// Release removes the token. Only the owner may call it, exactly once, at
// clean shutdown.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock token %s: %w", l.path, err)
	}
	return nil
}

// Kill sends sig to the live owner of the token and removes the token. It
// returns the signalled pid, or 0 when no instance was running (a no-op,
// not an error).
func (l *Lock) Kill(sig unix.Signal) (int, error) {
	pid := l.Owner()
	if pid == 0 {
		return 0, nil
	}
	if err := unix.Kill(pid, sig); err != nil {
		return pid, fmt.Errorf("signal pid %d: %w", pid, err)
	}
	if err := l.Release(); err != nil {
		return pid, err
	}
	return pid, nil
}

// alive reports whether pid refers to an existing process, using the null
// signal as a liveness probe. EPERM means the process exists but belongs to
// another user.
func alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
