// Package lock guards the single-instance code-generation backend with an
// exclusive on-disk lock keyed by owner process id.
package lock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Dom110/KI-AutoAgent-sub003/internal/config"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/events"
)

// MutexMap serializes in-process lock attempts per lock path.
type MutexMap struct {
	mu      sync.Mutex
	mutexes map[string]*sync.Mutex
}

func NewMutexMap() *MutexMap {
	return &MutexMap{
		mutexes: make(map[string]*sync.Mutex),
	}
}

func (m *MutexMap) Lock(key string) {
	m.getMutex(key).Lock()
}

func (m *MutexMap) Unlock(key string) {
	m.getMutex(key).Unlock()
}

func (m *MutexMap) getMutex(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mu, ok := m.mutexes[key]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	m.mutexes[key] = mu
	return mu
}

const (
	terminateGrace = 2 * time.Second
	maxBackoff     = 5 * time.Second
)

// BackendLock claims exclusive access to the shared backend. The lock file
// holds the owner's PID; a file referencing a dead process is reclaimed as
// stale rather than waited on.
type BackendLock struct {
	path         string
	maxWait      time.Duration
	pollInterval time.Duration
	paths        *MutexMap
	bus          *events.Bus
	logger       *log.Logger

	removeFile func(string) error

	held bool
}

// NewBackendLock builds a lock from config. Instances sharing the same
// MutexMap serialize their attempts in-process; a nil MutexMap gets a private
// one.
func NewBackendLock(cfg config.LockConfig, paths *MutexMap, bus *events.Bus, logWriter io.Writer) *BackendLock {
	if logWriter == nil {
		logWriter = io.Discard
	}
	if paths == nil {
		paths = NewMutexMap()
	}
	maxWait := time.Duration(cfg.MaxWaitSec) * time.Second
	if maxWait <= 0 {
		maxWait = 60 * time.Second
	}
	poll := time.Duration(cfg.PollIntervalMs) * time.Millisecond
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &BackendLock{
		path:         cfg.Path,
		maxWait:      maxWait,
		pollInterval: poll,
		paths:        paths,
		bus:          bus,
		logger:       log.New(logWriter, "", 0),
		removeFile:   os.Remove,
	}
}

// Path returns the lock file path.
func (l *BackendLock) Path() string { return l.path }

// Held reports whether this instance currently owns the lock.
func (l *BackendLock) Held() bool { return l.held }

// Acquire claims the lock. If the holder is dead it reclaims the stale file;
// if the holder stays alive past the wait bound it is terminated and the lock
// taken over. The context cancels the wait.
func (l *BackendLock) Acquire(ctx context.Context) error {
	l.paths.Lock(l.path)
	defer func() {
		if !l.held {
			l.paths.Unlock(l.path)
		}
	}()

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if werr := watcher.Add(filepath.Dir(l.path)); werr != nil {
			watcher.Close()
			watcher = nil
		}
	} else {
		watcher = nil
	}
	if watcher != nil {
		defer watcher.Close()
	}

	deadline := time.Now().Add(l.maxWait)
	backoff := l.pollInterval
	forced := false

	for {
		claimed, holder, err := l.tryClaim()
		if err != nil {
			return err
		}
		if claimed {
			l.held = true
			return nil
		}

		// unreadable lock file: safe default is to treat it as stale
		if holder == 0 || !processAlive(holder) {
			if rmErr := l.removeFile(l.path); rmErr == nil || os.IsNotExist(rmErr) {
				l.logger.Printf("stale_lock_reclaimed path=%s pid=%d", l.path, holder)
				continue
			} else if time.Now().After(deadline) {
				return fmt.Errorf("cannot remove stale lock at %s: %w", l.path, rmErr)
			}
			// cannot remove the file right now; back off instead of spinning
		} else if time.Now().After(deadline) {
			if forced {
				return fmt.Errorf("lock at %s still held by pid %d after forced takeover", l.path, holder)
			}
			l.logger.Printf("lock_takeover path=%s pid=%d waited=%s", l.path, holder, l.maxWait)
			l.terminateHolder(holder)
			l.removeFile(l.path)
			l.bus.Publish(events.EventLockTakeover, map[string]interface{}{
				"path":       l.path,
				"holder_pid": holder,
			})
			forced = true
			continue
		}

		if err := l.waitForRelease(ctx, watcher, backoff); err != nil {
			return err
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Release removes the lock file if this process still owns it. Safe to call
// on every exit path, including after a failed Acquire.
func (l *BackendLock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	defer l.paths.Unlock(l.path)

	holder, err := readHolderPID(l.path)
	if err == nil && holder != os.Getpid() {
		// someone took the lock over; leave their file alone
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

// tryClaim attempts the exclusive create. On conflict it returns the holder's
// PID (0 when the file is unreadable).
func (l *BackendLock) tryClaim() (bool, int, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if os.IsExist(err) {
			holder, _ := readHolderPID(l.path)
			return false, holder, nil
		}
		return false, 0, fmt.Errorf("open lock file: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		f.Close()
		os.Remove(l.path)
		return false, 0, fmt.Errorf("write PID to lock file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(l.path)
		return false, 0, fmt.Errorf("sync lock file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(l.path)
		return false, 0, fmt.Errorf("close lock file: %w", err)
	}
	return true, 0, nil
}

// waitForRelease blocks until the lock file changes, the backoff interval
// elapses, or the context is cancelled.
func (l *BackendLock) waitForRelease(ctx context.Context, watcher *fsnotify.Watcher, backoff time.Duration) error {
	timer := time.NewTimer(backoff)
	defer timer.Stop()

	var eventCh chan fsnotify.Event
	var errCh chan error
	if watcher != nil {
		eventCh = watcher.Events
		errCh = watcher.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case ev := <-eventCh:
			if ev.Name == l.path && ev.Op&(fsnotify.Remove|fsnotify.Rename|fsnotify.Write) != 0 {
				return nil
			}
		case <-errCh:
			return nil
		}
	}
}

// terminateHolder asks the holder to exit, then kills it after the grace
// period.
func (l *BackendLock) terminateHolder(pid int) {
	syscall.Kill(pid, syscall.SIGTERM)
	grace := time.Now().Add(terminateGrace)
	for time.Now().Before(grace) {
		if !processAlive(pid) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	syscall.Kill(pid, syscall.SIGKILL)
	time.Sleep(50 * time.Millisecond)
}

func readHolderPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, errors.New("lock file does not contain a PID")
	}
	return pid, nil
}

// processAlive reports whether the PID refers to a running process. EPERM
// still counts as alive: the process exists but belongs to another user.
func processAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
