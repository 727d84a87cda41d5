// Package lock provides an advisory, cross-process exclusive lock on a
// sibling file, used by the file store to serialize read-merge-write
// access to one destination file at a time.
package lock

import (
	"errors"
	"os"
	"time"
)

// ErrTimeout is returned by Acquire when the lock could not be obtained
// within the given timeout.
var ErrTimeout = errors.New("lock: timed out waiting for exclusive lock")

const pollInterval = 10 * time.Millisecond

// FileLock holds an OS-level advisory exclusive lock on the file at Path
// for the lifetime of the FileLock value.
type FileLock struct {
	Path string
	f    *os.File
}

// Acquire opens (creating if necessary) the file at path and blocks until
// it obtains an exclusive advisory lock or timeout elapses, whichever
// comes first. A zero timeout means try once and fail immediately if
// contended; a negative timeout blocks indefinitely.
func Acquire(path string, timeout time.Duration) (*FileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	if timeout < 0 {
		if err := flockExclusiveBlocking(f); err != nil {
			f.Close()
			return nil, err
		}
		return &FileLock{Path: path, f: f}, nil
	}

	deadline := time.Now().Add(timeout)
	for {
		err := flockExclusiveNonBlocking(f)
		if err == nil {
			return &FileLock{Path: path, f: f}, nil
		}
		if !errors.Is(err, errLockBusy) {
			f.Close()
			return nil, err
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, ErrTimeout
		}
		time.Sleep(pollInterval)
	}
}

// Release unlocks and closes the underlying file handle. Calling it again
// on the same FileLock is a no-op that returns nil.
func (l *FileLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := flockUnlock(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
