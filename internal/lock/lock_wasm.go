//go:build js && wasm

package lock

import (
	"errors"
	"os"
)

var errLockBusy = errors.New("lock: busy")

// wasm is single-process; locking is a no-op.
func flockExclusiveNonBlocking(f *os.File) error { return nil }
func flockExclusiveBlocking(f *os.File) error     { return nil }
func flockUnlock(f *os.File) error                { return nil }
