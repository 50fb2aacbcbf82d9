package state

import (
	"fmt"
	"path/filepath"
	"sync"
)

// LockSuffix completes the sidecar file that carries the cross-process
// lock of a state file: TASK_001_status.json.lock.
const LockSuffix = ".lock"

// KeyLocks hands out one mutex per key. The store keys it by state file
// path, so two goroutines updating the same task serialize while updates
// to different tasks proceed in parallel.
type KeyLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyLocks creates an empty lock manager.
func NewKeyLocks() *KeyLocks {
	return &KeyLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its release func.
func (k *KeyLocks) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Len returns how many keys have been locked at least once.
func (k *KeyLocks) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// lock takes the in-process lock for a state file, then the advisory lock
// on its sidecar so the monitor, the hook and the MCP server serialize on
// the same record.
func (fs *FileStore) lock(path string) (func(), error) {
	unlock := fs.locks.Lock(path)
	release, err := lockFile(path + LockSuffix)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("locking %s: %w", filepath.Base(path), err)
	}
	return func() {
		release()
		unlock()
	}, nil
}
