package storage

import "sync"

// WorkspaceLocks serialises read-modify-write sequences on one workspace. Different
// workspaces never block each other. Network calls must not run while a lock is held.
type WorkspaceLocks struct {
	mu    sync.Mutex
	locks map[string]*workspaceLock
}

type workspaceLock struct {
	mu   sync.Mutex
	refs int
}

func NewWorkspaceLocks() *WorkspaceLocks {
	return &WorkspaceLocks{locks: make(map[string]*workspaceLock)}
}

// Lock blocks until the workspace is free and returns the unlock func.
func (l *WorkspaceLocks) Lock(workspaceID string) func() {
	l.mu.Lock()
	wl, ok := l.locks[workspaceID]
	if !ok {
		wl = &workspaceLock{}
		l.locks[workspaceID] = wl
	}
	wl.refs++
	l.mu.Unlock()

	wl.mu.Lock()
	return func() {
		wl.mu.Unlock()

		l.mu.Lock()
		wl.refs--
		if wl.refs == 0 {
			delete(l.locks, workspaceID)
		}
		l.mu.Unlock()
	}
}
