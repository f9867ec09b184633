package ledger

import "sync"

// projectLocks serializes mutations per project id. Distinct projects do
// not contend; the settings scalars have their own lock.
type projectLocks struct {
	mu       sync.Mutex
	projects map[int64]*sync.Mutex
	createMu sync.Mutex
	adminMu  sync.Mutex
}

func newProjectLocks() *projectLocks {
	return &projectLocks{projects: make(map[int64]*sync.Mutex)}
}

func (l *projectLocks) lock(projectID int64) func() {
	l.mu.Lock()
	m, ok := l.projects[projectID]
	if !ok {
		m = &sync.Mutex{}
		l.projects[projectID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// lockCreate guards sequential project id assignment.
func (l *projectLocks) lockCreate() func() {
	l.createMu.Lock()
	return l.createMu.Unlock
}

// lockAdmin guards the settings row and fee accruals.
func (l *projectLocks) lockAdmin() func() {
	l.adminMu.Lock()
	return l.adminMu.Unlock
}
