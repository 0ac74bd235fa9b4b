package tablelock

import "context"

// nullManager is used when table locks are disabled. Every operation succeeds immediately.
type nullManager struct{}

// NewNullTableLockManager returns a manager whose locks never block and never fail.
func NewNullTableLockManager() ITableLockManager {
	return nullManager{}
}

func (nullManager) WriteLock(table string, purpose string) ITableLock {
	return &nullLock{table: table, purpose: purpose}
}

func (nullManager) ReadLock(table string, purpose string) ITableLock {
	return &nullLock{table: table, purpose: purpose, shared: true}
}

func (nullManager) ReapAllWriteLocks(context.Context) error { return nil }

func (nullManager) ResourceDeleted(context.Context, string) error { return nil }

func (nullManager) Tables(context.Context) ([]string, error) { return nil, nil }

func (nullManager) VisitLocks(context.Context, string, func(LockInfo) error) error { return nil }

type nullLock struct {
	table   string
	purpose string
	shared  bool
}

func (l *nullLock) Acquire(context.Context) error { return nil }
func (l *nullLock) Release(context.Context) error { return nil }
func (l *nullLock) Table() string                 { return l.table }
func (l *nullLock) Purpose() string               { return l.purpose }
func (l *nullLock) IsShared() bool                { return l.shared }
