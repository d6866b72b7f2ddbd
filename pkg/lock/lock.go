// Package lock provides keyed mutual exclusion used to serialize mutations of one workflow.
package lock

import (
	"context"
	"errors"
)

// ErrLockTimeout is returned when the context ends before the lock is acquired.
var ErrLockTimeout = errors.New("timed out waiting for lock")

// Unlock releases a held lock. Calling it more than once is a no-op.
type Unlock func() error

// Locker hands out exclusive locks per key.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// WorkflowKey is the lock key guarding the steps and transitions of a workflow.
func WorkflowKey(workflowID string) string {
	return "workflow:" + workflowID
}
