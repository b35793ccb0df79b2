// Package localstore is the client-side durable key-value store. It holds
// the workspace snapshot, the current-selection pointers, the
// pending-deletion queue and the cross-session pending-sync payload, and
// survives process restarts.
package localstore

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// Well-known storage keys.
const (
	KeyStateSnapshot  = "state.snapshot"
	KeyCurrentTable   = "selection.currentTable"
	KeyCurrentProfile = "selection.currentProfile"
	KeyPendingDeletes = "sync.pendingDeletes"
	KeyPendingSync    = "sync.pendingPush"
)

// KV is the durable key-value contract. Implementations must persist every
// Put before returning and must be safe for concurrent use.
type KV interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Close() error
}
