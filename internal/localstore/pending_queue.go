package localstore

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gridnote/gridnote/internal/model"
)

// PendingQueue is the durable queue of deletions awaiting confirmed remote
// execution. It is mutated by two independent flows (user-initiated
// permanent deletes and the push cycle's drain), so every mutation goes
// through a locked read-modify-write of the full queue; a snapshot is never
// held across a remote call before being written back.
type PendingQueue struct {
	kv  KV
	key string
	mu  sync.Mutex
	now func() time.Time
}

// NewPendingQueue stores the queue under KeyPendingDeletes in kv.
func NewPendingQueue(kv KV) *PendingQueue {
	return &PendingQueue{
		kv:  kv,
		key: KeyPendingDeletes,
		now: time.Now,
	}
}

// List returns the queued operations in enqueue order.
func (q *PendingQueue) List() ([]model.PendingOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loadLocked()
}

// EnqueueDelete records a deletion for the given entity. A deletion already
// queued for the same entity is not queued twice.
func (q *PendingQueue) EnqueueDelete(entity model.EntityKind, entityID, workspaceID string) error {
	if entityID == "" {
		return ErrInvalidInput
	}
	return q.Update(func(ops []model.PendingOperation) []model.PendingOperation {
		for _, op := range ops {
			if op.Entity == entity && op.EntityID == entityID {
				return ops
			}
		}
		return append(ops, model.PendingOperation{
			ID:          model.NewID(),
			Kind:        model.PendingOpDelete,
			Entity:      entity,
			EntityID:    entityID,
			WorkspaceID: workspaceID,
			CreatedAt:   q.now(),
		})
	})
}

// Remove deletes the operation with the given id, if present.
func (q *PendingQueue) Remove(opID string) error {
	return q.Update(func(ops []model.PendingOperation) []model.PendingOperation {
		out := ops[:0]
		for _, op := range ops {
			if op.ID != opID {
				out = append(out, op)
			}
		}
		return out
	})
}

// Update applies fn to the full queue under the lock and persists the
// result before returning.
func (q *PendingQueue) Update(fn func([]model.PendingOperation) []model.PendingOperation) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	ops, err := q.loadLocked()
	if err != nil {
		return err
	}
	next := fn(ops)
	return q.saveLocked(next)
}

func (q *PendingQueue) loadLocked() ([]model.PendingOperation, error) {
	data, ok, err := q.kv.Get(q.key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var ops []model.PendingOperation
	if err := json.Unmarshal(data, &ops); err != nil {
		// A corrupted queue never blocks startup; drop it.
		return nil, nil
	}
	return ops, nil
}

func (q *PendingQueue) saveLocked(ops []model.PendingOperation) error {
	if len(ops) == 0 {
		return q.kv.Delete(q.key)
	}
	data, err := json.Marshal(ops)
	if err != nil {
		return err
	}
	return q.kv.Put(q.key, data)
}
