// Package history keeps bounded undo/redo stacks of whole-state snapshots.
package history

import (
	"sync"

	"github.com/gridnote/gridnote/internal/model"
)

// DefaultCapacity bounds the undo stack when no explicit capacity is given.
const DefaultCapacity = 50

// Manager owns the committed state and two bounded snapshot stacks. Commit
// records the previous state; Replace swaps the state without recording,
// which is how sync-originated updates bypass history. Availability of
// undo/redo is recomputed synchronously on every transition and reported
// through the OnAvailability callback, never polled.
type Manager struct {
	mu       sync.Mutex
	capacity int
	current  *model.State
	past     []*model.State
	future   []*model.State
	onAvail  func(canUndo, canRedo bool)
}

// NewManager starts history at the given state. capacity <= 0 selects
// DefaultCapacity.
func NewManager(initial *model.State, capacity int) *Manager {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Manager{
		capacity: capacity,
		current:  initial,
	}
}

// OnAvailability registers the observer invoked after every commit, replace,
// undo and redo. The callback runs outside the manager's lock but
// synchronously inside the triggering call, so whatever locks that caller
// holds are still held; observers must not re-enter the caller.
func (m *Manager) OnAvailability(fn func(canUndo, canRedo bool)) {
	m.mu.Lock()
	m.onAvail = fn
	m.mu.Unlock()
	m.notify()
}

// Current returns the committed state. Callers must treat it as immutable.
func (m *Manager) Current() *model.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Commit records the current state on the undo stack (evicting the oldest
// snapshot when over capacity), clears the redo stack, and installs next.
func (m *Manager) Commit(next *model.State) {
	m.mu.Lock()
	m.past = append(m.past, m.current)
	if len(m.past) > m.capacity {
		m.past = append([]*model.State(nil), m.past[len(m.past)-m.capacity:]...)
	}
	m.future = nil
	m.current = next
	m.mu.Unlock()
	m.notify()
}

// Replace installs next without touching either stack. Used for
// sync-originated state so a pull is never undoable.
func (m *Manager) Replace(next *model.State) {
	m.mu.Lock()
	m.current = next
	m.mu.Unlock()
	m.notify()
}

// Undo pops the most recent past snapshot, pushing the current state onto
// the redo stack. Returns the restored state, or false when there is
// nothing to undo.
func (m *Manager) Undo() (*model.State, bool) {
	m.mu.Lock()
	if len(m.past) == 0 {
		m.mu.Unlock()
		return nil, false
	}
	restored := m.past[len(m.past)-1]
	m.past = m.past[:len(m.past)-1]
	m.future = append(m.future, m.current)
	m.current = restored
	m.mu.Unlock()
	m.notify()
	return restored, true
}

// Redo is symmetric to Undo over the redo stack.
func (m *Manager) Redo() (*model.State, bool) {
	m.mu.Lock()
	if len(m.future) == 0 {
		m.mu.Unlock()
		return nil, false
	}
	restored := m.future[len(m.future)-1]
	m.future = m.future[:len(m.future)-1]
	m.past = append(m.past, m.current)
	m.current = restored
	m.mu.Unlock()
	m.notify()
	return restored, true
}

// CanUndo reports whether the undo stack is non-empty.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.past) > 0
}

// CanRedo reports whether the redo stack is non-empty.
func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.future) > 0
}

func (m *Manager) notify() {
	m.mu.Lock()
	fn := m.onAvail
	canUndo := len(m.past) > 0
	canRedo := len(m.future) > 0
	m.mu.Unlock()
	if fn != nil {
		fn(canUndo, canRedo)
	}
}
