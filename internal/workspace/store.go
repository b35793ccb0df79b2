// Package workspace holds the live application state (profile workspaces,
// workspaces, tables, notes, selection) and every mutation operation over
// it. The store is the single owner of the in-memory tree: the sync engine
// only ever reads snapshots, and the history manager holds copies.
package workspace

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gridnote/gridnote/internal/history"
	"github.com/gridnote/gridnote/internal/localstore"
	"github.com/gridnote/gridnote/internal/model"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrLastWorkspace = errors.New("cannot delete the last workspace in a profile")
	ErrLastProfile   = errors.New("cannot delete the last profile workspace")
)

// errNoop makes a validation failure terminate a mutation without a commit
// and without an error reaching the caller (rename-to-empty and friends are
// silent no-ops).
var errNoop = errors.New("noop")

// ChangeListener observes committed state changes. syncOriginated is true
// only for state replaced by a pull, which must not re-trigger a push.
type ChangeListener func(syncOriginated bool)

type Options struct {
	KV              localstore.KV
	Pending         *localstore.PendingQueue
	Logger          zerolog.Logger
	HistoryCapacity int
	Now             func() time.Time
	NewID           func() string
}

type Store struct {
	mu       sync.Mutex
	history  *history.Manager
	kv       localstore.KV
	pending  *localstore.PendingQueue
	logger   zerolog.Logger
	now      func() time.Time
	newID    func() string
	onChange ChangeListener
	onAvail  func(canUndo, canRedo bool)
}

// NewStore builds a store, restoring the autosaved snapshot from the local
// store when one exists and seeding the default state otherwise.
func NewStore(opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = model.NewID
	}
	s := &Store{
		kv:      opts.KV,
		pending: opts.Pending,
		logger:  opts.Logger,
		now:     now,
		newID:   newID,
	}
	initial := s.restoreSnapshot()
	if initial == nil {
		initial = model.NewDefaultState(now())
	}
	initial.Normalize(now())
	s.history = history.NewManager(initial, opts.HistoryCapacity)
	return s
}

// SetChangeListener registers the single change observer (the sync engine).
func (s *Store) SetChangeListener(fn ChangeListener) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// OnHistoryAvailability registers the undo/redo availability observer. It
// fires on registration and after every state transition. The callback runs
// with no store lock held, so it may call back into the store.
func (s *Store) OnHistoryAvailability(fn func(canUndo, canRedo bool)) {
	s.mu.Lock()
	s.onAvail = fn
	s.mu.Unlock()
	if fn != nil {
		fn(s.history.CanUndo(), s.history.CanRedo())
	}
}

// State returns the current committed snapshot. Callers must treat it as
// immutable; every mutation builds a clone.
func (s *Store) State() *model.State {
	return s.history.Current()
}

// CanUndo reports whether an undo step is available.
func (s *Store) CanUndo() bool { return s.history.CanUndo() }

// CanRedo reports whether a redo step is available.
func (s *Store) CanRedo() bool { return s.history.CanRedo() }

// Undo restores the previous committed state, if any.
func (s *Store) Undo() bool {
	s.mu.Lock()
	restored, ok := s.history.Undo()
	if ok {
		s.autosave(restored)
	}
	s.mu.Unlock()
	if ok {
		s.fireChange(false)
		s.fireAvailability()
	}
	return ok
}

// Redo restores the next state on the redo stack, if any.
func (s *Store) Redo() bool {
	s.mu.Lock()
	restored, ok := s.history.Redo()
	if ok {
		s.autosave(restored)
	}
	s.mu.Unlock()
	if ok {
		s.fireChange(false)
		s.fireAvailability()
	}
	return ok
}

// ReplaceFromSync installs state pulled from the remote store. The update
// bypasses undo history and is flagged so the push effect does not
// immediately re-push it.
func (s *Store) ReplaceFromSync(next *model.State) {
	s.mu.Lock()
	next.Normalize(s.now())
	s.history.Replace(next)
	s.autosave(next)
	s.mu.Unlock()
	s.fireChange(true)
	s.fireAvailability()
}

// mutate runs fn against a clone of the current state and commits the
// result. record selects whether the change lands in undo history; pure
// UI/selection updates pass false. fn returning errNoop abandons the
// mutation silently.
func (s *Store) mutate(record bool, fn func(st *model.State) error) error {
	s.mu.Lock()
	next := s.history.Current().Clone()
	if err := fn(next); err != nil {
		s.mu.Unlock()
		if errors.Is(err, errNoop) {
			return nil
		}
		return err
	}
	next.Normalize(s.now())
	if record {
		s.history.Commit(next)
	} else {
		s.history.Replace(next)
	}
	s.autosave(next)
	s.mu.Unlock()
	s.fireChange(false)
	s.fireAvailability()
	return nil
}

func (s *Store) fireChange(syncOriginated bool) {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn(syncOriginated)
	}
}

func (s *Store) fireAvailability() {
	s.mu.Lock()
	fn := s.onAvail
	s.mu.Unlock()
	if fn != nil {
		fn(s.history.CanUndo(), s.history.CanRedo())
	}
}

// autosave persists the full snapshot and the selection pointers. Autosave
// is best-effort; failures are logged and never block a mutation.
func (s *Store) autosave(st *model.State) {
	if s.kv == nil {
		return
	}
	data, err := json.Marshal(st)
	if err == nil {
		err = s.kv.Put(localstore.KeyStateSnapshot, data)
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("state autosave failed")
		return
	}
	if ptr, err := json.Marshal(st.Selection.TableID); err == nil {
		_ = s.kv.Put(localstore.KeyCurrentTable, ptr)
	}
	if ptr, err := json.Marshal(st.Selection.ProfileID); err == nil {
		_ = s.kv.Put(localstore.KeyCurrentProfile, ptr)
	}
}

func (s *Store) restoreSnapshot() *model.State {
	if s.kv == nil {
		return nil
	}
	data, ok, err := s.kv.Get(localstore.KeyStateSnapshot)
	if err != nil || !ok {
		return nil
	}
	var st model.State
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn().Err(err).Msg("discarding corrupt state snapshot")
		return nil
	}
	return &st
}

func (s *Store) enqueueDelete(entity model.EntityKind, entityID, workspaceID string) {
	if s.pending == nil {
		return
	}
	if err := s.pending.EnqueueDelete(entity, entityID, workspaceID); err != nil {
		s.logger.Warn().Err(err).Str("entity", string(entity)).Str("id", entityID).
			Msg("failed to enqueue pending deletion")
	}
}

// reselectContent applies the fallback cascade after the displayed
// table/note disappears: another table, then another note, then empty.
func reselectContent(st *model.State, ws *model.Workspace) {
	st.Selection.TableID = ""
	st.Selection.NoteID = ""
	if ws == nil {
		return
	}
	for i := range ws.Tables {
		if !ws.Tables[i].IsArchived {
			st.Selection.TableID = ws.Tables[i].ID
			return
		}
	}
	for i := range ws.Notes {
		if !ws.Notes[i].IsArchived {
			st.Selection.NoteID = ws.Notes[i].ID
			return
		}
	}
}

func trimmedName(name string) (string, bool) {
	trimmed := strings.TrimSpace(name)
	return trimmed, trimmed != ""
}
