// Package syncengine reconciles the local workspace tree with the remote
// workspace store: a debounced push of local edits, a pull-on-sign-in that
// replaces local state, a durable pending-deletion drain, and a
// cross-session pending-sync payload for edits caught by teardown.
package syncengine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gridnote/gridnote/internal/localstore"
	"github.com/gridnote/gridnote/internal/model"
	"github.com/gridnote/gridnote/internal/remote"
	"github.com/gridnote/gridnote/internal/workspace"
)

// DefaultDebounce is the quiet window after the last local change before a
// push fires.
const DefaultDebounce = 500 * time.Millisecond

var ErrNotStarted = errors.New("sync engine not started")

// Options wires an engine. Store, Client and KV are required; Pending
// defaults to a queue over KV.
type Options struct {
	Store   *workspace.Store
	Client  remote.Client
	KV      localstore.KV
	Pending *localstore.PendingQueue
	Logger  zerolog.Logger

	// Debounce overrides DefaultDebounce; tests shrink it.
	Debounce time.Duration
	// RetryInterval re-arms the push timer after a partial failure even
	// without new local edits. Zero disables the retry timer, leaving the
	// next user edit as the only retry trigger.
	RetryInterval time.Duration
}

// Engine owns the push/pull lifecycle for one authenticated session at a
// time. All cross-flow flags (skip-next-push, last-pushed serialization,
// the debounce timer) live here so separate instances never interfere.
type Engine struct {
	store    *workspace.Store
	client   remote.Client
	kv       localstore.KV
	pending  *localstore.PendingQueue
	logger   zerolog.Logger
	debounce time.Duration
	retry    time.Duration

	// pushMu serializes push cycles.
	pushMu sync.Mutex

	mu              sync.Mutex
	ctx             context.Context
	userID          string
	started         bool
	timer           *time.Timer
	lastPushed      string
	skipNextPush    bool
	initialSyncDone bool
	syncErr         string
	onSyncError     func(string)
}

func New(opts Options) *Engine {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	pending := opts.Pending
	if pending == nil {
		pending = localstore.NewPendingQueue(opts.KV)
	}
	e := &Engine{
		store:    opts.Store,
		client:   opts.Client,
		kv:       opts.KV,
		pending:  pending,
		logger:   opts.Logger,
		debounce: debounce,
		retry:    opts.RetryInterval,
	}
	e.store.SetChangeListener(e.handleChange)
	return e
}

// OnSyncError registers the session-level sync error observable. The
// callback receives "" when a later cycle fully succeeds.
func (e *Engine) OnSyncError(fn func(message string)) {
	e.mu.Lock()
	e.onSyncError = fn
	e.mu.Unlock()
}

// SyncError returns the current session-level sync error, "" when clear.
func (e *Engine) SyncError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncErr
}

// InitialSyncDone reports whether the session's first pull has completed.
// It resets whenever the authenticated identity changes.
func (e *Engine) InitialSyncDone() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialSyncDone
}

// Start begins a session for the authenticated user: replay a matching
// pending-sync payload from a torn-down previous session, then pull. A
// pull failure is reported through the sync error observable and returned,
// but the session stays started so Pull can be retried.
func (e *Engine) Start(ctx context.Context, userID string) error {
	e.mu.Lock()
	if e.started && e.userID == userID {
		e.mu.Unlock()
		return nil
	}
	e.stopTimerLocked()
	e.ctx = ctx
	e.userID = userID
	e.started = true
	e.initialSyncDone = false
	e.lastPushed = ""
	e.skipNextPush = false
	e.mu.Unlock()

	if payload, ok := localstore.TakePendingSync(e.kv, userID); ok {
		e.logger.Info().Int("workspaces", len(payload.Workspaces)).
			Msg("replaying pending sync payload")
		if err := e.pushWorkspaces(ctx, payload.Workspaces); err != nil {
			e.logger.Warn().Err(err).Msg("pending sync replay failed")
		}
	}
	return e.Pull(ctx)
}

// Stop ends the session: the debounce timer is canceled, but a push that
// is already executing finishes naturally.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopTimerLocked()
	e.started = false
	e.userID = ""
	e.initialSyncDone = false
	e.mu.Unlock()
}

// Shutdown handles process teardown. When a debounced push is still armed
// for an authenticated user, the full current state is persisted under the
// pending-sync key so the next session for the same user replays it.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	armed := e.timer != nil
	userID := e.userID
	e.stopTimerLocked()
	e.started = false
	e.mu.Unlock()

	if !armed || userID == "" {
		return
	}
	st := e.store.State()
	err := localstore.SavePendingSync(e.kv, localstore.PendingSync{
		UserID:     userID,
		SavedAt:    time.Now(),
		Workspaces: st.Workspaces,
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("failed to persist pending sync payload")
		return
	}
	e.logger.Info().Int("workspaces", len(st.Workspaces)).
		Msg("persisted pending sync payload for next session")
}

// Pull fetches the remote truth and installs it locally. An empty remote
// account is seeded from local state instead; a non-empty one wins
// completely except for each workspace's local-only expansion flag.
func (e *Engine) Pull(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return ErrNotStarted
	}
	userID := e.userID
	e.mu.Unlock()

	remoteWorkspaces, err := e.client.FetchAllWorkspaces(ctx, userID)
	if err != nil {
		e.setSyncError("pull failed: " + err.Error())
		return err
	}

	if len(remoteWorkspaces) == 0 {
		if err := e.seedRemote(ctx, userID); err != nil {
			e.setSyncError("initial push failed: " + err.Error())
			return err
		}
	} else {
		e.installRemote(remoteWorkspaces)
	}

	e.mu.Lock()
	e.initialSyncDone = true
	e.mu.Unlock()
	e.setSyncError("")
	return nil
}

// seedRemote pushes every local workspace as a fresh create, workspace
// first, then its tables, then its notes, in local order.
func (e *Engine) seedRemote(ctx context.Context, userID string) error {
	if err := e.store.ClaimOwnership(userID); err != nil && !errors.Is(err, workspace.ErrInvalidInput) {
		return err
	}
	st := e.store.State()
	for _, ws := range st.Workspaces {
		if ws.OwnerID != userID {
			continue
		}
		if err := e.client.CreateWorkspace(ctx, ws); err != nil {
			return err
		}
		for _, table := range ws.Tables {
			if err := e.client.CreateTable(ctx, ws.ID, table); err != nil {
				return err
			}
		}
		for _, note := range ws.Notes {
			if err := e.client.CreateNote(ctx, ws.ID, note); err != nil {
				return err
			}
		}
	}
	e.mu.Lock()
	e.lastPushed = serializeWorkspaces(st.Workspaces)
	e.skipNextPush = true
	e.mu.Unlock()
	return nil
}

// installRemote replaces local state with the fetched workspaces,
// preserving each workspace's local expansion flag and re-deriving the
// selection when its target no longer exists.
func (e *Engine) installRemote(remoteWorkspaces []model.Workspace) {
	current := e.store.State()

	expanded := make(map[string]bool, len(current.Workspaces))
	profileOf := make(map[string]string, len(current.Workspaces))
	for _, ws := range current.Workspaces {
		expanded[ws.ID] = ws.IsExpanded
		profileOf[ws.ID] = ws.ProfileID
	}

	next := current.Clone()
	next.Workspaces = next.Workspaces[:0]
	for _, ws := range remoteWorkspaces {
		ws.IsExpanded = expanded[ws.ID]
		if profileID, ok := profileOf[ws.ID]; ok {
			ws.ProfileID = profileID
		} else {
			ws.ProfileID = current.Selection.ProfileID
		}
		ws.Synced = true
		next.Workspaces = append(next.Workspaces, ws)
	}

	selected := next.Workspace(next.Selection.WorkspaceID)
	if selected == nil || selectionTableGone(selected, next.Selection.TableID) {
		next.Selection.WorkspaceID = ""
		next.Selection.TableID = ""
		next.Selection.NoteID = ""
		if len(next.Workspaces) > 0 {
			first := &next.Workspaces[0]
			next.Selection.WorkspaceID = first.ID
			next.Selection.ProfileID = first.ProfileID
			for i := range first.Tables {
				if !first.Tables[i].IsArchived {
					next.Selection.TableID = first.Tables[i].ID
					break
				}
			}
		}
	}

	e.mu.Lock()
	e.lastPushed = serializeWorkspaces(next.Workspaces)
	e.skipNextPush = true
	e.mu.Unlock()

	e.store.ReplaceFromSync(next)
}

// selectionTableGone reports whether a selected table no longer exists in
// the merged workspace it belonged to.
func selectionTableGone(ws *model.Workspace, tableID string) bool {
	if tableID == "" {
		return false
	}
	for i := range ws.Tables {
		if ws.Tables[i].ID == tableID {
			return false
		}
	}
	return true
}

// handleChange is the store's change listener. Sync-originated replacements
// never schedule a push; everything else resets the debounce window.
func (e *Engine) handleChange(syncOriginated bool) {
	if syncOriginated {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return
	}
	// A genuine local edit means the next push is no longer the one that
	// immediately follows a pull.
	e.skipNextPush = false
	e.armTimerLocked(e.debounce)
}

func (e *Engine) armTimerLocked(after time.Duration) {
	if e.timer != nil {
		e.timer.Stop()
	}
	ctx := e.ctx
	e.timer = time.AfterFunc(after, func() {
		e.mu.Lock()
		e.timer = nil
		started := e.started
		e.mu.Unlock()
		if !started {
			return
		}
		e.Push(ctx)
	})
}

func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// Push runs one push cycle against the latest state. It is normally driven
// by the debounce timer; calling it directly flushes pending edits.
func (e *Engine) Push(ctx context.Context) error {
	e.pushMu.Lock()
	defer e.pushMu.Unlock()

	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return ErrNotStarted
	}
	userID := e.userID
	e.mu.Unlock()

	// Ownerless workspaces are claimed before serializing so the pushed
	// payload and the recorded serialization agree.
	if err := e.store.ClaimOwnership(userID); err != nil && !errors.Is(err, workspace.ErrInvalidInput) {
		e.logger.Warn().Err(err).Msg("ownership claim failed")
	}

	st := e.store.State()
	serialized := serializeWorkspaces(st.Workspaces)

	e.mu.Lock()
	if serialized == e.lastPushed {
		e.mu.Unlock()
		return nil
	}
	if e.skipNextPush {
		e.skipNextPush = false
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	err := e.pushWorkspaces(ctx, st.Workspaces)

	e.mu.Lock()
	e.lastPushed = serialized
	e.mu.Unlock()

	if err != nil {
		e.setSyncError("partial sync failure: " + err.Error())
		e.mu.Lock()
		if e.retry > 0 && e.started {
			e.armTimerLocked(e.retry)
			// Forget the serialization so the retry is not compare-skipped.
			e.lastPushed = ""
		}
		e.mu.Unlock()
		return err
	}
	e.setSyncError("")
	return nil
}

// pushWorkspaces upserts the given workspaces and drains the
// pending-deletion queue. Workspaces sync concurrently with each other;
// within one workspace the metadata upsert completes before any of its
// tables and notes are attempted, since content creation needs the parent
// to exist remotely.
func (e *Engine) pushWorkspaces(ctx context.Context, workspaces []model.Workspace) error {
	e.mu.Lock()
	userID := e.userID
	e.mu.Unlock()

	var (
		wg       sync.WaitGroup
		failedMu sync.Mutex
		failed   []string
	)
	recordFailure := func(id string) {
		failedMu.Lock()
		failed = append(failed, id)
		failedMu.Unlock()
	}

	for _, ws := range workspaces {
		if ws.OwnerID != "" && ws.OwnerID != userID {
			// Never overwrite or recreate another owner's workspace.
			continue
		}
		ws := ws
		if ws.OwnerID == "" {
			ws.OwnerID = userID
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !e.upsertWorkspace(ctx, ws) {
				recordFailure(ws.ID)
				return
			}
			if !e.pushContent(ctx, ws) {
				recordFailure(ws.ID)
			}
		}()
	}
	wg.Wait()

	e.drainPendingDeletes(ctx)

	if len(failed) > 0 {
		return errors.New("failed workspaces: " + strings.Join(failed, ", "))
	}
	return nil
}

// upsertWorkspace tries update first and falls back to create. The
// fallback absorbs both "does not exist yet" and "exists but stale"
// without a separate existence check.
func (e *Engine) upsertWorkspace(ctx context.Context, ws model.Workspace) bool {
	if err := e.client.UpdateWorkspace(ctx, ws); err == nil {
		return true
	}
	if err := e.client.CreateWorkspace(ctx, ws); err != nil {
		e.logger.Warn().Err(err).Str("workspace", ws.ID).Msg("workspace upsert failed")
		return false
	}
	return true
}

// pushContent upserts a workspace's tables and notes concurrently.
func (e *Engine) pushContent(ctx context.Context, ws model.Workspace) bool {
	var wg sync.WaitGroup
	var mu sync.Mutex
	allOK := true
	fail := func() {
		mu.Lock()
		allOK = false
		mu.Unlock()
	}
	for _, table := range ws.Tables {
		table := table
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.client.UpdateTable(ctx, ws.ID, table); err == nil {
				return
			}
			if err := e.client.CreateTable(ctx, ws.ID, table); err != nil {
				e.logger.Warn().Err(err).Str("table", table.ID).Msg("table upsert failed")
				fail()
			}
		}()
	}
	for _, note := range ws.Notes {
		note := note
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.client.UpdateNote(ctx, ws.ID, note); err == nil {
				return
			}
			if err := e.client.CreateNote(ctx, ws.ID, note); err != nil {
				e.logger.Warn().Err(err).Str("note", note.ID).Msg("note upsert failed")
				fail()
			}
		}()
	}
	wg.Wait()
	return allOK
}

// drainPendingDeletes attempts every queued remote deletion. Any outcome
// removes the item: a delete that 404s has already reached the desired end
// state, and a poison entry must not block the queue forever.
func (e *Engine) drainPendingDeletes(ctx context.Context) {
	ops, err := e.pending.List()
	if err != nil {
		e.logger.Warn().Err(err).Msg("could not read pending deletions")
		return
	}
	for _, op := range ops {
		var delErr error
		switch op.Entity {
		case model.EntityWorkspace:
			delErr = e.client.DeleteWorkspace(ctx, op.EntityID)
		case model.EntityTable:
			delErr = e.client.DeleteTable(ctx, op.EntityID)
		case model.EntityNote:
			delErr = e.client.DeleteNote(ctx, op.EntityID)
		default:
			e.logger.Warn().Str("entity", string(op.Entity)).Msg("unknown pending entity kind")
		}
		if delErr != nil && !errors.Is(delErr, remote.ErrNotFound) {
			e.logger.Warn().Err(delErr).Str("entity", string(op.Entity)).
				Str("id", op.EntityID).Msg("remote delete failed, dropping from queue")
		}
		if err := e.pending.Remove(op.ID); err != nil {
			e.logger.Warn().Err(err).Str("op", op.ID).Msg("could not remove drained deletion")
		}
	}
}

// MoveTable applies a cross-workspace table move locally and immediately
// on the remote store, bypassing the debounce.
func (e *Engine) MoveTable(ctx context.Context, tableID, targetWorkspaceID string) error {
	if err := e.store.MoveTable(tableID, targetWorkspaceID); err != nil {
		return err
	}
	if err := e.client.MoveTable(ctx, tableID, targetWorkspaceID); err != nil {
		e.logger.Warn().Err(err).Str("table", tableID).Msg("remote table move failed")
		return err
	}
	return nil
}

// MoveNote applies a cross-workspace note move locally and immediately on
// the remote store, bypassing the debounce.
func (e *Engine) MoveNote(ctx context.Context, noteID, targetWorkspaceID string) error {
	if err := e.store.MoveNote(noteID, targetWorkspaceID); err != nil {
		return err
	}
	if err := e.client.MoveNote(ctx, noteID, targetWorkspaceID); err != nil {
		e.logger.Warn().Err(err).Str("note", noteID).Msg("remote note move failed")
		return err
	}
	return nil
}

// SetWorkspaceVisibility applies a visibility change remote-first: local
// state is only updated after the remote store confirms.
func (e *Engine) SetWorkspaceVisibility(ctx context.Context, workspaceID string, visibility model.Visibility) error {
	if err := e.client.SetWorkspaceVisibility(ctx, workspaceID, visibility); err != nil {
		return err
	}
	return e.store.SetWorkspaceVisibility(workspaceID, visibility)
}

// ValidateShareLink resolves a share token against the remote store.
func (e *Engine) ValidateShareLink(ctx context.Context, token string) (remote.ShareLinkInfo, error) {
	return e.client.ValidateShareLink(ctx, token)
}

func (e *Engine) setSyncError(message string) {
	e.mu.Lock()
	changed := e.syncErr != message
	e.syncErr = message
	fn := e.onSyncError
	e.mu.Unlock()
	if changed && fn != nil {
		fn(message)
	}
}

func serializeWorkspaces(workspaces []model.Workspace) string {
	data, err := json.Marshal(workspaces)
	if err != nil {
		return ""
	}
	return string(data)
}
