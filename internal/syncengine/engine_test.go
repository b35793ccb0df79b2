package syncengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gridnote/gridnote/internal/localstore"
	"github.com/gridnote/gridnote/internal/model"
	"github.com/gridnote/gridnote/internal/remote"
	"github.com/gridnote/gridnote/internal/workspace"
)

// fakeClient records every remote call and fails on demand.
type fakeClient struct {
	mu sync.Mutex

	remoteWorkspaces []model.Workspace
	fetchErr         error

	failUpdateWorkspace map[string]bool
	failCreateWorkspace map[string]bool
	deleteTableErr      error

	calls             []string
	updatedWorkspaces []model.Workspace
	createdWorkspaces []model.Workspace
}

func (f *fakeClient) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeClient) callsWithPrefix(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeClient) FetchAllWorkspaces(ctx context.Context, userID string) ([]model.Workspace, error) {
	f.record("fetchAll:" + userID)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.remoteWorkspaces, nil
}

func (f *fakeClient) CreateWorkspace(ctx context.Context, ws model.Workspace) error {
	f.record("createWorkspace:" + ws.ID)
	f.mu.Lock()
	fail := f.failCreateWorkspace[ws.ID]
	if !fail {
		f.createdWorkspaces = append(f.createdWorkspaces, ws)
	}
	f.mu.Unlock()
	if fail {
		return errors.New("create rejected")
	}
	return nil
}

func (f *fakeClient) UpdateWorkspace(ctx context.Context, ws model.Workspace) error {
	f.record("updateWorkspace:" + ws.ID)
	f.mu.Lock()
	fail := f.failUpdateWorkspace[ws.ID]
	if !fail {
		f.updatedWorkspaces = append(f.updatedWorkspaces, ws)
	}
	f.mu.Unlock()
	if fail {
		return errors.New("update rejected")
	}
	return nil
}

func (f *fakeClient) DeleteWorkspace(ctx context.Context, id string) error {
	f.record("deleteWorkspace:" + id)
	return nil
}

func (f *fakeClient) CreateTable(ctx context.Context, workspaceID string, table model.TableItem) error {
	f.record("createTable:" + workspaceID + ":" + table.ID)
	return nil
}

func (f *fakeClient) UpdateTable(ctx context.Context, workspaceID string, table model.TableItem) error {
	f.record("updateTable:" + workspaceID + ":" + table.ID)
	return nil
}

func (f *fakeClient) DeleteTable(ctx context.Context, id string) error {
	f.record("deleteTable:" + id)
	return f.deleteTableErr
}

func (f *fakeClient) CreateNote(ctx context.Context, workspaceID string, note model.NoteItem) error {
	f.record("createNote:" + workspaceID + ":" + note.ID)
	return nil
}

func (f *fakeClient) UpdateNote(ctx context.Context, workspaceID string, note model.NoteItem) error {
	f.record("updateNote:" + workspaceID + ":" + note.ID)
	return nil
}

func (f *fakeClient) DeleteNote(ctx context.Context, id string) error {
	f.record("deleteNote:" + id)
	return nil
}

func (f *fakeClient) MoveTable(ctx context.Context, id, targetWorkspaceID string) error {
	f.record("moveTable:" + id + ":" + targetWorkspaceID)
	return nil
}

func (f *fakeClient) MoveNote(ctx context.Context, id, targetWorkspaceID string) error {
	f.record("moveNote:" + id + ":" + targetWorkspaceID)
	return nil
}

func (f *fakeClient) SetWorkspaceVisibility(ctx context.Context, workspaceID string, visibility model.Visibility) error {
	f.record("setVisibility:" + workspaceID + ":" + string(visibility))
	return nil
}

func (f *fakeClient) ValidateShareLink(ctx context.Context, token string) (remote.ShareLinkInfo, error) {
	f.record("validateShareLink:" + token)
	return remote.ShareLinkInfo{Valid: true, WorkspaceID: "ws-shared"}, nil
}

var _ remote.Client = (*fakeClient)(nil)

const testDebounce = 25 * time.Millisecond

// settle waits long enough for a debounced push to fire and finish.
func settle() {
	time.Sleep(8 * testDebounce)
}

func newTestEngine(t *testing.T, client *fakeClient) (*Engine, *workspace.Store, localstore.KV) {
	t.Helper()
	kv := localstore.NewMemoryKV()
	store := workspace.NewStore(workspace.Options{
		KV:      kv,
		Pending: localstore.NewPendingQueue(kv),
		Logger:  zerolog.Nop(),
	})
	engine := New(Options{
		Store:    store,
		Client:   client,
		KV:       kv,
		Logger:   zerolog.Nop(),
		Debounce: testDebounce,
	})
	return engine, store, kv
}

func remoteWorkspace(id, name, ownerID string) model.Workspace {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return model.Workspace{
		ID:        id,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		OwnerID:   ownerID,
		Tables:    []model.TableItem{},
		Notes:     []model.NoteItem{},
	}
}

func TestPullInstallsRemoteState(t *testing.T) {
	client := &fakeClient{remoteWorkspaces: []model.Workspace{
		remoteWorkspace("ws-r1", "Remote One", "user-1"),
		remoteWorkspace("ws-r2", "Remote Two", "user-1"),
	}}
	engine, store, _ := newTestEngine(t, client)
	defer engine.Stop()

	if err := engine.Start(context.Background(), "user-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	st := store.State()
	if len(st.Workspaces) != 2 || st.Workspaces[0].ID != "ws-r1" {
		t.Fatalf("remote state not installed: %+v", st.Workspaces)
	}
	if st.Selection.WorkspaceID != "ws-r1" {
		t.Fatalf("selection should move to the first remote workspace, got %q", st.Selection.WorkspaceID)
	}
	if store.CanUndo() {
		t.Fatalf("pull must not create an undo step")
	}
}

func TestPullPreservesLocalExpansion(t *testing.T) {
	client := &fakeClient{}
	engine, store, _ := newTestEngine(t, client)
	defer engine.Stop()

	localID := store.State().Workspaces[0].ID
	if err := store.ToggleWorkspaceExpanded(localID); err != nil {
		t.Fatalf("ToggleWorkspaceExpanded: %v", err)
	}
	client.remoteWorkspaces = []model.Workspace{
		remoteWorkspace(localID, "Renamed Remotely", "user-1"),
	}

	if err := engine.Start(context.Background(), "user-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ws := store.State().Workspace(localID)
	if ws.Name != "Renamed Remotely" {
		t.Fatalf("remote data should win, got %q", ws.Name)
	}
	if !ws.IsExpanded {
		t.Fatalf("local expansion flag should survive the pull")
	}
}

func TestPullReselectsWhenSelectedTableGone(t *testing.T) {
	client := &fakeClient{}
	engine, store, _ := newTestEngine(t, client)
	defer engine.Stop()

	localID := store.State().Workspaces[0].ID
	if _, err := store.CreateTable(localID, "Kept Locally"); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	remote := remoteWorkspace(localID, "Workspace", "user-1")
	remote.Tables = []model.TableItem{{ID: "t-remote", Name: "Remote Table"}}
	client.remoteWorkspaces = []model.Workspace{remote}

	if err := engine.Start(context.Background(), "user-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sel := store.State().Selection
	if sel.WorkspaceID != localID {
		t.Fatalf("selection should stay on the surviving workspace, got %q", sel.WorkspaceID)
	}
	if sel.TableID != "t-remote" {
		t.Fatalf("selection should move to the first remaining table, got %q", sel.TableID)
	}
	if sel.NoteID != "" {
		t.Fatalf("note selection should clear, got %q", sel.NoteID)
	}
}

func TestSelfTriggerSuppression(t *testing.T) {
	client := &fakeClient{remoteWorkspaces: []model.Workspace{
		remoteWorkspace("ws-r1", "Remote One", "user-1"),
	}}
	engine, _, _ := newTestEngine(t, client)
	defer engine.Stop()

	if err := engine.Start(context.Background(), "user-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	settle()
	if got := client.callsWithPrefix("updateWorkspace"); len(got) != 0 {
		t.Fatalf("pull must not trigger a push, saw %v", got)
	}
	if got := client.callsWithPrefix("createWorkspace"); len(got) != 0 {
		t.Fatalf("pull must not trigger creates, saw %v", got)
	}
}

func TestDebounceCoalescesRapidEdits(t *testing.T) {
	client := &fakeClient{remoteWorkspaces: []model.Workspace{
		remoteWorkspace("ws-r1", "Remote One", "user-1"),
	}}
	engine, store, _ := newTestEngine(t, client)
	defer engine.Stop()

	if err := engine.Start(context.Background(), "user-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("Edit %d", i+1)
		if err := store.RenameWorkspace("ws-r1", name); err != nil {
			t.Fatalf("RenameWorkspace: %v", err)
		}
	}
	settle()

	updates := client.callsWithPrefix("updateWorkspace:ws-r1")
	if len(updates) != 1 {
		t.Fatalf("expected exactly one coalesced push, saw %d updates", len(updates))
	}
	client.mu.Lock()
	pushed := client.updatedWorkspaces[len(client.updatedWorkspaces)-1]
	client.mu.Unlock()
	if pushed.Name != "Edit 5" {
		t.Fatalf("push must carry the latest state, got %q", pushed.Name)
	}
}

func TestEmptyRemoteSeedsFromLocal(t *testing.T) {
	client := &fakeClient{}
	engine, store, _ := newTestEngine(t, client)
	defer engine.Stop()

	wsID := store.State().Workspaces[0].ID
	table, err := store.CreateTable(wsID, "Tasks")
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	note, err := store.CreateNote(wsID, "Readme")
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}

	if err := engine.Start(context.Background(), "user-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	wantOrder := []string{
		"createWorkspace:" + wsID,
		"createTable:" + wsID + ":" + table.ID,
		"createNote:" + wsID + ":" + note.ID,
	}
	client.mu.Lock()
	var got []string
	for _, c := range client.calls {
		if strings.HasPrefix(c, "create") {
			got = append(got, c)
		}
	}
	client.mu.Unlock()
	if len(got) != len(wantOrder) {
		t.Fatalf("seed calls %v, want %v", got, wantOrder)
	}
	for i := range wantOrder {
		if got[i] != wantOrder[i] {
			t.Fatalf("seed order %v, want %v", got, wantOrder)
		}
	}
	if owner := store.State().Workspaces[0].OwnerID; owner != "user-1" {
		t.Fatalf("seeding should claim ownership, got owner %q", owner)
	}
}

func TestOwnershipGate(t *testing.T) {
	client := &fakeClient{remoteWorkspaces: []model.Workspace{
		remoteWorkspace("ws-mine", "Mine", "user-1"),
		remoteWorkspace("ws-theirs", "Theirs", "user-2"),
	}}
	engine, store, _ := newTestEngine(t, client)
	defer engine.Stop()

	if err := engine.Start(context.Background(), "user-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := store.RenameWorkspace("ws-mine", "Mine Edited"); err != nil {
		t.Fatalf("RenameWorkspace: %v", err)
	}
	if err := store.RenameWorkspace("ws-theirs", "Theirs Edited"); err != nil {
		t.Fatalf("RenameWorkspace: %v", err)
	}
	settle()

	if got := client.callsWithPrefix("updateWorkspace:ws-theirs"); len(got) != 0 {
		t.Fatalf("foreign workspace must never be updated, saw %v", got)
	}
	if got := client.callsWithPrefix("createWorkspace:ws-theirs"); len(got) != 0 {
		t.Fatalf("foreign workspace must never be created, saw %v", got)
	}
	if got := client.callsWithPrefix("updateWorkspace:ws-mine"); len(got) != 1 {
		t.Fatalf("owned sibling should still sync, saw %v", got)
	}
}

func TestUpdateFailureFallsBackToCreate(t *testing.T) {
	client := &fakeClient{
		remoteWorkspaces:    []model.Workspace{remoteWorkspace("ws-r1", "One", "user-1")},
		failUpdateWorkspace: map[string]bool{"ws-r1": true},
	}
	engine, store, _ := newTestEngine(t, client)
	defer engine.Stop()

	if err := engine.Start(context.Background(), "user-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := store.RenameWorkspace("ws-r1", "Edited"); err != nil {
		t.Fatalf("RenameWorkspace: %v", err)
	}
	settle()

	if got := client.callsWithPrefix("createWorkspace:ws-r1"); len(got) != 1 {
		t.Fatalf("failed update should fall back to create, saw %v", got)
	}
	if err := engine.SyncError(); err != "" {
		t.Fatalf("successful fallback should leave no sync error, got %q", err)
	}
}

func TestPartialFailureSetsSyncError(t *testing.T) {
	client := &fakeClient{
		remoteWorkspaces:    []model.Workspace{remoteWorkspace("ws-r1", "One", "user-1")},
		failUpdateWorkspace: map[string]bool{"ws-r1": true},
		failCreateWorkspace: map[string]bool{"ws-r1": true},
	}
	engine, store, _ := newTestEngine(t, client)
	defer engine.Stop()

	var reportedMu sync.Mutex
	var reported []string
	engine.OnSyncError(func(msg string) {
		reportedMu.Lock()
		reported = append(reported, msg)
		reportedMu.Unlock()
	})

	if err := engine.Start(context.Background(), "user-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := store.RenameWorkspace("ws-r1", "Edited"); err != nil {
		t.Fatalf("RenameWorkspace: %v", err)
	}
	settle()

	if engine.SyncError() == "" {
		t.Fatalf("partial failure should set the sync error")
	}

	client.mu.Lock()
	client.failUpdateWorkspace = nil
	client.mu.Unlock()
	if err := store.RenameWorkspace("ws-r1", "Edited Again"); err != nil {
		t.Fatalf("RenameWorkspace: %v", err)
	}
	settle()
	if err := engine.SyncError(); err != "" {
		t.Fatalf("recovered push should clear the sync error, got %q", err)
	}
	reportedMu.Lock()
	defer reportedMu.Unlock()
	if len(reported) < 2 || reported[len(reported)-1] != "" {
		t.Fatalf("error observable should end clear, got %v", reported)
	}
}

func TestPendingDeletionDrain(t *testing.T) {
	client := &fakeClient{
		remoteWorkspaces: []model.Workspace{remoteWorkspace("ws-r1", "One", "user-1")},
		deleteTableErr:   &remote.HTTPError{StatusCode: 404, Message: "already gone"},
	}
	engine, store, kv := newTestEngine(t, client)
	defer engine.Stop()

	queue := localstore.NewPendingQueue(kv)
	if err := queue.EnqueueDelete(model.EntityTable, "tbl-1", "ws-r1"); err != nil {
		t.Fatalf("EnqueueDelete: %v", err)
	}
	// A second enqueue of the same deletion must not double the work.
	if err := queue.EnqueueDelete(model.EntityTable, "tbl-1", "ws-r1"); err != nil {
		t.Fatalf("EnqueueDelete: %v", err)
	}

	if err := engine.Start(context.Background(), "user-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := store.RenameWorkspace("ws-r1", "Edited"); err != nil {
		t.Fatalf("RenameWorkspace: %v", err)
	}
	settle()

	if got := client.callsWithPrefix("deleteTable:tbl-1"); len(got) != 1 {
		t.Fatalf("expected exactly one remote delete, saw %v", got)
	}
	ops, err := queue.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ops) != 0 {
		t.Fatalf("queue should be drained even when the delete 404s, got %+v", ops)
	}
}

func TestShutdownPersistsPendingSync(t *testing.T) {
	client := &fakeClient{remoteWorkspaces: []model.Workspace{
		remoteWorkspace("ws-r1", "One", "user-1"),
	}}
	engine, store, kv := newTestEngine(t, client)

	if err := engine.Start(context.Background(), "user-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := store.RenameWorkspace("ws-r1", "Unflushed Edit"); err != nil {
		t.Fatalf("RenameWorkspace: %v", err)
	}
	// Teardown strikes while the debounce timer is still armed.
	engine.Shutdown()

	payload, ok := localstore.TakePendingSync(kv, "user-1")
	if !ok {
		t.Fatalf("pending sync payload should be persisted")
	}
	if len(payload.Workspaces) != 1 || payload.Workspaces[0].Name != "Unflushed Edit" {
		t.Fatalf("payload should carry the unflushed state, got %+v", payload.Workspaces)
	}
}

func TestStartReplaysPendingSyncForSameUser(t *testing.T) {
	client := &fakeClient{remoteWorkspaces: []model.Workspace{
		remoteWorkspace("ws-r1", "Stale Remote", "user-1"),
	}}
	engine, _, kv := newTestEngine(t, client)
	defer engine.Stop()

	saved := remoteWorkspace("ws-r1", "Saved Locally", "user-1")
	err := localstore.SavePendingSync(kv, localstore.PendingSync{
		UserID:     "user-1",
		SavedAt:    time.Now(),
		Workspaces: []model.Workspace{saved},
	})
	if err != nil {
		t.Fatalf("SavePendingSync: %v", err)
	}

	if err := engine.Start(context.Background(), "user-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	updates := client.callsWithPrefix("updateWorkspace:ws-r1")
	if len(updates) != 1 {
		t.Fatalf("payload should be replayed before the pull, saw %v", updates)
	}
	client.mu.Lock()
	replayed := client.updatedWorkspaces[0].Name
	client.mu.Unlock()
	if replayed != "Saved Locally" {
		t.Fatalf("replay pushed %q, want the saved payload", replayed)
	}
	if _, ok := localstore.TakePendingSync(kv, "user-1"); ok {
		t.Fatalf("payload must be consumed by the replay")
	}
}

func TestStartDiscardsPendingSyncForOtherUser(t *testing.T) {
	client := &fakeClient{remoteWorkspaces: []model.Workspace{
		remoteWorkspace("ws-r1", "Remote", "user-1"),
	}}
	engine, _, kv := newTestEngine(t, client)
	defer engine.Stop()

	err := localstore.SavePendingSync(kv, localstore.PendingSync{
		UserID:     "user-2",
		SavedAt:    time.Now(),
		Workspaces: []model.Workspace{remoteWorkspace("ws-x", "Foreign", "user-2")},
	})
	if err != nil {
		t.Fatalf("SavePendingSync: %v", err)
	}

	if err := engine.Start(context.Background(), "user-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := client.callsWithPrefix("updateWorkspace:ws-x"); len(got) != 0 {
		t.Fatalf("cross-account payload must never be replayed, saw %v", got)
	}
	if got := client.callsWithPrefix("createWorkspace:ws-x"); len(got) != 0 {
		t.Fatalf("cross-account payload must never be replayed, saw %v", got)
	}
	if _, ok := localstore.TakePendingSync(kv, "user-2"); ok {
		t.Fatalf("mismatched payload should be discarded, not kept")
	}
}

func TestMoveTableCallsRemoteImmediately(t *testing.T) {
	client := &fakeClient{remoteWorkspaces: []model.Workspace{
		remoteWorkspace("ws-a", "A", "user-1"),
		remoteWorkspace("ws-b", "B", "user-1"),
	}}
	engine, store, _ := newTestEngine(t, client)
	defer engine.Stop()

	if err := engine.Start(context.Background(), "user-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	table, err := store.CreateTable("ws-a", "Movable")
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	if err := engine.MoveTable(context.Background(), table.ID, "ws-b"); err != nil {
		t.Fatalf("MoveTable: %v", err)
	}
	// The remote move happens before any debounce window elapses.
	if got := client.callsWithPrefix("moveTable:" + table.ID); len(got) != 1 {
		t.Fatalf("expected an immediate remote move, saw %v", got)
	}
	st := store.State()
	if len(st.Workspace("ws-b").Tables) != 1 {
		t.Fatalf("table should live in the target workspace")
	}
}

func TestSetWorkspaceVisibilityRemoteFirst(t *testing.T) {
	client := &fakeClient{remoteWorkspaces: []model.Workspace{
		remoteWorkspace("ws-r1", "One", "user-1"),
	}}
	engine, store, _ := newTestEngine(t, client)
	defer engine.Stop()

	if err := engine.Start(context.Background(), "user-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := engine.SetWorkspaceVisibility(context.Background(), "ws-r1", model.VisibilityTeam); err != nil {
		t.Fatalf("SetWorkspaceVisibility: %v", err)
	}
	if got := client.callsWithPrefix("setVisibility:ws-r1"); len(got) != 1 {
		t.Fatalf("expected one remote visibility call, saw %v", got)
	}
	if got := store.State().Workspace("ws-r1").Visibility; got != model.VisibilityTeam {
		t.Fatalf("local visibility %q, want team", got)
	}
}

func TestPullFailureSurfacedNotFatal(t *testing.T) {
	client := &fakeClient{fetchErr: errors.New("network down")}
	engine, _, _ := newTestEngine(t, client)
	defer engine.Stop()

	if err := engine.Start(context.Background(), "user-1"); err == nil {
		t.Fatalf("Start should surface the pull failure")
	}
	if engine.SyncError() == "" {
		t.Fatalf("pull failure should set the sync error")
	}

	client.fetchErr = nil
	client.remoteWorkspaces = []model.Workspace{remoteWorkspace("ws-r1", "One", "user-1")}
	if err := engine.Pull(context.Background()); err != nil {
		t.Fatalf("retried pull should succeed, got %v", err)
	}
	if err := engine.SyncError(); err != "" {
		t.Fatalf("successful pull should clear the sync error, got %q", err)
	}
}
