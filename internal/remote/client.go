// Package remote wraps the remote workspace store's CRUD API. The sync
// engine depends only on the Client interface; every call is independently
// failable and nothing here is assumed transactional.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/gridnote/gridnote/internal/model"
)

var ErrNotFound = errors.New("not found")

// HTTPError carries the status and error body of a failed remote call.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == 404
}

// ShareLinkInfo is the remote store's answer to a share-link validation.
type ShareLinkInfo struct {
	Valid       bool   `json:"valid"`
	WorkspaceID string `json:"workspaceId"`
	AllowEdit   bool   `json:"allowEdit"`
}

// Client is the remote workspace store collaborator. Move calls are
// immediate (never debounced); everything else is driven by the sync
// engine's push/pull cycles.
type Client interface {
	FetchAllWorkspaces(ctx context.Context, userID string) ([]model.Workspace, error)

	CreateWorkspace(ctx context.Context, ws model.Workspace) error
	UpdateWorkspace(ctx context.Context, ws model.Workspace) error
	DeleteWorkspace(ctx context.Context, id string) error

	CreateTable(ctx context.Context, workspaceID string, table model.TableItem) error
	UpdateTable(ctx context.Context, workspaceID string, table model.TableItem) error
	DeleteTable(ctx context.Context, id string) error

	CreateNote(ctx context.Context, workspaceID string, note model.NoteItem) error
	UpdateNote(ctx context.Context, workspaceID string, note model.NoteItem) error
	DeleteNote(ctx context.Context, id string) error

	MoveTable(ctx context.Context, id, targetWorkspaceID string) error
	MoveNote(ctx context.Context, id, targetWorkspaceID string) error

	SetWorkspaceVisibility(ctx context.Context, workspaceID string, visibility model.Visibility) error
	ValidateShareLink(ctx context.Context, token string) (ShareLinkInfo, error)
}
