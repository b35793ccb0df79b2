package model

import (
	"time"

	"github.com/google/uuid"
)

// Visibility controls who can see a synced workspace on the remote store.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityTeam    Visibility = "team"
	VisibilityPublic  Visibility = "public"
)

// ColumnType selects the cell editor for a column. The sync engine treats
// all types identically.
type ColumnType string

const (
	ColumnText     ColumnType = "text"
	ColumnNumber   ColumnType = "number"
	ColumnReminder ColumnType = "reminder"
	ColumnEmail    ColumnType = "email"
	ColumnPassword ColumnType = "password"
	ColumnComment  ColumnType = "comment"
	ColumnFile     ColumnType = "file"
)

// EntityKind identifies the remote entity a pending operation targets.
type EntityKind string

const (
	EntityWorkspace EntityKind = "workspace"
	EntityTable     EntityKind = "table"
	EntityNote      EntityKind = "note"
)

// PendingOpDelete is the only pending-operation kind currently recorded.
const PendingOpDelete = "delete"

// ProfileWorkspace is a top-level grouping of workspaces. Exactly one must
// exist at all times.
type ProfileWorkspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	IsDefault bool      `json:"isDefault,omitempty"`
}

// Workspace is the unit of sharing and sync: a named, ordered collection of
// tables and notes. IsExpanded is local UI state and survives a pull even
// though the remote copy otherwise wins.
type Workspace struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
	Tables     []TableItem `json:"tables"`
	Notes      []NoteItem  `json:"notes"`
	IsExpanded bool        `json:"isExpanded,omitempty"`
	ProfileID  string      `json:"profileId,omitempty"`
	OwnerID    string      `json:"ownerId,omitempty"`
	Visibility Visibility  `json:"visibility,omitempty"`
	Synced     bool        `json:"synced,omitempty"`
}

type Column struct {
	ID    string     `json:"id"`
	Title string     `json:"title"`
	Type  ColumnType `json:"type"`
}

// Row is a node in a table's row forest. Cells maps column id to the cell's
// string value; Children may nest to arbitrary depth. Row ids are unique
// within a table across the whole tree.
type Row struct {
	ID         string            `json:"id"`
	Cells      map[string]string `json:"cells,omitempty"`
	CellColors map[string]string `json:"cellColors,omitempty"`
	Color      string            `json:"color,omitempty"`
	IsExpanded bool              `json:"isExpanded,omitempty"`
	Children   []Row             `json:"children,omitempty"`
}

// Appearance holds per-table display overrides.
type Appearance struct {
	Compact   bool `json:"compact,omitempty"`
	GridLines bool `json:"gridLines,omitempty"`
	Zebra     bool `json:"zebra,omitempty"`
}

type TableItem struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Columns    []Column    `json:"columns"`
	Rows       []Row       `json:"rows"`
	Appearance *Appearance `json:"appearance,omitempty"`
	Position   int         `json:"position"`
	IsArchived bool        `json:"isArchived,omitempty"`
	ArchivedAt *time.Time  `json:"archivedAt,omitempty"`
}

// NoteSettings are per-note display toggles.
type NoteSettings struct {
	Monospace  bool `json:"monospace,omitempty"`
	WordWrap   bool `json:"wordWrap,omitempty"`
	Spellcheck bool `json:"spellcheck,omitempty"`
}

type NoteItem struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Content    string       `json:"content"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
	Settings   NoteSettings `json:"settings"`
	Position   int          `json:"position"`
	IsArchived bool         `json:"isArchived,omitempty"`
	ArchivedAt *time.Time   `json:"archivedAt,omitempty"`
}

// PendingOperation records a deletion whose remote effect has not been
// confirmed yet. It lives in durable local storage independent of the main
// state tree and is removed only after the drain cycle has attempted the
// remote delete.
type PendingOperation struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Entity      EntityKind `json:"entity"`
	EntityID    string     `json:"entityId"`
	WorkspaceID string     `json:"workspaceId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// NewID returns a fresh entity id.
func NewID() string {
	return uuid.NewString()
}
