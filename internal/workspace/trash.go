package workspace

import (
	"sort"
	"time"

	"github.com/gridnote/gridnote/internal/model"
)

// TrashItem is one archived table or note together with the workspace it
// still lives in.
type TrashItem struct {
	Entity        model.EntityKind
	EntityID      string
	Name          string
	WorkspaceID   string
	WorkspaceName string
	ArchivedAt    time.Time
}

// TrashItems aggregates every archived table and note across all
// workspaces, most recently archived first.
func (s *Store) TrashItems() []TrashItem {
	st := s.State()
	var items []TrashItem
	for wi := range st.Workspaces {
		ws := &st.Workspaces[wi]
		for ti := range ws.Tables {
			if !ws.Tables[ti].IsArchived {
				continue
			}
			items = append(items, TrashItem{
				Entity:        model.EntityTable,
				EntityID:      ws.Tables[ti].ID,
				Name:          ws.Tables[ti].Name,
				WorkspaceID:   ws.ID,
				WorkspaceName: ws.Name,
				ArchivedAt:    archivedAt(ws.Tables[ti].ArchivedAt),
			})
		}
		for ni := range ws.Notes {
			if !ws.Notes[ni].IsArchived {
				continue
			}
			items = append(items, TrashItem{
				Entity:        model.EntityNote,
				EntityID:      ws.Notes[ni].ID,
				Name:          ws.Notes[ni].Name,
				WorkspaceID:   ws.ID,
				WorkspaceName: ws.Name,
				ArchivedAt:    archivedAt(ws.Notes[ni].ArchivedAt),
			})
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ArchivedAt.After(items[j].ArchivedAt)
	})
	return items
}

// Restore clears the archive flag, putting the item back in its active list
// at its original position.
func (s *Store) Restore(entity model.EntityKind, entityID string) error {
	return s.mutate(true, func(st *model.State) error {
		for wi := range st.Workspaces {
			ws := &st.Workspaces[wi]
			switch entity {
			case model.EntityTable:
				if table := tableIn(ws, entityID); table != nil {
					table.IsArchived = false
					table.ArchivedAt = nil
					ws.UpdatedAt = s.now()
					return nil
				}
			case model.EntityNote:
				if note := noteIn(ws, entityID); note != nil {
					note.IsArchived = false
					note.ArchivedAt = nil
					ws.UpdatedAt = s.now()
					return nil
				}
			}
		}
		return ErrNotFound
	})
}

// PermanentlyDelete hard-removes an archived item and records a pending
// deletion so the remote copy is removed on the next drain.
func (s *Store) PermanentlyDelete(entity model.EntityKind, entityID string) error {
	var workspaceID string
	err := s.mutate(true, func(st *model.State) error {
		for wi := range st.Workspaces {
			ws := &st.Workspaces[wi]
			switch entity {
			case model.EntityTable:
				for ti := range ws.Tables {
					if ws.Tables[ti].ID == entityID {
						ws.Tables = append(ws.Tables[:ti], ws.Tables[ti+1:]...)
						renumberTables(ws)
						ws.UpdatedAt = s.now()
						workspaceID = ws.ID
						return nil
					}
				}
			case model.EntityNote:
				for ni := range ws.Notes {
					if ws.Notes[ni].ID == entityID {
						ws.Notes = append(ws.Notes[:ni], ws.Notes[ni+1:]...)
						renumberNotes(ws)
						ws.UpdatedAt = s.now()
						workspaceID = ws.ID
						return nil
					}
				}
			}
		}
		return ErrNotFound
	})
	if err != nil {
		return err
	}
	s.enqueueDelete(entity, entityID, workspaceID)
	return nil
}

// EmptyTrash hard-removes every archived table and note, recording one
// pending deletion per removed item.
func (s *Store) EmptyTrash() error {
	var removed []model.PendingOperation
	err := s.mutate(true, func(st *model.State) error {
		removed = removed[:0]
		anyChanged := false
		for wi := range st.Workspaces {
			ws := &st.Workspaces[wi]
			changed := false
			kept := ws.Tables[:0]
			for _, table := range ws.Tables {
				if table.IsArchived {
					removed = append(removed, model.PendingOperation{
						Entity: model.EntityTable, EntityID: table.ID, WorkspaceID: ws.ID,
					})
					changed = true
					continue
				}
				kept = append(kept, table)
			}
			ws.Tables = kept
			keptNotes := ws.Notes[:0]
			for _, note := range ws.Notes {
				if note.IsArchived {
					removed = append(removed, model.PendingOperation{
						Entity: model.EntityNote, EntityID: note.ID, WorkspaceID: ws.ID,
					})
					changed = true
					continue
				}
				keptNotes = append(keptNotes, note)
			}
			ws.Notes = keptNotes
			if changed {
				renumberTables(ws)
				renumberNotes(ws)
				ws.UpdatedAt = s.now()
				anyChanged = true
			}
		}
		if !anyChanged {
			return errNoop
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, op := range removed {
		s.enqueueDelete(op.Entity, op.EntityID, op.WorkspaceID)
	}
	return nil
}

func archivedAt(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
