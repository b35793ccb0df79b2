package workspace

import (
	"sort"

	"github.com/gridnote/gridnote/internal/model"
)

// CreateNote appends an empty note to the workspace and selects it.
func (s *Store) CreateNote(workspaceID, name string) (model.NoteItem, error) {
	trimmed, ok := trimmedName(name)
	if !ok {
		return model.NoteItem{}, ErrInvalidInput
	}
	now := s.now()
	note := model.NoteItem{
		ID:        s.newID(),
		Name:      trimmed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.mutate(true, func(st *model.State) error {
		ws := st.Workspace(workspaceID)
		if ws == nil {
			return ErrNotFound
		}
		note.Position = len(ws.Notes)
		ws.Notes = append(ws.Notes, note)
		ws.UpdatedAt = now
		if st.Selection.WorkspaceID == workspaceID {
			st.Selection.NoteID = note.ID
			st.Selection.TableID = ""
		}
		return nil
	})
	if err != nil {
		return model.NoteItem{}, err
	}
	return note, nil
}

// DuplicateNote inserts a copy immediately after the original with a fresh
// id. withContent false keeps the name and settings but drops the body.
func (s *Store) DuplicateNote(workspaceID, noteID string, withContent bool) (model.NoteItem, error) {
	var copied model.NoteItem
	err := s.mutate(true, func(st *model.State) error {
		ws := st.Workspace(workspaceID)
		if ws == nil {
			return ErrNotFound
		}
		for i := range ws.Notes {
			if ws.Notes[i].ID != noteID {
				continue
			}
			now := s.now()
			copied = ws.Notes[i]
			copied.ID = s.newID()
			copied.Name = copied.Name + " (copy)"
			copied.CreatedAt = now
			copied.UpdatedAt = now
			copied.IsArchived = false
			copied.ArchivedAt = nil
			if !withContent {
				copied.Content = ""
			}
			ws.Notes = append(ws.Notes, model.NoteItem{})
			copy(ws.Notes[i+2:], ws.Notes[i+1:])
			ws.Notes[i+1] = copied
			renumberNotes(ws)
			ws.UpdatedAt = now
			return nil
		}
		return ErrNotFound
	})
	if err != nil {
		return model.NoteItem{}, err
	}
	return copied, nil
}

// ArchiveNote soft-deletes a note.
func (s *Store) ArchiveNote(workspaceID, noteID string) error {
	return s.mutate(true, func(st *model.State) error {
		ws := st.Workspace(workspaceID)
		note := noteIn(ws, noteID)
		if note == nil {
			return ErrNotFound
		}
		now := s.now()
		note.IsArchived = true
		note.ArchivedAt = &now
		ws.UpdatedAt = now
		if st.Selection.NoteID == noteID {
			reselectContent(st, ws)
		}
		return nil
	})
}

// RenameNote sets a new name. A blank name leaves the note untouched.
func (s *Store) RenameNote(workspaceID, noteID, name string) error {
	trimmed, ok := trimmedName(name)
	if !ok {
		return nil
	}
	return s.mutate(true, func(st *model.State) error {
		ws := st.Workspace(workspaceID)
		note := noteIn(ws, noteID)
		if note == nil {
			return ErrNotFound
		}
		if note.Name == trimmed {
			return errNoop
		}
		note.Name = trimmed
		ws.UpdatedAt = s.now()
		return nil
	})
}

// SetNoteContent replaces the note body and touches the timestamp.
func (s *Store) SetNoteContent(workspaceID, noteID, content string) error {
	return s.mutate(true, func(st *model.State) error {
		ws := st.Workspace(workspaceID)
		note := noteIn(ws, noteID)
		if note == nil {
			return ErrNotFound
		}
		now := s.now()
		note.Content = content
		note.UpdatedAt = now
		ws.UpdatedAt = now
		return nil
	})
}

// PatchNoteSettings overwrites the per-note display toggles.
func (s *Store) PatchNoteSettings(workspaceID, noteID string, settings model.NoteSettings) error {
	return s.mutate(true, func(st *model.State) error {
		ws := st.Workspace(workspaceID)
		note := noteIn(ws, noteID)
		if note == nil {
			return ErrNotFound
		}
		note.Settings = settings
		ws.UpdatedAt = s.now()
		return nil
	})
}

// ReorderNotes applies the given ordering within a workspace. Unknown ids
// keep their relative order after the known ones.
func (s *Store) ReorderNotes(workspaceID string, orderedIDs []string) error {
	position := make(map[string]int, len(orderedIDs))
	for i, id := range orderedIDs {
		position[id] = i
	}
	return s.mutate(true, func(st *model.State) error {
		ws := st.Workspace(workspaceID)
		if ws == nil {
			return ErrNotFound
		}
		sort.SliceStable(ws.Notes, func(i, j int) bool {
			pi, iok := position[ws.Notes[i].ID]
			pj, jok := position[ws.Notes[j].ID]
			if iok != jok {
				return iok
			}
			if !iok {
				return false
			}
			return pi < pj
		})
		renumberNotes(ws)
		ws.UpdatedAt = s.now()
		return nil
	})
}

// MoveNote removes a note from its workspace and appends it to the target.
// Moving to the same workspace is a no-op. When the moved note is the
// current selection the current-workspace pointer follows it.
func (s *Store) MoveNote(noteID, targetWorkspaceID string) error {
	return s.mutate(true, func(st *model.State) error {
		target := st.Workspace(targetWorkspaceID)
		if target == nil {
			return ErrNotFound
		}
		for wi := range st.Workspaces {
			source := &st.Workspaces[wi]
			for ni := range source.Notes {
				if source.Notes[ni].ID != noteID {
					continue
				}
				if source.ID == targetWorkspaceID {
					return errNoop
				}
				moved := source.Notes[ni]
				source.Notes = append(source.Notes[:ni], source.Notes[ni+1:]...)
				renumberNotes(source)
				moved.Position = len(target.Notes)
				target.Notes = append(target.Notes, moved)
				now := s.now()
				source.UpdatedAt = now
				target.UpdatedAt = now
				if st.Selection.NoteID == noteID {
					st.Selection.WorkspaceID = targetWorkspaceID
					st.Selection.ProfileID = target.ProfileID
				}
				return nil
			}
		}
		return ErrNotFound
	})
}

func noteIn(ws *model.Workspace, noteID string) *model.NoteItem {
	if ws == nil {
		return nil
	}
	for i := range ws.Notes {
		if ws.Notes[i].ID == noteID {
			return &ws.Notes[i]
		}
	}
	return nil
}

func renumberNotes(ws *model.Workspace) {
	for i := range ws.Notes {
		ws.Notes[i].Position = i
	}
}
