package workspace

import "github.com/gridnote/gridnote/internal/model"

// SelectWorkspace makes a workspace current, switching the profile pointer
// along with it and re-deriving the content selection.
func (s *Store) SelectWorkspace(id string) error {
	return s.mutate(false, func(st *model.State) error {
		ws := st.Workspace(id)
		if ws == nil {
			return ErrNotFound
		}
		if st.Selection.WorkspaceID == id {
			return errNoop
		}
		st.Selection.ProfileID = ws.ProfileID
		st.Selection.WorkspaceID = id
		reselectContent(st, ws)
		return nil
	})
}

// SelectTable points the content selection at a table in the current
// workspace.
func (s *Store) SelectTable(tableID string) error {
	return s.mutate(false, func(st *model.State) error {
		ws := st.Workspace(st.Selection.WorkspaceID)
		if tableIn(ws, tableID) == nil {
			return ErrNotFound
		}
		st.Selection.TableID = tableID
		st.Selection.NoteID = ""
		return nil
	})
}

// SelectNote points the content selection at a note in the current
// workspace.
func (s *Store) SelectNote(noteID string) error {
	return s.mutate(false, func(st *model.State) error {
		ws := st.Workspace(st.Selection.WorkspaceID)
		if noteIn(ws, noteID) == nil {
			return ErrNotFound
		}
		st.Selection.NoteID = noteID
		st.Selection.TableID = ""
		return nil
	})
}

// ClearMultiSelect empties the multi-select set.
func (s *Store) ClearMultiSelect() error {
	return s.mutate(false, func(st *model.State) error {
		if len(st.Selection.MultiSelect) == 0 {
			return errNoop
		}
		st.Selection.MultiSelect = nil
		return nil
	})
}
