package workspace

import (
	"sort"

	"github.com/gridnote/gridnote/internal/model"
)

// CreateWorkspace appends a workspace to the current profile and selects it.
func (s *Store) CreateWorkspace(name string) (model.Workspace, error) {
	trimmed, ok := trimmedName(name)
	if !ok {
		return model.Workspace{}, ErrInvalidInput
	}
	now := s.now()
	ws := model.Workspace{
		ID:        s.newID(),
		Name:      trimmed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.mutate(true, func(st *model.State) error {
		ws.ProfileID = st.Selection.ProfileID
		st.Workspaces = append(st.Workspaces, ws)
		st.Selection.WorkspaceID = ws.ID
		st.Selection.TableID = ""
		st.Selection.NoteID = ""
		return nil
	})
	return ws, err
}

// RenameWorkspace sets a workspace's name; empty names are a silent no-op.
func (s *Store) RenameWorkspace(id, name string) error {
	trimmed, ok := trimmedName(name)
	if !ok {
		return nil
	}
	return s.mutate(true, func(st *model.State) error {
		ws := st.Workspace(id)
		if ws == nil {
			return ErrNotFound
		}
		ws.Name = trimmed
		ws.UpdatedAt = s.now()
		return nil
	})
}

// DeleteWorkspace hard-removes a workspace and queues the remote deletion.
// The last workspace of its profile cannot be deleted; deleting the current
// workspace reassigns the selection to the first remaining one.
func (s *Store) DeleteWorkspace(id string) error {
	err := s.mutate(true, func(st *model.State) error {
		ws := st.Workspace(id)
		if ws == nil {
			return ErrNotFound
		}
		owned := st.ProfileWorkspaces(ws.ProfileID)
		if len(owned) <= 1 {
			return ErrLastWorkspace
		}
		profileID := ws.ProfileID
		kept := st.Workspaces[:0]
		for _, w := range st.Workspaces {
			if w.ID != id {
				kept = append(kept, w)
			}
		}
		st.Workspaces = kept

		if st.Selection.WorkspaceID == id {
			remaining := st.ProfileWorkspaces(profileID)
			st.Selection.WorkspaceID = remaining[0].ID
			reselectContent(st, remaining[0])
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.enqueueDelete(model.EntityWorkspace, id, "")
	return nil
}

// ToggleWorkspaceExpanded flips the UI-only expansion flag; not historized.
func (s *Store) ToggleWorkspaceExpanded(id string) error {
	return s.mutate(false, func(st *model.State) error {
		ws := st.Workspace(id)
		if ws == nil {
			return ErrNotFound
		}
		ws.IsExpanded = !ws.IsExpanded
		return nil
	})
}

// ReorderWorkspaces reorders the current profile's workspaces to match
// orderedIDs. IDs missing from the list keep their relative order at the
// end; unknown ids are ignored.
func (s *Store) ReorderWorkspaces(orderedIDs []string) error {
	return s.mutate(true, func(st *model.State) error {
		profileID := st.Selection.ProfileID
		position := make(map[string]int, len(orderedIDs))
		for i, id := range orderedIDs {
			position[id] = i
		}
		var owned []model.Workspace
		var others []model.Workspace
		for _, ws := range st.Workspaces {
			if ws.ProfileID == profileID {
				owned = append(owned, ws)
			} else {
				others = append(others, ws)
			}
		}
		sort.SliceStable(owned, func(i, j int) bool {
			ai, aok := position[owned[i].ID]
			bi, bok := position[owned[j].ID]
			switch {
			case aok && bok:
				return ai < bi
			case aok:
				return true
			default:
				return false
			}
		})
		st.Workspaces = append(others, owned...)
		return nil
	})
}

// SetWorkspaceVisibility records a confirmed remote visibility change.
// Callers must only invoke this after the remote call succeeded.
func (s *Store) SetWorkspaceVisibility(id string, visibility model.Visibility) error {
	return s.mutate(false, func(st *model.State) error {
		ws := st.Workspace(id)
		if ws == nil {
			return ErrNotFound
		}
		ws.Visibility = visibility
		ws.UpdatedAt = s.now()
		return nil
	})
}

// ClaimOwnership stamps the owner id on every workspace that has none.
// Used when the first push for an authenticated user claims local-only
// workspaces.
func (s *Store) ClaimOwnership(userID string) error {
	if userID == "" {
		return ErrInvalidInput
	}
	return s.mutate(false, func(st *model.State) error {
		changed := false
		for i := range st.Workspaces {
			if st.Workspaces[i].OwnerID == "" {
				st.Workspaces[i].OwnerID = userID
				st.Workspaces[i].Synced = true
				changed = true
			}
		}
		if !changed {
			return errNoop
		}
		return nil
	})
}
