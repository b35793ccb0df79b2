package workspace

import "github.com/gridnote/gridnote/internal/model"

// CreateProfile adds a profile workspace and switches to it with a fresh
// empty workspace.
func (s *Store) CreateProfile(name string) (model.ProfileWorkspace, error) {
	trimmed, ok := trimmedName(name)
	if !ok {
		return model.ProfileWorkspace{}, ErrInvalidInput
	}
	profile := model.ProfileWorkspace{
		ID:        s.newID(),
		Name:      trimmed,
		CreatedAt: s.now(),
	}
	err := s.mutate(true, func(st *model.State) error {
		st.Profiles = append(st.Profiles, profile)
		st.Selection.ProfileID = profile.ID
		st.Selection.WorkspaceID = ""
		st.Selection.TableID = ""
		st.Selection.NoteID = ""
		return nil
	})
	return profile, err
}

// RenameProfile sets a profile's name. An empty or whitespace-only name is
// a silent no-op.
func (s *Store) RenameProfile(id, name string) error {
	trimmed, ok := trimmedName(name)
	if !ok {
		return nil
	}
	return s.mutate(true, func(st *model.State) error {
		profile := st.Profile(id)
		if profile == nil {
			return ErrNotFound
		}
		profile.Name = trimmed
		return nil
	})
}

// DeleteProfile removes a profile workspace and every workspace it owns.
// The last remaining profile cannot be deleted.
func (s *Store) DeleteProfile(id string) error {
	var removed []model.Workspace
	err := s.mutate(true, func(st *model.State) error {
		if st.Profile(id) == nil {
			return ErrNotFound
		}
		if len(st.Profiles) <= 1 {
			return ErrLastProfile
		}
		profiles := st.Profiles[:0]
		for _, p := range st.Profiles {
			if p.ID != id {
				profiles = append(profiles, p)
			}
		}
		st.Profiles = profiles

		kept := make([]model.Workspace, 0, len(st.Workspaces))
		for _, ws := range st.Workspaces {
			if ws.ProfileID == id {
				removed = append(removed, ws)
				continue
			}
			kept = append(kept, ws)
		}
		st.Workspaces = kept

		if st.Selection.ProfileID == id {
			st.Selection.ProfileID = st.Profiles[0].ID
			st.Selection.WorkspaceID = ""
			st.Selection.TableID = ""
			st.Selection.NoteID = ""
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, ws := range removed {
		s.enqueueDelete(model.EntityWorkspace, ws.ID, "")
	}
	return nil
}

// SwitchProfile makes a profile current and re-derives the selection from
// its first workspace. A profile with no workspaces gets an empty default
// one.
func (s *Store) SwitchProfile(id string) error {
	// Switching is a selection change; the default workspace a bare profile
	// receives is created by normalization inside the same update.
	return s.mutate(false, func(st *model.State) error {
		if st.Profile(id) == nil {
			return ErrNotFound
		}
		if st.Selection.ProfileID == id {
			return errNoop
		}
		st.Selection.ProfileID = id
		st.Selection.WorkspaceID = ""
		st.Selection.TableID = ""
		st.Selection.NoteID = ""
		owned := st.ProfileWorkspaces(id)
		if len(owned) > 0 {
			st.Selection.WorkspaceID = owned[0].ID
			reselectContent(st, owned[0])
		}
		return nil
	})
}
