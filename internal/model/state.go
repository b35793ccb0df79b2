package model

import (
	"encoding/json"
	"time"
)

// Selection holds the current-selection pointers. Selection is never
// recorded in undo history and never pushed to the remote store.
type Selection struct {
	ProfileID   string   `json:"profileId,omitempty"`
	WorkspaceID string   `json:"workspaceId,omitempty"`
	TableID     string   `json:"tableId,omitempty"`
	NoteID      string   `json:"noteId,omitempty"`
	MultiSelect []string `json:"multiSelect,omitempty"`
}

// State is the aggregate in-memory model: profile workspaces, workspaces and
// the selection pointers. The workspace store owns the live value; everything
// else sees snapshots.
type State struct {
	Profiles   []ProfileWorkspace `json:"profiles"`
	Workspaces []Workspace        `json:"workspaces"`
	Selection  Selection          `json:"selection"`
}

// Clone returns a deep copy via a JSON round trip. History snapshots and
// sync reads must never share mutable structure with the live tree.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		// State is marshalable by construction.
		panic(err)
	}
	var clone State
	if err := json.Unmarshal(data, &clone); err != nil {
		panic(err)
	}
	return &clone
}

// NewDefaultState seeds the minimal valid state: one default profile holding
// one empty workspace, both selected.
func NewDefaultState(now time.Time) *State {
	profile := ProfileWorkspace{
		ID:        NewID(),
		Name:      "Personal",
		CreatedAt: now,
		IsDefault: true,
	}
	ws := Workspace{
		ID:        NewID(),
		Name:      "My Workspace",
		CreatedAt: now,
		UpdatedAt: now,
		ProfileID: profile.ID,
	}
	return &State{
		Profiles:   []ProfileWorkspace{profile},
		Workspaces: []Workspace{ws},
		Selection: Selection{
			ProfileID:   profile.ID,
			WorkspaceID: ws.ID,
		},
	}
}

// Normalize enforces the structural invariants: at least one profile, every
// workspace assigned to an existing profile (unassigned ones go to the
// current or default profile), at least one workspace in the current
// profile, and selection pointers that reference existing entities.
func (s *State) Normalize(now time.Time) {
	if len(s.Profiles) == 0 {
		s.Profiles = []ProfileWorkspace{{
			ID:        NewID(),
			Name:      "Personal",
			CreatedAt: now,
			IsDefault: true,
		}}
	}
	if s.Profile(s.Selection.ProfileID) == nil {
		s.Selection.ProfileID = s.defaultProfileID()
	}

	for i := range s.Workspaces {
		if s.Profile(s.Workspaces[i].ProfileID) == nil {
			s.Workspaces[i].ProfileID = s.Selection.ProfileID
		}
	}

	if len(s.ProfileWorkspaces(s.Selection.ProfileID)) == 0 {
		s.Workspaces = append(s.Workspaces, Workspace{
			ID:        NewID(),
			Name:      "My Workspace",
			CreatedAt: now,
			UpdatedAt: now,
			ProfileID: s.Selection.ProfileID,
		})
	}

	if s.Workspace(s.Selection.WorkspaceID) == nil ||
		s.Workspace(s.Selection.WorkspaceID).ProfileID != s.Selection.ProfileID {
		owned := s.ProfileWorkspaces(s.Selection.ProfileID)
		s.Selection.WorkspaceID = owned[0].ID
		s.Selection.TableID = ""
		s.Selection.NoteID = ""
	}
	current := s.Workspace(s.Selection.WorkspaceID)
	if s.Selection.TableID != "" && findTable(current, s.Selection.TableID) == nil {
		s.Selection.TableID = ""
	}
	if s.Selection.NoteID != "" && findNote(current, s.Selection.NoteID) == nil {
		s.Selection.NoteID = ""
	}
}

// Profile returns the profile with the given id, or nil.
func (s *State) Profile(id string) *ProfileWorkspace {
	if id == "" {
		return nil
	}
	for i := range s.Profiles {
		if s.Profiles[i].ID == id {
			return &s.Profiles[i]
		}
	}
	return nil
}

// Workspace returns the workspace with the given id, or nil.
func (s *State) Workspace(id string) *Workspace {
	if id == "" {
		return nil
	}
	for i := range s.Workspaces {
		if s.Workspaces[i].ID == id {
			return &s.Workspaces[i]
		}
	}
	return nil
}

// ProfileWorkspaces returns the workspaces owned by a profile, in order.
func (s *State) ProfileWorkspaces(profileID string) []*Workspace {
	var owned []*Workspace
	for i := range s.Workspaces {
		if s.Workspaces[i].ProfileID == profileID {
			owned = append(owned, &s.Workspaces[i])
		}
	}
	return owned
}

func (s *State) defaultProfileID() string {
	for i := range s.Profiles {
		if s.Profiles[i].IsDefault {
			return s.Profiles[i].ID
		}
	}
	return s.Profiles[0].ID
}

func findTable(ws *Workspace, id string) *TableItem {
	if ws == nil {
		return nil
	}
	for i := range ws.Tables {
		if ws.Tables[i].ID == id {
			return &ws.Tables[i]
		}
	}
	return nil
}

func findNote(ws *Workspace, id string) *NoteItem {
	if ws == nil {
		return nil
	}
	for i := range ws.Notes {
		if ws.Notes[i].ID == id {
			return &ws.Notes[i]
		}
	}
	return nil
}
