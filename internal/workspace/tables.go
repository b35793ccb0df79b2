package workspace

import (
	"sort"

	"github.com/gridnote/gridnote/internal/model"
	"github.com/gridnote/gridnote/internal/rowtree"
)

// CreateTable appends an empty table to the workspace and selects it.
func (s *Store) CreateTable(workspaceID, name string) (model.TableItem, error) {
	trimmed, ok := trimmedName(name)
	if !ok {
		return model.TableItem{}, ErrInvalidInput
	}
	table := model.TableItem{
		ID:   s.newID(),
		Name: trimmed,
		Columns: []model.Column{
			{ID: s.newID(), Title: "Name", Type: model.ColumnText},
		},
	}
	err := s.mutate(true, func(st *model.State) error {
		ws := st.Workspace(workspaceID)
		if ws == nil {
			return ErrNotFound
		}
		table.Position = len(ws.Tables)
		ws.Tables = append(ws.Tables, table)
		ws.UpdatedAt = s.now()
		if st.Selection.WorkspaceID == workspaceID {
			st.Selection.TableID = table.ID
			st.Selection.NoteID = ""
		}
		return nil
	})
	if err != nil {
		return model.TableItem{}, err
	}
	return table, nil
}

// DuplicateTable inserts a copy immediately after the original. Every id in
// the copy is fresh and cell keys follow the new column ids; withContent
// false keeps columns and row structure but drops cell values and colors.
func (s *Store) DuplicateTable(workspaceID, tableID string, withContent bool) (model.TableItem, error) {
	var copied model.TableItem
	err := s.mutate(true, func(st *model.State) error {
		ws := st.Workspace(workspaceID)
		if ws == nil {
			return ErrNotFound
		}
		for i := range ws.Tables {
			if ws.Tables[i].ID != tableID {
				continue
			}
			copied = model.DuplicateTable(ws.Tables[i], withContent)
			ws.Tables = append(ws.Tables, model.TableItem{})
			copy(ws.Tables[i+2:], ws.Tables[i+1:])
			ws.Tables[i+1] = copied
			renumberTables(ws)
			ws.UpdatedAt = s.now()
			return nil
		}
		return ErrNotFound
	})
	if err != nil {
		return model.TableItem{}, err
	}
	return copied, nil
}

// ArchiveTable soft-deletes a table. It disappears from the active list but
// stays in the workspace until restored or permanently removed from trash.
func (s *Store) ArchiveTable(workspaceID, tableID string) error {
	return s.mutate(true, func(st *model.State) error {
		ws := st.Workspace(workspaceID)
		table := tableIn(ws, tableID)
		if table == nil {
			return ErrNotFound
		}
		now := s.now()
		table.IsArchived = true
		table.ArchivedAt = &now
		ws.UpdatedAt = now
		if st.Selection.TableID == tableID {
			reselectContent(st, ws)
		}
		return nil
	})
}

// RenameTable sets a new name. A blank name leaves the table untouched.
func (s *Store) RenameTable(workspaceID, tableID, name string) error {
	trimmed, ok := trimmedName(name)
	if !ok {
		return nil
	}
	return s.mutate(true, func(st *model.State) error {
		ws := st.Workspace(workspaceID)
		table := tableIn(ws, tableID)
		if table == nil {
			return ErrNotFound
		}
		if table.Name == trimmed {
			return errNoop
		}
		table.Name = trimmed
		ws.UpdatedAt = s.now()
		return nil
	})
}

// ReorderTables applies the given ordering within a workspace. Unknown ids
// keep their relative order after the known ones.
func (s *Store) ReorderTables(workspaceID string, orderedIDs []string) error {
	position := make(map[string]int, len(orderedIDs))
	for i, id := range orderedIDs {
		position[id] = i
	}
	return s.mutate(true, func(st *model.State) error {
		ws := st.Workspace(workspaceID)
		if ws == nil {
			return ErrNotFound
		}
		sort.SliceStable(ws.Tables, func(i, j int) bool {
			pi, iok := position[ws.Tables[i].ID]
			pj, jok := position[ws.Tables[j].ID]
			if iok != jok {
				return iok
			}
			if !iok {
				return false
			}
			return pi < pj
		})
		renumberTables(ws)
		ws.UpdatedAt = s.now()
		return nil
	})
}

// MoveTable removes a table from its workspace and appends it to the target.
// Moving to the same workspace is a no-op. When the moved table is the
// current selection the current-workspace pointer follows it.
func (s *Store) MoveTable(tableID, targetWorkspaceID string) error {
	return s.mutate(true, func(st *model.State) error {
		target := st.Workspace(targetWorkspaceID)
		if target == nil {
			return ErrNotFound
		}
		for wi := range st.Workspaces {
			source := &st.Workspaces[wi]
			for ti := range source.Tables {
				if source.Tables[ti].ID != tableID {
					continue
				}
				if source.ID == targetWorkspaceID {
					return errNoop
				}
				moved := source.Tables[ti]
				source.Tables = append(source.Tables[:ti], source.Tables[ti+1:]...)
				renumberTables(source)
				moved.Position = len(target.Tables)
				target.Tables = append(target.Tables, moved)
				now := s.now()
				source.UpdatedAt = now
				target.UpdatedAt = now
				if st.Selection.TableID == tableID {
					st.Selection.WorkspaceID = targetWorkspaceID
					st.Selection.ProfileID = target.ProfileID
				}
				return nil
			}
		}
		return ErrNotFound
	})
}

// ToggleTableSelect flips a table's membership in the multi-select set used
// by the all-workspaces view. Pure selection state, not recorded in history.
func (s *Store) ToggleTableSelect(tableID string) error {
	return s.mutate(false, func(st *model.State) error {
		for i, id := range st.Selection.MultiSelect {
			if id == tableID {
				st.Selection.MultiSelect = append(
					st.Selection.MultiSelect[:i], st.Selection.MultiSelect[i+1:]...)
				return nil
			}
		}
		st.Selection.MultiSelect = append(st.Selection.MultiSelect, tableID)
		return nil
	})
}

// SetTableContent replaces a table's columns and rows in one step, the bulk
// structural update used after imports and large edits.
func (s *Store) SetTableContent(workspaceID, tableID string, columns []model.Column, rows []model.Row) error {
	return s.mutate(true, func(st *model.State) error {
		ws := st.Workspace(workspaceID)
		table := tableIn(ws, tableID)
		if table == nil {
			return ErrNotFound
		}
		table.Columns = columns
		table.Rows = model.CloneRows(rows)
		ws.UpdatedAt = s.now()
		return nil
	})
}

// SetTableColumns replaces only the column definitions.
func (s *Store) SetTableColumns(workspaceID, tableID string, columns []model.Column) error {
	return s.mutate(true, func(st *model.State) error {
		ws := st.Workspace(workspaceID)
		table := tableIn(ws, tableID)
		if table == nil {
			return ErrNotFound
		}
		table.Columns = columns
		ws.UpdatedAt = s.now()
		return nil
	})
}

// PatchTableAppearance overwrites the per-table display overrides.
func (s *Store) PatchTableAppearance(workspaceID, tableID string, appearance model.Appearance) error {
	return s.mutate(true, func(st *model.State) error {
		ws := st.Workspace(workspaceID)
		table := tableIn(ws, tableID)
		if table == nil {
			return ErrNotFound
		}
		table.Appearance = &appearance
		ws.UpdatedAt = s.now()
		return nil
	})
}

// SetCellValue writes one cell, located anywhere in the row tree.
func (s *Store) SetCellValue(workspaceID, tableID, rowID, columnID, value string) error {
	return s.updateRow(workspaceID, tableID, rowID, func(row model.Row) model.Row {
		if row.Cells == nil {
			row.Cells = map[string]string{}
		}
		row.Cells[columnID] = value
		return row
	})
}

// SetCellColor writes one cell's color override.
func (s *Store) SetCellColor(workspaceID, tableID, rowID, columnID, color string) error {
	return s.updateRow(workspaceID, tableID, rowID, func(row model.Row) model.Row {
		if row.CellColors == nil {
			row.CellColors = map[string]string{}
		}
		if color == "" {
			delete(row.CellColors, columnID)
		} else {
			row.CellColors[columnID] = color
		}
		return row
	})
}

// SetRowColor sets the whole-row color.
func (s *Store) SetRowColor(workspaceID, tableID, rowID, color string) error {
	return s.updateRow(workspaceID, tableID, rowID, func(row model.Row) model.Row {
		row.Color = color
		return row
	})
}

// ToggleRowExpanded flips a row's expansion flag. Display state only, so it
// stays out of undo history.
func (s *Store) ToggleRowExpanded(workspaceID, tableID, rowID string) error {
	return s.mutateRow(false, workspaceID, tableID, rowID, func(row model.Row) model.Row {
		row.IsExpanded = !row.IsExpanded
		return row
	})
}

// DeleteRow removes a row and its whole subtree.
func (s *Store) DeleteRow(workspaceID, tableID, rowID string) error {
	return s.mutate(true, func(st *model.State) error {
		ws := st.Workspace(workspaceID)
		table := tableIn(ws, tableID)
		if table == nil {
			return ErrNotFound
		}
		if _, found := rowtree.Find(table.Rows, rowID); !found {
			return ErrNotFound
		}
		table.Rows = rowtree.Delete(table.Rows, rowID)
		ws.UpdatedAt = s.now()
		return nil
	})
}

// DuplicateRow deep-clones a row subtree with fresh ids and inserts the copy
// immediately after the original, at the same depth.
func (s *Store) DuplicateRow(workspaceID, tableID, rowID string) (model.Row, error) {
	var copied model.Row
	err := s.mutate(true, func(st *model.State) error {
		ws := st.Workspace(workspaceID)
		table := tableIn(ws, tableID)
		if table == nil {
			return ErrNotFound
		}
		original, found := rowtree.Find(table.Rows, rowID)
		if !found {
			return ErrNotFound
		}
		copied = model.DuplicateRow(original)
		table.Rows = rowtree.AddSibling(table.Rows, rowID, copied)
		ws.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return model.Row{}, err
	}
	return copied, nil
}

// AddSiblingRow inserts a fresh empty row right after the anchor row.
func (s *Store) AddSiblingRow(workspaceID, tableID, anchorID string) (model.Row, error) {
	row := model.Row{ID: s.newID()}
	err := s.mutate(true, func(st *model.State) error {
		ws := st.Workspace(workspaceID)
		table := tableIn(ws, tableID)
		if table == nil {
			return ErrNotFound
		}
		if _, found := rowtree.Find(table.Rows, anchorID); !found {
			return ErrNotFound
		}
		table.Rows = rowtree.AddSibling(table.Rows, anchorID, row)
		ws.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return model.Row{}, err
	}
	return row, nil
}

// AddChildRow appends a fresh empty row under the parent and expands it.
func (s *Store) AddChildRow(workspaceID, tableID, parentID string) (model.Row, error) {
	row := model.Row{ID: s.newID()}
	err := s.mutate(true, func(st *model.State) error {
		ws := st.Workspace(workspaceID)
		table := tableIn(ws, tableID)
		if table == nil {
			return ErrNotFound
		}
		if _, found := rowtree.Find(table.Rows, parentID); !found {
			return ErrNotFound
		}
		table.Rows = rowtree.AddChild(table.Rows, parentID, row)
		ws.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return model.Row{}, err
	}
	return row, nil
}

// AddRootRow appends a fresh empty row at the top level.
func (s *Store) AddRootRow(workspaceID, tableID string) (model.Row, error) {
	row := model.Row{ID: s.newID()}
	err := s.mutate(true, func(st *model.State) error {
		ws := st.Workspace(workspaceID)
		table := tableIn(ws, tableID)
		if table == nil {
			return ErrNotFound
		}
		table.Rows = append(table.Rows, row)
		ws.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return model.Row{}, err
	}
	return row, nil
}

func (s *Store) updateRow(workspaceID, tableID, rowID string, fn func(model.Row) model.Row) error {
	return s.mutateRow(true, workspaceID, tableID, rowID, fn)
}

func (s *Store) mutateRow(record bool, workspaceID, tableID, rowID string, fn func(model.Row) model.Row) error {
	return s.mutate(record, func(st *model.State) error {
		ws := st.Workspace(workspaceID)
		table := tableIn(ws, tableID)
		if table == nil {
			return ErrNotFound
		}
		if _, found := rowtree.Find(table.Rows, rowID); !found {
			return ErrNotFound
		}
		table.Rows = rowtree.FindAndUpdate(table.Rows, rowID, fn)
		if record {
			ws.UpdatedAt = s.now()
		}
		return nil
	})
}

func tableIn(ws *model.Workspace, tableID string) *model.TableItem {
	if ws == nil {
		return nil
	}
	for i := range ws.Tables {
		if ws.Tables[i].ID == tableID {
			return &ws.Tables[i]
		}
	}
	return nil
}

func renumberTables(ws *model.Workspace) {
	for i := range ws.Tables {
		ws.Tables[i].Position = i
	}
}
