package model

// CloneRows deep-copies a row forest without changing ids.
func CloneRows(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		row.Cells = cloneStringMap(row.Cells)
		row.CellColors = cloneStringMap(row.CellColors)
		row.Children = CloneRows(row.Children)
		out = append(out, row)
	}
	return out
}

// DuplicateRow deep-clones a row subtree, issuing fresh ids at every level.
// Cell keys are left untouched since the clone stays in the same table.
func DuplicateRow(row Row) Row {
	row.ID = NewID()
	row.Cells = cloneStringMap(row.Cells)
	row.CellColors = cloneStringMap(row.CellColors)
	if len(row.Children) > 0 {
		children := make([]Row, 0, len(row.Children))
		for _, child := range row.Children {
			children = append(children, DuplicateRow(child))
		}
		row.Children = children
	}
	return row
}

// DuplicateTable copies a table with fresh ids for the table, every column
// and every row in the tree. Cell and cell-color keys are remapped from old
// to new column ids. With withContent false the structure is kept but every
// row's cell map is emptied.
func DuplicateTable(table TableItem, withContent bool) TableItem {
	table.ID = NewID()
	table.Name = table.Name + " (copy)"
	if table.Appearance != nil {
		ap := *table.Appearance
		table.Appearance = &ap
	}

	columnIDs := make(map[string]string, len(table.Columns))
	columns := make([]Column, 0, len(table.Columns))
	for _, col := range table.Columns {
		fresh := NewID()
		columnIDs[col.ID] = fresh
		col.ID = fresh
		columns = append(columns, col)
	}
	table.Columns = columns
	table.Rows = duplicateRowsRemapped(table.Rows, columnIDs, withContent)
	table.IsArchived = false
	table.ArchivedAt = nil
	return table
}

func duplicateRowsRemapped(rows []Row, columnIDs map[string]string, withContent bool) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		row.ID = NewID()
		if withContent {
			row.Cells = remapKeys(row.Cells, columnIDs)
			row.CellColors = remapKeys(row.CellColors, columnIDs)
		} else {
			row.Cells = nil
			row.CellColors = nil
			row.Color = ""
		}
		row.Children = duplicateRowsRemapped(row.Children, columnIDs, withContent)
		out = append(out, row)
	}
	return out
}

func remapKeys(m map[string]string, keys map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if mapped, ok := keys[k]; ok {
			out[mapped] = v
			continue
		}
		// Stale cell keys for deleted columns are carried as-is.
		out[k] = v
	}
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
