// Package rowtree provides pure functions over a table's row forest. None of
// the functions mutate their input: every level an operation touches is
// rebuilt as a fresh slice, so callers can treat returned forests as new
// values while untouched subtrees keep their maps by reference.
package rowtree

import "github.com/gridnote/gridnote/internal/model"

// FindAndUpdate returns a new forest in which the row with targetID is
// replaced by fn(row). The search recurses into children. A missing target
// returns a structurally equal copy of the input.
func FindAndUpdate(rows []model.Row, targetID string, fn func(model.Row) model.Row) []model.Row {
	if rows == nil {
		return nil
	}
	out := make([]model.Row, 0, len(rows))
	for _, row := range rows {
		if row.ID == targetID {
			out = append(out, fn(row))
			continue
		}
		row.Children = FindAndUpdate(row.Children, targetID, fn)
		out = append(out, row)
	}
	return out
}

// Delete returns a new forest with the row removed from whichever level it
// is at. Siblings are rebuilt in place; a missing target returns a
// structurally equal copy.
func Delete(rows []model.Row, targetID string) []model.Row {
	if rows == nil {
		return nil
	}
	out := make([]model.Row, 0, len(rows))
	for _, row := range rows {
		if row.ID == targetID {
			continue
		}
		row.Children = Delete(row.Children, targetID)
		out = append(out, row)
	}
	return out
}

// AddChild appends child to the children of the row with parentID and forces
// the parent expanded. If the parent is not found the input is returned as a
// structurally equal copy.
func AddChild(rows []model.Row, parentID string, child model.Row) []model.Row {
	return FindAndUpdate(rows, parentID, func(row model.Row) model.Row {
		children := make([]model.Row, 0, len(row.Children)+1)
		children = append(children, row.Children...)
		row.Children = append(children, child)
		row.IsExpanded = true
		return row
	})
}

// AddSibling inserts sibling immediately after the row with anchorID, at
// whatever depth the anchor is found.
func AddSibling(rows []model.Row, anchorID string, sibling model.Row) []model.Row {
	if rows == nil {
		return nil
	}
	out := make([]model.Row, 0, len(rows)+1)
	for _, row := range rows {
		if row.ID == anchorID {
			out = append(out, row, sibling)
			continue
		}
		row.Children = AddSibling(row.Children, anchorID, sibling)
		out = append(out, row)
	}
	return out
}

// Find returns the row with the given id at any depth.
func Find(rows []model.Row, id string) (model.Row, bool) {
	for _, row := range rows {
		if row.ID == id {
			return row, true
		}
		if found, ok := Find(row.Children, id); ok {
			return found, true
		}
	}
	return model.Row{}, false
}

// Walk visits every row in the forest, parents before children.
func Walk(rows []model.Row, visit func(model.Row)) {
	for _, row := range rows {
		visit(row)
		Walk(row.Children, visit)
	}
}
