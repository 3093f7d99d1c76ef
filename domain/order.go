package domain

import "sort"

// ClampIndex bounds i to the valid insertion positions of a slice of length n.
func ClampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// MoveIndex moves the element at from to position to and returns the reordered
// slice. The input slice is not modified. Out of range positions are clamped.
func MoveIndex[T any](s []T, from, to int) []T {
	out := make([]T, len(s))
	copy(out, s)
	if from < 0 || from >= len(out) {
		return out
	}
	if to >= len(out) {
		to = len(out) - 1
	}
	if to < 0 {
		to = 0
	}
	if from == to {
		return out
	}
	v := out[from]
	if from < to {
		copy(out[from:to], out[from+1:to+1])
	} else {
		copy(out[to+1:from+1], out[to:from])
	}
	out[to] = v
	return out
}

// SortColumns orders columns by their order field, breaking ties by id so the
// result is deterministic even if the input violates the dense invariant.
func SortColumns(cols []Column) {
	sort.SliceStable(cols, func(i, j int) bool {
		if cols[i].Order != cols[j].Order {
			return cols[i].Order < cols[j].Order
		}
		return cols[i].ID < cols[j].ID
	})
}

// SortItems orders items by their order field with an id tie-break.
func SortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Order != items[j].Order {
			return items[i].Order < items[j].Order
		}
		return items[i].ID < items[j].ID
	})
}

// RenumberColumns assigns order = position and returns the columns whose order changed.
func RenumberColumns(cols []Column) []Column {
	var changed []Column
	for i := range cols {
		if cols[i].Order != i {
			cols[i].Order = i
			changed = append(changed, cols[i])
		}
	}
	return changed
}

// RenumberItems assigns order = position and returns the items whose order changed.
func RenumberItems(items []Item) []Item {
	var changed []Item
	for i := range items {
		if items[i].Order != i {
			items[i].Order = i
			changed = append(changed, items[i])
		}
	}
	return changed
}

// ColumnIndex returns the position of the column with the given id, or -1.
func ColumnIndex(cols []Column, id string) int {
	for i := range cols {
		if cols[i].ID == id {
			return i
		}
	}
	return -1
}

// ItemIndex returns the position of the item with the given id, or -1.
func ItemIndex(items []Item, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

// ItemsInColumn returns the items of columnID sorted by order.
func ItemsInColumn(items []Item, columnID string) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.ColumnID == columnID {
			out = append(out, it)
		}
	}
	SortItems(out)
	return out
}
