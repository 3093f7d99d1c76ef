// Package progress derives a project's completion percentage from the board
// position of its tasks.
package progress

import (
	"math"

	"prism-board/client/board"
	"prism-board/domain"
)

// Category buckets a node by how far along it is.
type Category string

const (
	NotStarted Category = "not_started"
	InProgress Category = "in_progress"
	Closed     Category = "closed"
)

// Weight is the progress contributed by sitting in column i of n.
// The first column is 0 and the last is 100.
func Weight(i, n int) float64 {
	if n <= 1 {
		return 0
	}
	return float64(i) * 100 / float64(n-1)
}

// ColumnCategory buckets column i of n. The first column wins on a one
// column board.
func ColumnCategory(i, n int) Category {
	switch {
	case i == 0:
		return NotStarted
	case i == n-1:
		return Closed
	default:
		return InProgress
	}
}

// Node is a countable task with the progress it contributes.
type Node struct {
	Task     domain.Task
	Progress float64
	Category Category
}

type Report struct {
	Aggregate  int
	NotStarted []Node
	InProgress []Node
	Closed     []Node
}

// Countable returns the tasks that contribute to progress: anything on the
// board, every leaf, and headings that have no children.
func Countable(tasks []domain.Task) []domain.Task {
	parents := make(map[string]struct{})
	for _, t := range tasks {
		if t.ParentID != "" {
			parents[t.ParentID] = struct{}{}
		}
	}
	var out []domain.Task
	for _, t := range tasks {
		_, hasChildren := parents[t.ID]
		if t.IsOnBoard || t.Type == domain.TaskLeaf || !hasChildren {
			out = append(out, t)
		}
	}
	return out
}

// Compute builds the progress report for one board.
func Compute(columns []domain.Column, items []domain.Item, tasks []domain.Task) Report {
	cols := append([]domain.Column(nil), columns...)
	domain.SortColumns(cols)
	position := make(map[string]int, len(cols))
	for i, c := range cols {
		position[c.ID] = i
	}
	byID := make(map[string]domain.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	var r Report
	var sum float64
	nodes := Countable(tasks)
	for _, t := range nodes {
		n := Node{Task: t}
		n.Progress, n.Category = statusProgress(t.Status)
		if t.IsOnBoard {
			if it, ok := byID[t.ItemID]; ok {
				if i, ok := position[it.ColumnID]; ok {
					n.Progress = Weight(i, len(cols))
					n.Category = ColumnCategory(i, len(cols))
				}
			}
		}
		sum += n.Progress
		switch n.Category {
		case NotStarted:
			r.NotStarted = append(r.NotStarted, n)
		case InProgress:
			r.InProgress = append(r.InProgress, n)
		case Closed:
			r.Closed = append(r.Closed, n)
		}
	}
	if len(nodes) > 0 {
		r.Aggregate = int(math.Round(sum / float64(len(nodes))))
	}
	return r
}

func statusProgress(s domain.TaskStatus) (float64, Category) {
	switch s {
	case domain.StatusDone:
		return 100, Closed
	case domain.StatusInProgress:
		return 50, InProgress
	default:
		return 0, NotStarted
	}
}

// Watch calls fn with a fresh report now and after every store change.
func Watch(s *board.Store, fn func(Report)) (cancel func()) {
	emit := func() {
		snap := s.Snapshot()
		fn(Compute(snap.Columns, snap.Items, snap.Tasks))
	}
	cancel = s.OnChange(emit)
	emit()
	return cancel
}
