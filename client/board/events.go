package board

import (
	"prism-board/domain"
)

// ApplyRemoteEvent merges a broadcast event into the store and reports whether
// the board changed. Events for another project or without a project are
// dropped. Applying the same event twice is a no-op the second time.
func (s *Store) ApplyRemoteEvent(ev domain.Event) bool {
	if ev.ProjectID == "" || ev.ProjectID != s.projectID {
		s.logger.WithField("project", ev.ProjectID).Debug("dropping event for another project")
		return false
	}
	s.mu.Lock()
	if ev.IntentID != "" {
		delete(s.intents, ev.IntentID)
	}
	changed := s.applyLocked(ev)
	s.mu.Unlock()
	if changed {
		s.notify()
	}
	return changed
}

func (s *Store) applyLocked(ev domain.Event) bool {
	switch ev.Type {
	case domain.ColumnCreated:
		if ev.Column == nil || ev.Column.ProjectID != s.projectID || domain.ColumnIndex(s.columns, ev.Column.ID) >= 0 {
			return false
		}
		cols := append(append([]domain.Column(nil), s.columns...), *ev.Column)
		domain.SortColumns(cols)
		s.columns = cols
		return true

	case domain.ColumnDeleted:
		return s.removeColumnLocked(ev.ColumnID)

	case domain.ColumnsReordered:
		cols := make([]domain.Column, 0, len(ev.Columns))
		for _, c := range ev.Columns {
			if c.ProjectID == s.projectID {
				cols = append(cols, c)
			}
		}
		// A reorder carries the full column list; one that loses a known
		// column is malformed and the column_deleted event owns removal.
		if len(cols) == 0 || !coversColumns(cols, s.columns) {
			return false
		}
		domain.SortColumns(cols)
		if equalColumns(cols, s.columns) {
			return false
		}
		s.columns = cols
		return true

	case domain.ItemCreated:
		if ev.Item == nil || ev.Item.ProjectID != s.projectID {
			return false
		}
		if _, ok := s.items[ev.Item.ID]; ok {
			return false
		}
		s.items[ev.Item.ID] = *ev.Item
		return true

	case domain.ItemUpdated:
		if ev.Item == nil || ev.Item.ProjectID != s.projectID {
			return false
		}
		if cur, ok := s.items[ev.Item.ID]; ok && cur == *ev.Item {
			return false
		}
		s.items[ev.Item.ID] = *ev.Item
		return true

	case domain.ItemDeleted:
		if _, ok := s.items[ev.ItemID]; !ok {
			return false
		}
		s.dropItemLocked(ev.ItemID)
		return true

	case domain.TaskCreated:
		if ev.Task == nil || ev.Task.ProjectID != s.projectID {
			return false
		}
		if _, ok := s.tasks[ev.Task.ID]; ok {
			return false
		}
		s.tasks[ev.Task.ID] = *ev.Task
		return true

	case domain.TaskUpdated:
		if ev.Task == nil || ev.Task.ProjectID != s.projectID {
			return false
		}
		if cur, ok := s.tasks[ev.Task.ID]; ok && cur == *ev.Task {
			return false
		}
		s.tasks[ev.Task.ID] = *ev.Task
		return true

	case domain.TaskDeleted:
		if _, ok := s.tasks[ev.TaskID]; !ok {
			return false
		}
		delete(s.tasks, ev.TaskID)
		return true

	case domain.BoardRefetchNeeded:
		// Handled by the caller, which owns the fetcher.
		return false
	}
	s.logger.WithField("type", ev.Type).Debug("ignoring unknown board event")
	return false
}

func coversColumns(next, known []domain.Column) bool {
	for _, c := range known {
		if domain.ColumnIndex(next, c.ID) < 0 {
			return false
		}
	}
	return true
}

func equalColumns(a, b []domain.Column) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
