// Package board holds a client's in-memory copy of one project's board and
// merges speculative edits and remote events into it.
package board

import (
	"context"
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"prism-board/domain"
)

// Fetcher loads canonical state from the board API.
type Fetcher interface {
	FetchBoard(ctx context.Context, projectID string) (domain.Board, error)
	FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error)
}

// Snapshot is a consistent copy of the store contents.
type Snapshot struct {
	Columns []domain.Column
	Items   []domain.Item
	Tasks   []domain.Task
}

// Store is safe for concurrent use. Every exported method is one atomic turn;
// change listeners run after the turn has released the lock.
type Store struct {
	projectID string
	logger    *log.Logger

	mu      sync.RWMutex
	columns []domain.Column
	items   map[string]domain.Item
	tasks   map[string]domain.Task
	intents map[string]struct{}

	lmu       sync.Mutex
	listeners map[int]func()
	nextID    int
}

func New(projectID string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Store{
		projectID: projectID,
		logger:    logger,
		items:     make(map[string]domain.Item),
		tasks:     make(map[string]domain.Task),
		intents:   make(map[string]struct{}),
		listeners: make(map[int]func()),
	}
}

func (s *Store) ProjectID() string {
	return s.projectID
}

// Load replaces the store contents with the canonical board. Nothing is
// swapped in unless both fetches succeed.
func (s *Store) Load(ctx context.Context, f Fetcher) error {
	b, err := f.FetchBoard(ctx, s.projectID)
	if err != nil {
		return fmt.Errorf("fetch board: %w", err)
	}
	tasks, err := f.FetchTasks(ctx, s.projectID)
	if err != nil {
		return fmt.Errorf("fetch tasks: %w", err)
	}

	columns := make([]domain.Column, 0, len(b.Columns))
	for _, c := range b.Columns {
		if c.ProjectID == s.projectID {
			columns = append(columns, c)
		}
	}
	domain.SortColumns(columns)
	items := make(map[string]domain.Item, len(b.Items))
	for _, it := range b.Items {
		if it.ProjectID == s.projectID {
			items[it.ID] = it
		}
	}
	byID := make(map[string]domain.Task, len(tasks))
	for _, t := range tasks {
		if t.ProjectID == s.projectID {
			byID[t.ID] = t
		}
	}

	s.mu.Lock()
	s.columns = columns
	s.items = items
	s.tasks = byID
	s.mu.Unlock()
	s.notify()
	return nil
}

// Columns returns the columns in board order.
func (s *Store) Columns() []domain.Column {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Column(nil), s.columns...)
}

func (s *Store) Column(id string) (domain.Column, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := domain.ColumnIndex(s.columns, id)
	if i < 0 {
		return domain.Column{}, false
	}
	return s.columns[i], true
}

func (s *Store) Item(id string) (domain.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	return it, ok
}

// Items returns every item grouped by column position, then by order.
func (s *Store) Items() []domain.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.itemsLocked()
}

// OrderedItems returns the items of columnID sorted by order.
func (s *Store) OrderedItems(columnID string) []domain.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.columnItemsLocked(columnID)
}

func (s *Store) Task(id string) (domain.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	return t, ok
}

// Tasks returns the task tree flattened and sorted by id.
func (s *Store) Tasks() []domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tasksLocked()
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Columns: append([]domain.Column(nil), s.columns...),
		Items:   s.itemsLocked(),
		Tasks:   s.tasksLocked(),
	}
}

// OnChange registers fn to run after every change. The returned func removes it.
func (s *Store) OnChange(fn func()) (cancel func()) {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.lmu.Unlock()
	return func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	}
}

func (s *Store) notify() {
	s.lmu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	s.lmu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// MoveItemTo places an item at index of columnID, renumbering both the
// column it leaves and the one it enters. The index is clamped.
func (s *Store) MoveItemTo(itemID, columnID string, index int) bool {
	s.mu.Lock()
	changed := s.moveItemLocked(itemID, columnID, index)
	s.mu.Unlock()
	if changed {
		s.notify()
	}
	return changed
}

// SetItemColumn reassigns an item to the end of columnID. Moving an item to
// the column it is already in changes nothing.
func (s *Store) SetItemColumn(itemID, columnID string) bool {
	s.mu.Lock()
	it, ok := s.items[itemID]
	if !ok || it.ColumnID == columnID {
		s.mu.Unlock()
		return false
	}
	changed := s.moveItemLocked(itemID, columnID, len(s.columnItemsLocked(columnID)))
	s.mu.Unlock()
	if changed {
		s.notify()
	}
	return changed
}

func (s *Store) moveItemLocked(itemID, columnID string, index int) bool {
	it, ok := s.items[itemID]
	if !ok || domain.ColumnIndex(s.columns, columnID) < 0 {
		return false
	}
	source := s.columnItemsLocked(it.ColumnID)
	from := domain.ItemIndex(source, itemID)
	if it.ColumnID == columnID {
		index = domain.ClampIndex(index, len(source)-1)
		if index == from {
			return false
		}
		s.putItemsLocked(domain.MoveIndex(source, from, index))
		return true
	}
	source = append(source[:from:from], source[from+1:]...)
	s.putItemsLocked(source)

	dest := s.columnItemsLocked(columnID)
	index = domain.ClampIndex(index, len(dest))
	it.ColumnID = columnID
	dest = append(dest[:index:index], append([]domain.Item{it}, dest[index:]...)...)
	s.putItemsLocked(dest)
	return true
}

func (s *Store) putItemsLocked(items []domain.Item) {
	domain.RenumberItems(items)
	for _, it := range items {
		s.items[it.ID] = it
	}
}

// MoveColumnTo moves a column to index and renumbers every column.
func (s *Store) MoveColumnTo(columnID string, index int) bool {
	s.mu.Lock()
	from := domain.ColumnIndex(s.columns, columnID)
	if from < 0 {
		s.mu.Unlock()
		return false
	}
	index = domain.ClampIndex(index, len(s.columns)-1)
	if index == from {
		s.mu.Unlock()
		return false
	}
	cols := domain.MoveIndex(s.columns, from, index)
	domain.RenumberColumns(cols)
	s.columns = cols
	s.mu.Unlock()
	s.notify()
	return true
}

// RemoveColumn drops a column with its items and clears the board link of
// their tasks.
func (s *Store) RemoveColumn(columnID string) bool {
	s.mu.Lock()
	changed := s.removeColumnLocked(columnID)
	s.mu.Unlock()
	if changed {
		s.notify()
	}
	return changed
}

func (s *Store) removeColumnLocked(columnID string) bool {
	i := domain.ColumnIndex(s.columns, columnID)
	if i < 0 {
		return false
	}
	cols := append(append([]domain.Column(nil), s.columns[:i]...), s.columns[i+1:]...)
	domain.RenumberColumns(cols)
	s.columns = cols
	for id, it := range s.items {
		if it.ColumnID == columnID {
			s.dropItemLocked(id)
		}
	}
	return true
}

// RemoveItem drops an item and clears the board link of its task.
func (s *Store) RemoveItem(itemID string) bool {
	s.mu.Lock()
	it, ok := s.items[itemID]
	if ok {
		s.dropItemLocked(itemID)
		s.putItemsLocked(s.columnItemsLocked(it.ColumnID))
	}
	s.mu.Unlock()
	if ok {
		s.notify()
	}
	return ok
}

func (s *Store) dropItemLocked(itemID string) {
	it := s.items[itemID]
	delete(s.items, itemID)
	if t, ok := s.tasks[it.TaskID]; ok && t.ItemID == itemID {
		t.Unlink()
		s.tasks[t.ID] = t
	}
}

// TrackIntent records an outstanding persistence call awaiting its echo.
func (s *Store) TrackIntent(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	s.intents[id] = struct{}{}
	s.mu.Unlock()
}

// ResolveIntent forgets id and reports whether it was pending.
func (s *Store) ResolveIntent(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.intents[id]
	delete(s.intents, id)
	return ok
}

// PendingIntents returns the unresolved intent ids, sorted.
func (s *Store) PendingIntents() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.intents))
	for id := range s.intents {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Store) columnItemsLocked(columnID string) []domain.Item {
	out := make([]domain.Item, 0)
	for _, it := range s.items {
		if it.ColumnID == columnID {
			out = append(out, it)
		}
	}
	domain.SortItems(out)
	return out
}

func (s *Store) itemsLocked() []domain.Item {
	out := make([]domain.Item, 0, len(s.items))
	seen := make(map[string]struct{}, len(s.columns))
	for _, c := range s.columns {
		seen[c.ID] = struct{}{}
		out = append(out, s.columnItemsLocked(c.ID)...)
	}
	// Items whose column has not arrived yet.
	var orphans []domain.Item
	for _, it := range s.items {
		if _, ok := seen[it.ColumnID]; !ok {
			orphans = append(orphans, it)
		}
	}
	domain.SortItems(orphans)
	return append(out, orphans...)
}

func (s *Store) tasksLocked() []domain.Task {
	out := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
