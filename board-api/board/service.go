package board

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"prism-board/domain"
)

// Storage persists the canonical board state of every project.
type Storage interface {
	FetchBoard(ctx context.Context, projectID string) (domain.Board, error)
	FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error)
	FindColumn(ctx context.Context, id string) (domain.Column, error)
	FindItem(ctx context.Context, id string) (domain.Item, error)
	FindTask(ctx context.Context, id string) (domain.Task, error)
	Apply(ctx context.Context, projectID string, cs domain.Changeset) error
}

// Publisher broadcasts board events to the project's room.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// IntentRecorder remembers client intent ids so a retried mutation is applied once.
type IntentRecorder interface {
	Add(ctx context.Context, projectID, intentID string) (bool, error)
	Remove(ctx context.Context, projectID, intentID string) error
}

// ErrDuplicateIntent is returned when a mutation carries an intent id that was already applied.
var ErrDuplicateIntent = errors.New("intent already applied")

// Service owns the canonical order of columns and items. Mutations of one
// project are serialised so the server is the single source of order values.
type Service struct {
	store   Storage
	pub     Publisher
	intents IntentRecorder
	logger  *log.Logger
	locks   *keyedMutex
	newID   func() string
}

// NewService creates a Service. intents may be nil to disable intent deduplication.
func NewService(store Storage, pub Publisher, intents IntentRecorder, logger *log.Logger) *Service {
	if store == nil {
		panic("board.NewService: storage is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Service{
		store:   store,
		pub:     pub,
		intents: intents,
		logger:  logger,
		locks:   newKeyedMutex(),
		newID:   uuid.NewString,
	}
}

// Board returns the project's columns and items in canonical order.
func (s *Service) Board(ctx context.Context, projectID string) (domain.Board, error) {
	if projectID == "" {
		return domain.Board{}, fmt.Errorf("%w: project id required", domain.ErrInvalid)
	}
	b, err := s.store.FetchBoard(ctx, projectID)
	if err != nil {
		return domain.Board{}, err
	}
	return normalize(b), nil
}

// Tasks returns every task of the project.
func (s *Service) Tasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project id required", domain.ErrInvalid)
	}
	tasks, err := s.store.FetchTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, nil
}

// CreateColumn appends a new column at the end of the project's board.
func (s *Service) CreateColumn(ctx context.Context, req domain.CreateColumnRequest) (domain.Column, error) {
	name := strings.TrimSpace(req.Name)
	if req.ProjectID == "" || name == "" {
		return domain.Column{}, fmt.Errorf("%w: project id and name required", domain.ErrInvalid)
	}
	unlock := s.locks.Lock(req.ProjectID)
	defer unlock()

	b, err := s.Board(ctx, req.ProjectID)
	if err != nil {
		return domain.Column{}, err
	}
	col := domain.Column{ID: s.newID(), ProjectID: req.ProjectID, Name: name, Order: len(b.Columns)}
	if err := s.store.Apply(ctx, req.ProjectID, domain.Changeset{PutColumns: []domain.Column{col}}); err != nil {
		return domain.Column{}, err
	}
	s.publish(ctx, domain.Event{Type: domain.ColumnCreated, ProjectID: req.ProjectID, Column: &col})
	return col, nil
}

// MoveColumn moves a column to newOrder and renumbers every column of the project.
func (s *Service) MoveColumn(ctx context.Context, req domain.MoveColumnRequest) ([]domain.Column, error) {
	if req.ColumnID == "" {
		return nil, fmt.Errorf("%w: column id required", domain.ErrInvalid)
	}
	col, err := s.store.FindColumn(ctx, req.ColumnID)
	if err != nil {
		return nil, err
	}
	projectID := col.ProjectID
	unlock := s.locks.Lock(projectID)
	defer unlock()

	if err := s.claimIntent(ctx, projectID, req.IntentID); err != nil {
		return nil, err
	}
	b, err := s.Board(ctx, projectID)
	if err != nil {
		s.releaseIntent(ctx, projectID, req.IntentID)
		return nil, err
	}
	from := domain.ColumnIndex(b.Columns, req.ColumnID)
	if from < 0 {
		s.releaseIntent(ctx, projectID, req.IntentID)
		return nil, fmt.Errorf("column %s: %w", req.ColumnID, domain.ErrNotFound)
	}
	cols := domain.MoveIndex(b.Columns, from, req.NewOrder)
	changed := domain.RenumberColumns(cols)
	if len(changed) > 0 {
		if err := s.store.Apply(ctx, projectID, domain.Changeset{PutColumns: changed}); err != nil {
			s.releaseIntent(ctx, projectID, req.IntentID)
			return nil, err
		}
	}
	s.publish(ctx, domain.Event{Type: domain.ColumnsReordered, ProjectID: projectID, IntentID: req.IntentID, Columns: cols})
	return cols, nil
}

// DeleteColumn removes a column with all of its items and unlinks their tasks.
func (s *Service) DeleteColumn(ctx context.Context, columnID string) error {
	col, err := s.store.FindColumn(ctx, columnID)
	if err != nil {
		return err
	}
	projectID := col.ProjectID
	unlock := s.locks.Lock(projectID)
	defer unlock()

	b, err := s.Board(ctx, projectID)
	if err != nil {
		return err
	}
	tasks, err := s.store.FetchTasks(ctx, projectID)
	if err != nil {
		return err
	}
	idx := domain.ColumnIndex(b.Columns, columnID)
	if idx < 0 {
		return fmt.Errorf("column %s: %w", columnID, domain.ErrNotFound)
	}

	cs := domain.Changeset{DeleteColumns: []string{columnID}}
	removed := make(map[string]struct{})
	for _, it := range b.Items {
		if it.ColumnID == columnID {
			cs.DeleteItems = append(cs.DeleteItems, it.ID)
			removed[it.ID] = struct{}{}
		}
	}
	unlinked := unlinkTasks(tasks, removed)
	cs.PutTasks = unlinked

	remaining := append(append([]domain.Column{}, b.Columns[:idx]...), b.Columns[idx+1:]...)
	cs.PutColumns = domain.RenumberColumns(remaining)

	if err := s.store.Apply(ctx, projectID, cs); err != nil {
		return err
	}
	s.publish(ctx, domain.Event{Type: domain.ColumnDeleted, ProjectID: projectID, ColumnID: columnID})
	for i := range unlinked {
		s.publish(ctx, domain.Event{Type: domain.TaskUpdated, ProjectID: projectID, Task: &unlinked[i]})
	}
	if len(cs.PutColumns) > 0 {
		s.publish(ctx, domain.Event{Type: domain.ColumnsReordered, ProjectID: projectID, Columns: remaining})
	}
	return nil
}

// PlaceItem puts a task on the board by creating an item at the end of the
// target column, or of the first column when no target is given.
func (s *Service) PlaceItem(ctx context.Context, req domain.PlaceItemRequest) (domain.Item, error) {
	if req.ProjectID == "" || req.TaskID == "" {
		return domain.Item{}, fmt.Errorf("%w: project id and task id required", domain.ErrInvalid)
	}
	unlock := s.locks.Lock(req.ProjectID)
	defer unlock()

	task, err := s.store.FindTask(ctx, req.TaskID)
	if err != nil {
		return domain.Item{}, err
	}
	if task.ProjectID != req.ProjectID {
		return domain.Item{}, fmt.Errorf("task %s: %w", req.TaskID, domain.ErrNotFound)
	}
	if task.IsOnBoard || task.ItemID != "" {
		return domain.Item{}, fmt.Errorf("%w: task %s is already on the board", domain.ErrInvalid, task.ID)
	}
	b, err := s.Board(ctx, req.ProjectID)
	if err != nil {
		return domain.Item{}, err
	}
	if len(b.Columns) == 0 {
		return domain.Item{}, fmt.Errorf("%w: project has no columns", domain.ErrInvalid)
	}
	columnID := req.ColumnID
	if columnID == "" {
		columnID = b.Columns[0].ID
	} else if domain.ColumnIndex(b.Columns, columnID) < 0 {
		return domain.Item{}, fmt.Errorf("%w: column %s is not part of project %s", domain.ErrInvalid, columnID, req.ProjectID)
	}

	item := domain.Item{
		ID:        s.newID(),
		ProjectID: req.ProjectID,
		ColumnID:  columnID,
		Order:     len(domain.ItemsInColumn(b.Items, columnID)),
		TaskID:    task.ID,
	}
	task.IsOnBoard = true
	task.ItemID = item.ID
	cs := domain.Changeset{PutItems: []domain.Item{item}, PutTasks: []domain.Task{task}}
	if err := s.store.Apply(ctx, req.ProjectID, cs); err != nil {
		return domain.Item{}, err
	}
	s.publish(ctx, domain.Event{Type: domain.ItemCreated, ProjectID: req.ProjectID, Item: &item})
	s.publish(ctx, domain.Event{Type: domain.TaskUpdated, ProjectID: req.ProjectID, Task: &task})
	return item, nil
}

// MoveItem moves an item to newOrder within newColumnID, renumbering the
// source and destination columns. Every item whose position changed is broadcast.
func (s *Service) MoveItem(ctx context.Context, req domain.MoveItemRequest) (domain.Item, error) {
	if req.ItemID == "" || req.NewColumnID == "" {
		return domain.Item{}, fmt.Errorf("%w: item id and column id required", domain.ErrInvalid)
	}
	found, err := s.store.FindItem(ctx, req.ItemID)
	if err != nil {
		return domain.Item{}, err
	}
	projectID := found.ProjectID
	unlock := s.locks.Lock(projectID)
	defer unlock()

	if err := s.claimIntent(ctx, projectID, req.IntentID); err != nil {
		return domain.Item{}, err
	}
	moved, changed, err := s.moveItem(ctx, projectID, req)
	if err != nil {
		s.releaseIntent(ctx, projectID, req.IntentID)
		return domain.Item{}, err
	}
	for i := range changed {
		ev := domain.Event{Type: domain.ItemUpdated, ProjectID: projectID, Item: &changed[i]}
		if changed[i].ID == moved.ID {
			ev.IntentID = req.IntentID
		}
		s.publish(ctx, ev)
	}
	return moved, nil
}

func (s *Service) moveItem(ctx context.Context, projectID string, req domain.MoveItemRequest) (domain.Item, []domain.Item, error) {
	b, err := s.Board(ctx, projectID)
	if err != nil {
		return domain.Item{}, nil, err
	}
	if domain.ColumnIndex(b.Columns, req.NewColumnID) < 0 {
		return domain.Item{}, nil, fmt.Errorf("%w: column %s is not part of project %s", domain.ErrInvalid, req.NewColumnID, projectID)
	}
	idx := domain.ItemIndex(b.Items, req.ItemID)
	if idx < 0 {
		return domain.Item{}, nil, fmt.Errorf("item %s: %w", req.ItemID, domain.ErrNotFound)
	}
	item := b.Items[idx]

	var changed []domain.Item
	if item.ColumnID == req.NewColumnID {
		list := domain.ItemsInColumn(b.Items, item.ColumnID)
		from := domain.ItemIndex(list, item.ID)
		list = domain.MoveIndex(list, from, req.NewOrder)
		changed = domain.RenumberItems(list)
		item = list[domain.ItemIndex(list, item.ID)]
	} else {
		src := domain.ItemsInColumn(b.Items, item.ColumnID)
		from := domain.ItemIndex(src, item.ID)
		src = append(src[:from], src[from+1:]...)
		changed = append(changed, domain.RenumberItems(src)...)

		dst := domain.ItemsInColumn(b.Items, req.NewColumnID)
		to := domain.ClampIndex(req.NewOrder, len(dst))
		item.ColumnID = req.NewColumnID
		dst = append(dst[:to], append([]domain.Item{item}, dst[to:]...)...)
		domain.RenumberItems(dst)
		item = dst[to]
		for _, it := range dst {
			if it.ID == item.ID || it.Order != orderOf(b.Items, it.ID) {
				changed = append(changed, it)
			}
		}
	}
	if len(changed) == 0 {
		return item, []domain.Item{item}, nil
	}
	if err := s.store.Apply(ctx, projectID, domain.Changeset{PutItems: changed}); err != nil {
		return domain.Item{}, nil, err
	}
	return item, changed, nil
}

// UpdateItem edits the non-positional attributes of an item.
func (s *Service) UpdateItem(ctx context.Context, itemID string, req domain.UpdateItemRequest) (domain.Item, error) {
	if req.Priority != nil && !domain.ValidPriority(*req.Priority) {
		return domain.Item{}, fmt.Errorf("%w: unknown priority %q", domain.ErrInvalid, *req.Priority)
	}
	item, err := s.store.FindItem(ctx, itemID)
	if err != nil {
		return domain.Item{}, err
	}
	unlock := s.locks.Lock(item.ProjectID)
	defer unlock()

	if req.Priority != nil {
		item.Priority = *req.Priority
	}
	if req.Assignee != nil {
		item.Assignee = strings.TrimSpace(*req.Assignee)
	}
	if err := s.store.Apply(ctx, item.ProjectID, domain.Changeset{PutItems: []domain.Item{item}}); err != nil {
		return domain.Item{}, err
	}
	s.publish(ctx, domain.Event{Type: domain.ItemUpdated, ProjectID: item.ProjectID, Item: &item})
	return item, nil
}

// DeleteItem removes an item from the board. Its task survives but is unlinked.
func (s *Service) DeleteItem(ctx context.Context, itemID string) error {
	found, err := s.store.FindItem(ctx, itemID)
	if err != nil {
		return err
	}
	projectID := found.ProjectID
	unlock := s.locks.Lock(projectID)
	defer unlock()

	b, err := s.Board(ctx, projectID)
	if err != nil {
		return err
	}
	tasks, err := s.store.FetchTasks(ctx, projectID)
	if err != nil {
		return err
	}
	idx := domain.ItemIndex(b.Items, itemID)
	if idx < 0 {
		return fmt.Errorf("item %s: %w", itemID, domain.ErrNotFound)
	}
	item := b.Items[idx]
	siblings := domain.ItemsInColumn(b.Items, item.ColumnID)
	at := domain.ItemIndex(siblings, itemID)
	siblings = append(siblings[:at], siblings[at+1:]...)

	cs := domain.Changeset{
		DeleteItems: []string{itemID},
		PutItems:    domain.RenumberItems(siblings),
		PutTasks:    unlinkTasks(tasks, map[string]struct{}{itemID: {}}),
	}
	if err := s.store.Apply(ctx, projectID, cs); err != nil {
		return err
	}
	s.publish(ctx, domain.Event{Type: domain.ItemDeleted, ProjectID: projectID, ItemID: itemID})
	for i := range cs.PutTasks {
		s.publish(ctx, domain.Event{Type: domain.TaskUpdated, ProjectID: projectID, Task: &cs.PutTasks[i]})
	}
	for i := range cs.PutItems {
		s.publish(ctx, domain.Event{Type: domain.ItemUpdated, ProjectID: projectID, Item: &cs.PutItems[i]})
	}
	return nil
}

func (s *Service) claimIntent(ctx context.Context, projectID, intentID string) error {
	if s.intents == nil || intentID == "" {
		return nil
	}
	added, err := s.intents.Add(ctx, projectID, intentID)
	if err != nil {
		s.logger.WithError(err).WithField("intent", intentID).Warn("intent deduper unavailable; applying mutation")
		return nil
	}
	if !added {
		return fmt.Errorf("intent %s: %w", intentID, ErrDuplicateIntent)
	}
	return nil
}

func (s *Service) releaseIntent(ctx context.Context, projectID, intentID string) {
	if s.intents == nil || intentID == "" {
		return
	}
	if err := s.intents.Remove(ctx, projectID, intentID); err != nil {
		s.logger.WithError(err).WithField("intent", intentID).Warn("failed to release intent")
	}
}

func (s *Service) publish(ctx context.Context, ev domain.Event) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"project": ev.ProjectID,
			"event":   ev.Type,
		}).Error("unable to publish board event")
	}
}

// normalize sorts columns and items into canonical order.
func normalize(b domain.Board) domain.Board {
	if b.Columns == nil {
		b.Columns = []domain.Column{}
	}
	if b.Items == nil {
		b.Items = []domain.Item{}
	}
	domain.SortColumns(b.Columns)
	pos := make(map[string]int, len(b.Columns))
	for i, c := range b.Columns {
		pos[c.ID] = i
	}
	items := b.Items
	domain.SortItems(items)
	sorted := make([]domain.Item, 0, len(items))
	for _, c := range b.Columns {
		for _, it := range items {
			if it.ColumnID == c.ID {
				sorted = append(sorted, it)
			}
		}
	}
	for _, it := range items {
		if _, ok := pos[it.ColumnID]; !ok {
			sorted = append(sorted, it)
		}
	}
	b.Items = sorted
	return b
}

func unlinkTasks(tasks []domain.Task, items map[string]struct{}) []domain.Task {
	var out []domain.Task
	for _, t := range tasks {
		if _, ok := items[t.ItemID]; ok && t.ItemID != "" {
			t.Unlink()
			out = append(out, t)
		}
	}
	return out
}

func orderOf(items []domain.Item, id string) int {
	if i := domain.ItemIndex(items, id); i >= 0 {
		return items[i].Order
	}
	return -1
}
