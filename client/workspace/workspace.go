// Package workspace wires the client components of one open board.
package workspace

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"prism-board/client/board"
	"prism-board/client/drag"
	"prism-board/client/progress"
	"prism-board/client/realtime"
	"prism-board/domain"
)

var ErrNotConfirmed = errors.New("workspace: action not confirmed")

// API is the board API surface a workspace needs.
type API interface {
	board.Fetcher
	drag.Persister
	CreateColumn(ctx context.Context, req domain.CreateColumnRequest) (domain.Column, error)
	PlaceItem(ctx context.Context, req domain.PlaceItemRequest) (domain.Item, error)
	DeleteColumn(ctx context.Context, columnID string) error
	DeleteItem(ctx context.Context, itemID string) error
}

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool {
	return f(ctx, prompt)
}

// Config configures Open. Bus is optional; without it the board only changes
// through this client.
type Config struct {
	ProjectID   string
	API         API
	Bus         *realtime.Bus
	Confirmer   Confirmer
	Logger      *log.Logger
	DragOptions []drag.Option
}

type Workspace struct {
	api     API
	store   *board.Store
	drag    *drag.Controller
	sync    *realtime.Sync
	confirm Confirmer
	logger  *log.Logger
}

// Open loads the board and, when a bus is configured, subscribes to its room.
func Open(ctx context.Context, cfg Config) (*Workspace, error) {
	if cfg.ProjectID == "" || cfg.API == nil {
		return nil, fmt.Errorf("%w: project id and api required", domain.ErrInvalid)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	store := board.New(cfg.ProjectID, logger)
	if err := store.Load(ctx, cfg.API); err != nil {
		return nil, err
	}
	opts := append([]drag.Option{drag.WithLogger(logger)}, cfg.DragOptions...)
	w := &Workspace{
		api:     cfg.API,
		store:   store,
		drag:    drag.New(store, cfg.API, cfg.API, opts...),
		confirm: cfg.Confirmer,
		logger:  logger,
	}
	if cfg.Bus != nil {
		s, err := realtime.Attach(ctx, cfg.Bus, store, cfg.API, logger)
		if err != nil {
			return nil, err
		}
		w.sync = s
	}
	return w, nil
}

func (w *Workspace) Store() *board.Store {
	return w.store
}

func (w *Workspace) Drag() *drag.Controller {
	return w.drag
}

func (w *Workspace) Progress() progress.Report {
	snap := w.store.Snapshot()
	return progress.Compute(snap.Columns, snap.Items, snap.Tasks)
}

func (w *Workspace) WatchProgress(fn func(progress.Report)) (cancel func()) {
	return progress.Watch(w.store, fn)
}

func (w *Workspace) CreateColumn(ctx context.Context, name string) (domain.Column, error) {
	col, err := w.api.CreateColumn(ctx, domain.CreateColumnRequest{ProjectID: w.store.ProjectID(), Name: name})
	if err != nil {
		return domain.Column{}, err
	}
	w.store.ApplyRemoteEvent(domain.Event{Type: domain.ColumnCreated, ProjectID: col.ProjectID, Column: &col})
	return col, nil
}

// PlaceTask puts a task on the board. An empty columnID means the first column.
func (w *Workspace) PlaceTask(ctx context.Context, taskID, columnID string) (domain.Item, error) {
	it, err := w.api.PlaceItem(ctx, domain.PlaceItemRequest{TaskID: taskID, ProjectID: w.store.ProjectID(), ColumnID: columnID})
	if err != nil {
		return domain.Item{}, err
	}
	w.store.ApplyRemoteEvent(domain.Event{Type: domain.ItemCreated, ProjectID: it.ProjectID, Item: &it})
	if task, ok := w.store.Task(taskID); ok {
		task.IsOnBoard, task.ItemID = true, it.ID
		w.store.ApplyRemoteEvent(domain.Event{Type: domain.TaskUpdated, ProjectID: task.ProjectID, Task: &task})
	}
	return it, nil
}

// DeleteColumn removes a column and its items after confirmation. The local
// removal is not rolled back if the server call fails.
func (w *Workspace) DeleteColumn(ctx context.Context, columnID string) error {
	col, ok := w.store.Column(columnID)
	if !ok {
		return fmt.Errorf("column %s: %w", columnID, domain.ErrNotFound)
	}
	n := len(w.store.OrderedItems(columnID))
	if !w.confirmed(ctx, fmt.Sprintf("Delete column %q and its %d item(s)?", col.Name, n)) {
		return ErrNotConfirmed
	}
	w.store.RemoveColumn(columnID)
	if err := w.api.DeleteColumn(ctx, columnID); err != nil {
		w.logger.WithError(err).WithField("column", columnID).Error("delete column")
		return err
	}
	return nil
}

// DeleteItem takes an item off the board after confirmation. Its task stays.
func (w *Workspace) DeleteItem(ctx context.Context, itemID string) error {
	if _, ok := w.store.Item(itemID); !ok {
		return fmt.Errorf("item %s: %w", itemID, domain.ErrNotFound)
	}
	if !w.confirmed(ctx, "Remove this item from the board?") {
		return ErrNotConfirmed
	}
	w.store.RemoveItem(itemID)
	if err := w.api.DeleteItem(ctx, itemID); err != nil {
		w.logger.WithError(err).WithField("item", itemID).Error("delete item")
		return err
	}
	return nil
}

func (w *Workspace) confirmed(ctx context.Context, prompt string) bool {
	return w.confirm != nil && w.confirm.Confirm(ctx, prompt)
}

// Close stops receiving board events.
func (w *Workspace) Close() {
	if w.sync != nil {
		w.sync.Close()
	}
}
