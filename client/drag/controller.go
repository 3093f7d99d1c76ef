// Package drag turns pointer gestures into speculative board edits and a
// single persistence call per completed drag.
package drag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"prism-board/client/board"
	"prism-board/domain"
)

var (
	ErrNotDragging     = errors.New("drag: no drag in progress")
	ErrAlreadyDragging = errors.New("drag: a drag is already in progress")
)

type Kind int

const (
	KindColumn Kind = iota + 1
	KindItem
)

type State int

const (
	Idle State = iota
	Dragging
	Hovering
	Committing
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Hovering:
		return "hovering"
	case Committing:
		return "committing"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Target is what the pointer is over. ItemID is empty when the pointer is
// over the empty space of column ColumnID.
type Target struct {
	ColumnID string
	ItemID   string
}

// Persister is the board API surface a drop commits through.
type Persister interface {
	MoveItem(ctx context.Context, req domain.MoveItemRequest) error
	MoveColumn(ctx context.Context, req domain.MoveColumnRequest) error
}

// Executor runs a persistence call away from the gesture that triggered it.
type Executor func(func())

type Option func(*Controller)

func WithExecutor(exec Executor) Option {
	return func(c *Controller) { c.exec = exec }
}

func WithLogger(logger *log.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

func WithIntentIDs(next func() string) Option {
	return func(c *Controller) { c.newIntent = next }
}

type session struct {
	kind      Kind
	id        string
	srcColumn string
	srcIndex  int
	over      string
}

// Controller is safe for concurrent use, but only one drag runs at a time.
type Controller struct {
	store     *board.Store
	persister Persister
	fetcher   board.Fetcher
	exec      Executor
	logger    *log.Logger
	newIntent func() string

	mu  sync.Mutex
	cur *session

	// state is read by store listeners while a gesture still holds mu.
	state atomic.Int32
}

func New(store *board.Store, persister Persister, fetcher board.Fetcher, opts ...Option) *Controller {
	c := &Controller{
		store:     store,
		persister: persister,
		fetcher:   fetcher,
		exec:      func(f func()) { go f() },
		logger:    log.StandardLogger(),
		newIntent: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(st State) {
	c.state.Store(int32(st))
}

// Start begins dragging the column or item with the given id.
func (c *Controller) Start(kind Kind, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != nil {
		return ErrAlreadyDragging
	}
	s := &session{kind: kind, id: id}
	switch kind {
	case KindColumn:
		i := domain.ColumnIndex(c.store.Columns(), id)
		if i < 0 {
			return fmt.Errorf("column %s: %w", id, domain.ErrNotFound)
		}
		s.srcColumn, s.srcIndex = id, i
	case KindItem:
		it, ok := c.store.Item(id)
		if !ok {
			return fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
		}
		s.srcColumn = it.ColumnID
		s.srcIndex = domain.ItemIndex(c.store.OrderedItems(it.ColumnID), id)
	default:
		return fmt.Errorf("%w: unknown drag kind %d", domain.ErrInvalid, kind)
	}
	s.over = s.srcColumn
	c.cur = s
	c.setState(Dragging)
	return nil
}

// Hover tracks the column under the pointer. Item drags follow it into the
// hovered column locally; nothing is sent to the server.
func (c *Controller) Hover(t Target) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return ErrNotDragging
	}
	c.setState(Hovering)
	dest, ok := c.resolveColumn(t)
	if !ok {
		return nil
	}
	c.cur.over = dest
	if c.cur.kind == KindItem {
		c.store.SetItemColumn(c.cur.id, dest)
	}
	return nil
}

// Drop ends the drag over t. A nil target means the pointer left every drop
// zone and the drag is cancelled.
func (c *Controller) Drop(ctx context.Context, t *Target) error {
	if t == nil {
		return c.Cancel()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return ErrNotDragging
	}
	s := c.cur
	c.setState(Committing)
	defer c.finish()

	dest, ok := c.resolveColumn(*t)
	if !ok {
		c.revert(s)
		return nil
	}
	if s.kind == KindColumn {
		c.commitColumn(ctx, s, dest)
		return nil
	}
	c.commitItem(ctx, s, dest, t.ItemID)
	return nil
}

func (c *Controller) commitColumn(ctx context.Context, s *session, target string) {
	if target == s.id {
		return
	}
	index := domain.ColumnIndex(c.store.Columns(), target)
	if !c.store.MoveColumnTo(s.id, index) {
		return
	}
	req := domain.MoveColumnRequest{ColumnID: s.id, NewOrder: index, IntentID: c.newIntent()}
	c.persist(ctx, req.IntentID, func(ctx context.Context) error {
		return c.persister.MoveColumn(ctx, req)
	})
}

func (c *Controller) commitItem(ctx context.Context, s *session, dest, overItem string) {
	siblings := c.store.OrderedItems(dest)
	index := -1
	if overItem != "" {
		index = domain.ItemIndex(siblings, overItem)
	}
	if index < 0 {
		// Empty space of the column: the item goes last.
		index = len(siblings)
		if domain.ItemIndex(siblings, s.id) >= 0 {
			index--
		}
	}
	if dest == s.srcColumn && index == s.srcIndex {
		c.revert(s)
		return
	}
	c.store.MoveItemTo(s.id, dest, index)
	req := domain.MoveItemRequest{ItemID: s.id, NewColumnID: dest, NewOrder: index, IntentID: c.newIntent()}
	c.persist(ctx, req.IntentID, func(ctx context.Context) error {
		return c.persister.MoveItem(ctx, req)
	})
}

func (c *Controller) persist(ctx context.Context, intent string, call func(context.Context) error) {
	c.store.TrackIntent(intent)
	c.exec(func() {
		if err := call(ctx); err != nil {
			c.logger.WithError(err).WithField("intent", intent).Error("persist drag")
			c.store.ResolveIntent(intent)
			if err := c.store.Load(ctx, c.fetcher); err != nil {
				c.logger.WithError(err).Error("reload board after failed drag")
			}
		}
	})
}

// Cancel abandons the drag and puts a speculatively moved item back where it
// started.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil {
		return ErrNotDragging
	}
	c.setState(Cancelled)
	c.revert(c.cur)
	c.finish()
	return nil
}

func (c *Controller) revert(s *session) {
	if s.kind == KindItem {
		c.store.MoveItemTo(s.id, s.srcColumn, s.srcIndex)
	}
}

func (c *Controller) finish() {
	c.cur = nil
	c.setState(Idle)
}

// resolveColumn maps a target to the column it belongs to.
func (c *Controller) resolveColumn(t Target) (string, bool) {
	if t.ItemID != "" {
		if it, ok := c.store.Item(t.ItemID); ok {
			return it.ColumnID, true
		}
	}
	if _, ok := c.store.Column(t.ColumnID); ok {
		return t.ColumnID, true
	}
	return "", false
}
