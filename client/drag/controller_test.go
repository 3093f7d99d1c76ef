package drag

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prism-board/client/board"
	"prism-board/domain"
)

type recorder struct {
	itemMoves   []domain.MoveItemRequest
	columnMoves []domain.MoveColumnRequest
	err         error
}

func (r *recorder) MoveItem(_ context.Context, req domain.MoveItemRequest) error {
	r.itemMoves = append(r.itemMoves, req)
	return r.err
}

func (r *recorder) MoveColumn(_ context.Context, req domain.MoveColumnRequest) error {
	r.columnMoves = append(r.columnMoves, req)
	return r.err
}

type canonical struct {
	board domain.Board
	loads int
}

func (c *canonical) FetchBoard(context.Context, string) (domain.Board, error) {
	c.loads++
	return c.board, nil
}

func (c *canonical) FetchTasks(context.Context, string) ([]domain.Task, error) {
	return nil, nil
}

func fixture(t *testing.T) (*Controller, *board.Store, *recorder, *canonical) {
	t.Helper()
	server := &canonical{board: domain.Board{
		Columns: []domain.Column{
			{ID: "todo", ProjectID: "p1", Name: "Todo", Order: 0},
			{ID: "doing", ProjectID: "p1", Name: "Doing", Order: 1},
			{ID: "done", ProjectID: "p1", Name: "Done", Order: 2},
		},
		Items: []domain.Item{
			{ID: "i1", ProjectID: "p1", ColumnID: "todo", Order: 0, TaskID: "t1"},
			{ID: "i2", ProjectID: "p1", ColumnID: "todo", Order: 1, TaskID: "t2"},
			{ID: "i3", ProjectID: "p1", ColumnID: "todo", Order: 2, TaskID: "t3"},
			{ID: "i4", ProjectID: "p1", ColumnID: "doing", Order: 0, TaskID: "t4"},
		},
	}}
	store := board.New("p1", nil)
	require.NoError(t, store.Load(context.Background(), server))
	server.loads = 0

	rec := &recorder{}
	n := 0
	c := New(store, rec, server,
		WithExecutor(func(f func()) { f() }),
		WithIntentIDs(func() string { n++; return fmt.Sprintf("intent-%d", n) }),
	)
	return c, store, rec, server
}

func columnOf(t *testing.T, s *board.Store, itemID string) string {
	t.Helper()
	it, ok := s.Item(itemID)
	require.True(t, ok)
	return it.ColumnID
}

func TestHoverMutatesLocallyWithoutCalls(t *testing.T) {
	c, store, rec, _ := fixture(t)
	require.NoError(t, c.Start(KindItem, "i2"))
	assert.Equal(t, Dragging, c.State())

	require.NoError(t, c.Hover(Target{ColumnID: "doing", ItemID: "i4"}))
	assert.Equal(t, Hovering, c.State())
	assert.Equal(t, "doing", columnOf(t, store, "i2"))
	require.NoError(t, c.Hover(Target{ColumnID: "done"}))
	assert.Equal(t, "done", columnOf(t, store, "i2"))

	assert.Empty(t, rec.itemMoves)
	assert.Empty(t, rec.columnMoves)
}

func TestCommitIssuesExactlyOneMoveItem(t *testing.T) {
	c, store, rec, _ := fixture(t)
	require.NoError(t, c.Start(KindItem, "i2"))
	require.NoError(t, c.Hover(Target{ColumnID: "doing", ItemID: "i4"}))
	require.NoError(t, c.Hover(Target{ColumnID: "doing", ItemID: "i4"}))
	require.NoError(t, c.Drop(context.Background(), &Target{ColumnID: "doing", ItemID: "i4"}))

	require.Len(t, rec.itemMoves, 1)
	assert.Equal(t, domain.MoveItemRequest{ItemID: "i2", NewColumnID: "doing", NewOrder: 0, IntentID: "intent-1"}, rec.itemMoves[0])
	assert.Equal(t, Idle, c.State())

	doing := store.OrderedItems("doing")
	require.Len(t, doing, 2)
	assert.Equal(t, "i2", doing[0].ID)
	assert.Equal(t, []string{"intent-1"}, store.PendingIntents())
}

func TestDropOnEmptySpaceAppends(t *testing.T) {
	c, _, rec, _ := fixture(t)
	require.NoError(t, c.Start(KindItem, "i1"))
	require.NoError(t, c.Drop(context.Background(), &Target{ColumnID: "todo"}))

	require.Len(t, rec.itemMoves, 1)
	assert.Equal(t, 2, rec.itemMoves[0].NewOrder)
	assert.Equal(t, "todo", rec.itemMoves[0].NewColumnID)
}

func TestDropIntoEmptyColumnGoesFirst(t *testing.T) {
	c, store, rec, _ := fixture(t)
	require.NoError(t, c.Start(KindItem, "i4"))
	require.NoError(t, c.Hover(Target{ColumnID: "done"}))
	require.NoError(t, c.Drop(context.Background(), &Target{ColumnID: "done"}))

	require.Len(t, rec.itemMoves, 1)
	assert.Equal(t, 0, rec.itemMoves[0].NewOrder)
	assert.Empty(t, store.OrderedItems("doing"))
}

func TestSamePlaceDropIsNoop(t *testing.T) {
	c, store, rec, _ := fixture(t)
	before := store.Snapshot()

	require.NoError(t, c.Start(KindItem, "i2"))
	require.NoError(t, c.Hover(Target{ColumnID: "doing"}))
	require.NoError(t, c.Hover(Target{ColumnID: "todo", ItemID: "i1"}))
	// The item drops back onto the slot it started from.
	require.NoError(t, c.Drop(context.Background(), &Target{ColumnID: "todo", ItemID: "i3"}))

	assert.Empty(t, rec.itemMoves)
	assert.Equal(t, before, store.Snapshot())
	assert.Empty(t, store.PendingIntents())
}

func TestCancelRevertsSpeculation(t *testing.T) {
	c, store, rec, _ := fixture(t)
	before := store.Snapshot()

	require.NoError(t, c.Start(KindItem, "i2"))
	require.NoError(t, c.Hover(Target{ColumnID: "done"}))
	require.NoError(t, c.Cancel())

	assert.Equal(t, Idle, c.State())
	assert.Equal(t, before, store.Snapshot())
	assert.Empty(t, rec.itemMoves)
	assert.ErrorIs(t, c.Cancel(), ErrNotDragging)
}

func TestDropOutsideCancels(t *testing.T) {
	c, store, rec, _ := fixture(t)
	before := store.Snapshot()
	require.NoError(t, c.Start(KindItem, "i1"))
	require.NoError(t, c.Hover(Target{ColumnID: "doing"}))
	require.NoError(t, c.Drop(context.Background(), nil))

	assert.Empty(t, rec.itemMoves)
	assert.Equal(t, before, store.Snapshot())
}

func TestFailedCommitReloads(t *testing.T) {
	c, store, rec, server := fixture(t)
	rec.err = errors.New("502 bad gateway")

	require.NoError(t, c.Start(KindItem, "i1"))
	require.NoError(t, c.Hover(Target{ColumnID: "done"}))
	require.NoError(t, c.Drop(context.Background(), &Target{ColumnID: "done"}))

	require.Len(t, rec.itemMoves, 1)
	assert.Equal(t, 1, server.loads)
	assert.Equal(t, "todo", columnOf(t, store, "i1"), "speculation is discarded by the reload")
	assert.Empty(t, store.PendingIntents())
}

func TestColumnDrag(t *testing.T) {
	c, store, rec, _ := fixture(t)
	require.NoError(t, c.Start(KindColumn, "done"))
	require.NoError(t, c.Hover(Target{ColumnID: "todo"}))
	assert.Equal(t, "done", store.Columns()[2].ID, "column drags are not mutated on hover")

	require.NoError(t, c.Drop(context.Background(), &Target{ColumnID: "todo", ItemID: "i2"}))
	require.Len(t, rec.columnMoves, 1)
	assert.Equal(t, domain.MoveColumnRequest{ColumnID: "done", NewOrder: 0, IntentID: "intent-1"}, rec.columnMoves[0])
	assert.Equal(t, "done", store.Columns()[0].ID)
}

func TestColumnDroppedOnItselfIsNoop(t *testing.T) {
	c, _, rec, _ := fixture(t)
	require.NoError(t, c.Start(KindColumn, "doing"))
	require.NoError(t, c.Drop(context.Background(), &Target{ColumnID: "doing"}))
	assert.Empty(t, rec.columnMoves)
}

func TestGestureErrors(t *testing.T) {
	c, _, _, _ := fixture(t)
	assert.ErrorIs(t, c.Hover(Target{ColumnID: "todo"}), ErrNotDragging)
	assert.ErrorIs(t, c.Drop(context.Background(), &Target{ColumnID: "todo"}), ErrNotDragging)
	assert.ErrorIs(t, c.Start(KindItem, "missing"), domain.ErrNotFound)

	require.NoError(t, c.Start(KindItem, "i1"))
	assert.ErrorIs(t, c.Start(KindItem, "i2"), ErrAlreadyDragging)
}

func TestListenerCanReadStateDuringGesture(t *testing.T) {
	c, store, _, _ := fixture(t)
	var seen []State
	cancel := store.OnChange(func() { seen = append(seen, c.State()) })
	defer cancel()

	require.NoError(t, c.Start(KindItem, "i1"))
	require.NoError(t, c.Hover(Target{ColumnID: "doing"}))
	require.NoError(t, c.Cancel())

	assert.Equal(t, []State{Hovering, Cancelled}, seen)
	assert.Equal(t, Idle, c.State())
}
