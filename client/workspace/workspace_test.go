package workspace

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prism-board/client/drag"
	"prism-board/client/progress"
	"prism-board/domain"
)

type fakeAPI struct {
	board        domain.Board
	tasks        []domain.Task
	deleteErr    error
	deletedCols  []string
	deletedItems []string

	mu    sync.Mutex
	moves []domain.MoveItemRequest
}

func (f *fakeAPI) FetchBoard(context.Context, string) (domain.Board, error) { return f.board, nil }
func (f *fakeAPI) FetchTasks(context.Context, string) ([]domain.Task, error) {
	return f.tasks, nil
}

func (f *fakeAPI) MoveItem(_ context.Context, req domain.MoveItemRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, req)
	return nil
}

func (f *fakeAPI) Moves() []domain.MoveItemRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.MoveItemRequest(nil), f.moves...)
}

func (f *fakeAPI) MoveColumn(context.Context, domain.MoveColumnRequest) error { return nil }

func (f *fakeAPI) CreateColumn(_ context.Context, req domain.CreateColumnRequest) (domain.Column, error) {
	return domain.Column{ID: "new", ProjectID: req.ProjectID, Name: req.Name, Order: len(f.board.Columns)}, nil
}

func (f *fakeAPI) PlaceItem(_ context.Context, req domain.PlaceItemRequest) (domain.Item, error) {
	return domain.Item{ID: "i-new", ProjectID: req.ProjectID, ColumnID: req.ColumnID, TaskID: req.TaskID}, nil
}

func (f *fakeAPI) DeleteColumn(_ context.Context, id string) error {
	f.deletedCols = append(f.deletedCols, id)
	return f.deleteErr
}

func (f *fakeAPI) DeleteItem(_ context.Context, id string) error {
	f.deletedItems = append(f.deletedItems, id)
	return f.deleteErr
}

func newAPI() *fakeAPI {
	return &fakeAPI{
		board: domain.Board{
			Columns: []domain.Column{
				{ID: "todo", ProjectID: "p1", Name: "Todo", Order: 0},
				{ID: "done", ProjectID: "p1", Name: "Done", Order: 1},
			},
			Items: []domain.Item{{ID: "i1", ProjectID: "p1", ColumnID: "todo", TaskID: "t1"}},
		},
		tasks: []domain.Task{
			{ID: "t1", ProjectID: "p1", Type: domain.TaskLeaf, Title: "one", IsOnBoard: true, ItemID: "i1"},
			{ID: "t2", ProjectID: "p1", Type: domain.TaskLeaf, Title: "two", Status: domain.StatusDone},
		},
	}
}

func always(answer bool) ConfirmFunc {
	return func(context.Context, string) bool { return answer }
}

func open(t *testing.T, api *fakeAPI, confirm Confirmer) *Workspace {
	t.Helper()
	w, err := Open(context.Background(), Config{ProjectID: "p1", API: api, Confirmer: confirm})
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}

func TestOpenRequiresProjectAndAPI(t *testing.T) {
	_, err := Open(context.Background(), Config{ProjectID: "p1"})
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestProgressFollowsDrag(t *testing.T) {
	api := newAPI()
	w := open(t, api, nil)
	// t1 sits in the first column, t2 is done off board.
	assert.Equal(t, 50, w.Progress().Aggregate)

	var seen []int
	cancel := w.WatchProgress(func(r progress.Report) { seen = append(seen, r.Aggregate) })
	defer cancel()

	require.NoError(t, w.Drag().Start(drag.KindItem, "i1"))
	require.NoError(t, w.Drag().Hover(drag.Target{ColumnID: "done"}))
	require.NoError(t, w.Drag().Drop(context.Background(), &drag.Target{ColumnID: "done"}))

	assert.Equal(t, []int{50, 100}, seen)
	assert.Eventually(t, func() bool { return len(api.Moves()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestDeleteColumnNeedsConfirmation(t *testing.T) {
	api := newAPI()
	w := open(t, api, always(false))

	assert.ErrorIs(t, w.DeleteColumn(context.Background(), "todo"), ErrNotConfirmed)
	assert.Empty(t, api.deletedCols)
	assert.Len(t, w.Store().Columns(), 2)
}

func TestDeleteColumnIsOptimistic(t *testing.T) {
	api := newAPI()
	api.deleteErr = errors.New("503")
	var prompt string
	w := open(t, api, ConfirmFunc(func(_ context.Context, p string) bool { prompt = p; return true }))

	err := w.DeleteColumn(context.Background(), "todo")
	require.Error(t, err)
	assert.Contains(t, prompt, `"Todo"`)
	assert.Equal(t, []string{"todo"}, api.deletedCols)
	// Not rolled back: the next broadcast or refetch converges.
	_, ok := w.Store().Column("todo")
	assert.False(t, ok)
	task, _ := w.Store().Task("t1")
	assert.False(t, task.IsOnBoard)
}

func TestDeleteItem(t *testing.T) {
	api := newAPI()
	w := open(t, api, always(true))

	require.NoError(t, w.DeleteItem(context.Background(), "i1"))
	assert.Equal(t, []string{"i1"}, api.deletedItems)
	assert.Empty(t, w.Store().Items())
	assert.ErrorIs(t, w.DeleteItem(context.Background(), "i1"), domain.ErrNotFound)
}

func TestNoConfirmerRefusesDestructiveActions(t *testing.T) {
	w := open(t, newAPI(), nil)
	assert.ErrorIs(t, w.DeleteItem(context.Background(), "i1"), ErrNotConfirmed)
}

func TestCreateColumnAndPlaceTask(t *testing.T) {
	w := open(t, newAPI(), nil)

	col, err := w.CreateColumn(context.Background(), "Review")
	require.NoError(t, err)
	got, ok := w.Store().Column(col.ID)
	require.True(t, ok)
	assert.Equal(t, "Review", got.Name)

	it, err := w.PlaceTask(context.Background(), "t2", "todo")
	require.NoError(t, err)
	_, ok = w.Store().Item(it.ID)
	assert.True(t, ok)
	task, _ := w.Store().Task("t2")
	assert.True(t, task.IsOnBoard)
	assert.Equal(t, it.ID, task.ItemID)
}
