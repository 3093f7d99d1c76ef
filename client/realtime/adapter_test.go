package realtime

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prism-board/client/board"
	"prism-board/domain"
)

type countingFetcher struct {
	loads atomic.Int32
	board domain.Board
}

func (f *countingFetcher) FetchBoard(context.Context, string) (domain.Board, error) {
	f.loads.Add(1)
	return f.board, nil
}

func (f *countingFetcher) FetchTasks(context.Context, string) ([]domain.Task, error) {
	return nil, nil
}

func TestAttachMergesRoomEvents(t *testing.T) {
	conn := newFakeConn()
	bus := NewBus(&fakeDialer{conns: []*fakeConn{conn}}, WithRetryer(fastRetry()))
	defer bus.Close()

	fetcher := &countingFetcher{board: domain.Board{
		Columns: []domain.Column{{ID: "todo", ProjectID: "p1", Name: "Todo"}},
	}}
	store := board.New("p1", nil)
	require.NoError(t, store.Load(context.Background(), fetcher))

	ps, err := Attach(context.Background(), bus, store, fetcher, nil)
	require.NoError(t, err)
	defer ps.Close()
	bus.SetCredentials("token-1")
	require.Eventually(t, func() bool { return len(conn.Control()) == 1 }, time.Second, 5*time.Millisecond)

	col := domain.Column{ID: "done", ProjectID: "p1", Name: "Done", Order: 1}
	conn.push(t, domain.Room("p1"), domain.Event{Type: domain.ColumnCreated, ProjectID: "p1", Column: &col})
	require.Eventually(t, func() bool { return len(store.Columns()) == 2 }, time.Second, 5*time.Millisecond)

	// Without the project discriminator the event is dropped.
	conn.push(t, domain.Room("p1"), domain.Event{Type: domain.ColumnDeleted, ColumnID: "todo"})
	conn.push(t, domain.Room("p1"), domain.Event{Type: domain.BoardRefetchNeeded, ProjectID: "p1"})
	require.Eventually(t, func() bool { return fetcher.loads.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []domain.Column{{ID: "todo", ProjectID: "p1", Name: "Todo"}}, store.Columns())
}

func TestSyncCloseLeavesRoom(t *testing.T) {
	conn := newFakeConn()
	bus := NewBus(&fakeDialer{conns: []*fakeConn{conn}}, WithRetryer(fastRetry()))
	defer bus.Close()
	bus.SetCredentials("token-1")
	require.Eventually(t, bus.Connected, time.Second, 5*time.Millisecond)

	ps, err := Attach(context.Background(), bus, board.New("p1", nil), &countingFetcher{}, nil)
	require.NoError(t, err)
	ps.Close()

	control := conn.Control()
	require.Len(t, control, 2)
	assert.Equal(t, domain.ActionLeave, control[1].Action)
}
