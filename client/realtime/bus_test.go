package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prism-board/domain"
)

var errConnClosed = errors.New("connection closed")

// fakeConn feeds frames pushed by the test and records control frames.
type fakeConn struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	control []domain.ControlMessage
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.frames:
		return 1, data, nil
	case <-c.closed:
		return 0, nil, errConnClosed
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.control = append(c.control, v.(domain.ControlMessage))
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) Control() []domain.ControlMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ControlMessage(nil), c.control...)
}

func (c *fakeConn) push(t *testing.T, room string, ev domain.Event) {
	t.Helper()
	data, err := json.Marshal(domain.Envelope{Room: room, Event: ev})
	require.NoError(t, err)
	c.frames <- data
}

// fakeDialer hands out queued connections, failing when none are left.
type fakeDialer struct {
	mu     sync.Mutex
	conns  []*fakeConn
	tokens []string
}

func (d *fakeDialer) Dial(_ context.Context, token string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens = append(d.tokens, token)
	if len(d.conns) == 0 {
		return nil, errors.New("connection refused")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func (d *fakeDialer) Tokens() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.tokens...)
}

func fastRetry() Retryer {
	return &Backoff{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestSubscribeRejectsInvalidRoom(t *testing.T) {
	b := NewBus(&fakeDialer{})
	_, err := b.Subscribe("user_1", func(domain.Event) {})
	assert.ErrorIs(t, err, ErrInvalidRoom)
}

func TestBusJoinsOnConnectAndDispatches(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	b := NewBus(dialer, WithRetryer(fastRetry()))
	defer b.Close()

	got := make(chan domain.Event, 4)
	sub, err := b.Subscribe(domain.Room("p1"), func(ev domain.Event) { got <- ev })
	require.NoError(t, err)
	defer sub.Close()

	b.SetCredentials("token-1")
	require.Eventually(t, func() bool { return len(conn.Control()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.ControlMessage{Action: domain.ActionJoin, Room: "project_p1"}, conn.Control()[0])
	assert.Equal(t, []string{"token-1"}, dialer.Tokens())

	conn.frames <- []byte("{garbage")
	conn.push(t, domain.Room("p2"), domain.Event{Type: domain.ItemDeleted, ProjectID: "p2", ItemID: "x"})
	conn.push(t, domain.Room("p1"), domain.Event{Type: domain.ItemDeleted, ProjectID: "p1", ItemID: "i1"})

	select {
	case ev := <-got:
		assert.Equal(t, "i1", ev.ItemID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	assert.Empty(t, got)
}

func TestBusRejoinsAfterReconnect(t *testing.T) {
	first, second := newFakeConn(), newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{first, second}}
	b := NewBus(dialer, WithRetryer(fastRetry()))
	defer b.Close()

	_, err := b.Subscribe(domain.Room("p1"), func(domain.Event) {})
	require.NoError(t, err)
	_, err = b.Subscribe(domain.Room("p2"), func(domain.Event) {})
	require.NoError(t, err)

	b.SetCredentials("token-1")
	require.Eventually(t, func() bool { return len(first.Control()) == 2 }, time.Second, 5*time.Millisecond)

	_ = first.Close()
	require.Eventually(t, func() bool { return len(second.Control()) == 2 }, time.Second, 5*time.Millisecond)
	rooms := []string{second.Control()[0].Room, second.Control()[1].Room}
	assert.ElementsMatch(t, []string{"project_p1", "project_p2"}, rooms)
}

func TestBusRetriesFailedDials(t *testing.T) {
	dialer := &fakeDialer{}
	b := NewBus(dialer, WithRetryer(&Backoff{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1, MaxRetries: 3}))
	defer b.Close()

	b.SetCredentials("token-1")
	require.Eventually(t, func() bool { return len(dialer.Tokens()) == 4 }, time.Second, 5*time.Millisecond)
	assert.False(t, b.Connected())
}

func TestBusUnsubscribeLeavesRoom(t *testing.T) {
	conn := newFakeConn()
	b := NewBus(&fakeDialer{conns: []*fakeConn{conn}}, WithRetryer(fastRetry()))
	defer b.Close()
	b.SetCredentials("token-1")
	require.Eventually(t, b.Connected, time.Second, 5*time.Millisecond)

	a, err := b.Subscribe(domain.Room("p1"), func(domain.Event) {})
	require.NoError(t, err)
	c, err := b.Subscribe(domain.Room("p1"), func(domain.Event) {})
	require.NoError(t, err)

	a.Close()
	a.Close()
	assert.Len(t, conn.Control(), 1, "room stays joined while a subscription remains")
	b.Unsubscribe(c)
	control := conn.Control()
	require.Len(t, control, 2)
	assert.Equal(t, domain.ControlMessage{Action: domain.ActionLeave, Room: "project_p1"}, control[1])
}

func TestBusEmptyCredentialsDisconnect(t *testing.T) {
	conn := newFakeConn()
	b := NewBus(&fakeDialer{conns: []*fakeConn{conn}}, WithRetryer(fastRetry()))
	b.SetCredentials("token-1")
	require.Eventually(t, b.Connected, time.Second, 5*time.Millisecond)

	b.SetCredentials("")
	assert.False(t, b.Connected())
	select {
	case <-conn.closed:
	default:
		t.Fatal("connection left open after credentials were cleared")
	}
}

func TestBusCloseStopsConcurrentConnects(t *testing.T) {
	for round := 0; round < 20; round++ {
		dialer := &fakeDialer{}
		b := NewBus(dialer, WithRetryer(fastRetry()))

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				b.SetCredentials(fmt.Sprintf("token-%d", i))
			}(i)
		}
		wg.Wait()
		require.Eventually(t, func() bool { return len(dialer.Tokens()) > 0 }, time.Second, time.Millisecond)
		b.Close()

		dialed := len(dialer.Tokens())
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, dialed, len(dialer.Tokens()), "round %d: dialing continued after Close", round)
		assert.False(t, b.Connected())
	}
}
