// Package realtime keeps a client subscribed to board rooms on the stream
// service and feeds their events into a board store.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"prism-board/domain"
)

var ErrInvalidRoom = errors.New("realtime: invalid room")

// Conn is one open connection to the stream service.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	Close() error
}

// Dialer opens connections authenticated with token.
type Dialer interface {
	Dial(ctx context.Context, token string) (Conn, error)
}

type Handler func(domain.Event)

// Subscription is a handler registered for one room.
type Subscription struct {
	bus     *Bus
	room    string
	handler Handler
	once    sync.Once
}

func (s *Subscription) Room() string {
	return s.room
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.bus.unsubscribe(s) })
}

type BusOption func(*Bus)

func WithRetryer(r Retryer) BusOption {
	return func(b *Bus) { b.retryer = r }
}

func WithBusLogger(logger *log.Logger) BusOption {
	return func(b *Bus) { b.logger = logger }
}

// Bus multiplexes room subscriptions over a single connection. It connects
// while credentials are present and rejoins every open room after a reconnect.
type Bus struct {
	dialer  Dialer
	retryer Retryer
	logger  *log.Logger

	// life serialises connection lifecycle changes; mu guards the fields below.
	life sync.Mutex

	mu     sync.Mutex
	token  string
	conn   Conn
	rooms  map[string]map[*Subscription]struct{}
	stop   context.CancelFunc
	done   chan struct{}
	closed bool
}

func NewBus(dialer Dialer, opts ...BusOption) *Bus {
	b := &Bus{
		dialer:  dialer,
		retryer: NewBackoff(),
		logger:  log.StandardLogger(),
		rooms:   make(map[string]map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetCredentials connects with token, reconnecting if it changed. An empty
// token disconnects.
func (b *Bus) SetCredentials(token string) {
	b.life.Lock()
	defer b.life.Unlock()

	b.mu.Lock()
	if b.closed || token == b.token {
		b.mu.Unlock()
		return
	}
	b.token = token
	b.mu.Unlock()

	b.halt()
	if token == "" {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	b.mu.Lock()
	b.stop, b.done = cancel, done
	b.mu.Unlock()
	go func() {
		defer close(done)
		b.run(ctx, token)
	}()
}

// Connected reports whether a connection is currently open.
func (b *Bus) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// Subscribe registers handler for events of room.
func (b *Bus) Subscribe(room string, handler Handler) (*Subscription, error) {
	if _, ok := domain.ProjectFromRoom(room); !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRoom, room)
	}
	sub := &Subscription{bus: b, room: room, handler: handler}
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.rooms[room]
	if !ok {
		subs = make(map[*Subscription]struct{})
		b.rooms[room] = subs
		b.sendLocked(domain.ActionJoin, room)
	}
	subs[sub] = struct{}{}
	return sub, nil
}

// Unsubscribe is the same as sub.Close.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub != nil {
		sub.Close()
	}
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.rooms[sub.room]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.rooms, sub.room)
		b.sendLocked(domain.ActionLeave, sub.room)
	}
}

// Close disconnects and stops reconnecting for good.
func (b *Bus) Close() {
	b.life.Lock()
	defer b.life.Unlock()

	b.mu.Lock()
	b.closed = true
	b.token = ""
	b.mu.Unlock()
	b.halt()
}

func (b *Bus) halt() {
	// Cancelling under the lock means attach either already installed its
	// conn or will see the cancelled context.
	b.mu.Lock()
	stop, done := b.stop, b.done
	b.stop, b.done = nil, nil
	if stop != nil {
		stop()
	}
	conn := b.conn
	b.mu.Unlock()
	if stop == nil {
		return
	}
	if conn != nil {
		_ = conn.Close()
	}
	<-done
}

func (b *Bus) run(ctx context.Context, token string) {
	attempt := 0
	for {
		conn, err := b.dialer.Dial(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay, ok := b.retryer.NextDelay(attempt, err)
			if !ok {
				b.logger.WithError(err).Error("giving up reconnecting to stream service")
				return
			}
			attempt++
			b.logger.WithError(err).WithField("retry_in", delay).Warn("stream service dial failed")
			if !sleep(ctx, delay) {
				return
			}
			continue
		}
		attempt = 0
		b.retryer.Reset()

		if !b.attach(ctx, conn) {
			_ = conn.Close()
			return
		}
		b.read(conn)
		b.detach(conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		b.logger.Info("stream service connection lost, reconnecting")
	}
}

// attach installs conn and rejoins every open room.
func (b *Bus) attach(ctx context.Context, conn Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	b.conn = conn
	for room := range b.rooms {
		b.sendLocked(domain.ActionJoin, room)
	}
	return true
}

func (b *Bus) detach(conn Conn) {
	b.mu.Lock()
	if b.conn == conn {
		b.conn = nil
	}
	b.mu.Unlock()
}

// sendLocked writes a control frame if connected. A failed write surfaces as
// a read error, and the rejoin after reconnecting covers the lost frame.
func (b *Bus) sendLocked(action, room string) {
	if b.conn == nil {
		return
	}
	if err := b.conn.WriteJSON(domain.ControlMessage{Action: action, Room: room}); err != nil {
		b.logger.WithError(err).WithField("room", room).Warn("send control frame")
	}
}

func (b *Bus) read(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			b.logger.WithError(err).Debug("stream read ended")
			return
		}
		b.dispatch(data)
	}
}

func (b *Bus) dispatch(data []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Room == "" || env.Event.Type == "" {
		b.logger.WithField("frame", string(data)).Debug("dropping malformed frame")
		return
	}
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.rooms[env.Room]))
	for sub := range b.rooms[env.Room] {
		handlers = append(handlers, sub.handler)
	}
	b.mu.Unlock()
	for _, h := range handlers {
		h(env.Event)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
