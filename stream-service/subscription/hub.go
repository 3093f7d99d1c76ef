// Package subscription fans board events from Redis pub/sub out to WebSocket clients
// grouped by project room.
package subscription

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"prism-board/domain"
)

const (
	defaultClientBuffer = 64
	resubscribeDelay    = time.Second
)

// Client is one connected observer. Frames are delivered through a buffered
// channel; a client that falls behind misses frames rather than blocking others.
type Client struct {
	send  chan []byte
	rooms map[string]struct{}
}

func NewClient(buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultClientBuffer
	}
	return &Client{send: make(chan []byte, buffer), rooms: make(map[string]struct{})}
}

// Frames returns the channel of encoded envelopes destined for the client.
func (c *Client) Frames() <-chan []byte {
	return c.send
}

// Hub tracks room membership and mirrors it onto Redis channel subscriptions.
type Hub struct {
	rc     *redis.Client
	logger *log.Logger

	mu     sync.Mutex
	rooms  map[string]map[*Client]struct{}
	pubsub *redis.PubSub
}

func NewHub(rc *redis.Client, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Hub{rc: rc, logger: logger, rooms: make(map[string]map[*Client]struct{})}
}

// Join adds the client to room, subscribing to the room's channel for its first member.
func (h *Hub) Join(ctx context.Context, c *Client, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
		if h.pubsub != nil {
			if err := h.pubsub.Subscribe(ctx, room); err != nil {
				delete(h.rooms, room)
				return err
			}
		}
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
	return nil
}

// Leave removes the client from room, unsubscribing when the room empties.
func (h *Hub) Leave(ctx context.Context, c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(ctx, c, room)
}

// Drop removes the client from every room it joined.
func (h *Hub) Drop(ctx context.Context, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range c.rooms {
		h.leaveLocked(ctx, c, room)
	}
}

func (h *Hub) leaveLocked(ctx context.Context, c *Client, room string) {
	delete(c.rooms, room)
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) > 0 {
		return
	}
	delete(h.rooms, room)
	if h.pubsub != nil {
		if err := h.pubsub.Unsubscribe(ctx, room); err != nil {
			h.logger.WithError(err).WithField("room", room).Warn("unsubscribe failed")
		}
	}
}

// Members reports how many clients are joined to room.
func (h *Hub) Members(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

// Run consumes Redis messages until ctx is done, resubscribing every open room
// whenever the pub/sub channel closes.
func (h *Hub) Run(ctx context.Context) {
	for {
		h.mu.Lock()
		rooms := make([]string, 0, len(h.rooms))
		for room := range h.rooms {
			rooms = append(rooms, room)
		}
		sub := h.rc.Subscribe(ctx, rooms...)
		h.pubsub = sub
		h.mu.Unlock()

		h.consume(ctx, sub.Channel())

		h.mu.Lock()
		h.pubsub = nil
		h.mu.Unlock()
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		h.logger.Error("pubsub channel closed, reconnecting")
		if !pause(ctx, resubscribeDelay) {
			return
		}
	}
}

// pause waits for d and reports false if ctx ended first.
func pause(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (h *Hub) consume(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.dispatch(msg.Channel, msg.Payload)
		}
	}
}

type frame struct {
	Room  string          `json:"room"`
	Event json.RawMessage `json:"event"`
}

func (h *Hub) dispatch(room, payload string) {
	if !json.Valid([]byte(payload)) {
		h.logger.WithField("room", room).Warn("dropping malformed board event")
		return
	}
	data, err := json.Marshal(frame{Room: room, Event: json.RawMessage(payload)})
	if err != nil {
		h.logger.WithError(err).Error("encode frame")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[room] {
		select {
		case c.send <- data:
		default:
			h.logger.WithField("room", room).Debug("client buffer full, dropping frame")
		}
	}
}

// Valid reports whether room names a project room.
func Valid(room string) bool {
	_, ok := domain.ProjectFromRoom(room)
	return ok
}
