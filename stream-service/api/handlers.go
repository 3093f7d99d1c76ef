package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"prism-board/domain"
	"prism-board/stream-service/subscription"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxFrame   = 4 << 10
)

// Authenticator authenticates the upgrade request.
type Authenticator interface {
	UserIDFromRequest(r *http.Request) (string, error)
}

// Rooms is the room registry connections join and leave.
type Rooms interface {
	Join(ctx context.Context, c *subscription.Client, room string) error
	Leave(ctx context.Context, c *subscription.Client, room string)
	Drop(ctx context.Context, c *subscription.Client)
}

type Option func(*server)

// WithClientBuffer sets how many frames a connection may queue before it
// starts missing events.
func WithClientBuffer(n int) Option {
	return func(s *server) { s.clientBuffer = n }
}

// Register wires up the WebSocket endpoint on the given Echo instance.
func Register(e *echo.Echo, rooms Rooms, auth Authenticator, logger *log.Logger, opts ...Option) {
	s := newServer(rooms, auth, logger, opts...)
	e.GET("/ws", s.serveWS)
	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
}

func newServer(rooms Rooms, auth Authenticator, logger *log.Logger, opts ...Option) *server {
	if logger == nil {
		logger = log.StandardLogger()
	}
	s := &server{
		rooms:  rooms,
		auth:   auth,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type server struct {
	rooms        Rooms
	auth         Authenticator
	logger       *log.Logger
	upgrader     websocket.Upgrader
	clientBuffer int
}

func (s *server) serveWS(c echo.Context) error {
	userID, err := s.auth.UserIDFromRequest(c.Request())
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already replied to the client.
		s.logger.WithError(err).Debug("websocket upgrade failed")
		return nil
	}
	logger := s.logger.WithField("user", userID)
	logger.Debug("websocket connected")

	client := subscription.NewClient(s.clientBuffer)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop(ctx, conn, client, logger)
	}()

	s.readLoop(ctx, conn, client, logger)
	cancel()
	s.rooms.Drop(context.Background(), client)
	<-done
	_ = conn.Close()
	logger.Debug("websocket disconnected")
	return nil
}

func (s *server) readLoop(ctx context.Context, conn *websocket.Conn, client *subscription.Client, logger *log.Entry) {
	conn.SetReadLimit(maxFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg domain.ControlMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.WithError(err).Debug("websocket read failed")
			}
			return
		}
		if !subscription.Valid(msg.Room) {
			logger.WithField("room", msg.Room).Debug("ignoring control message for invalid room")
			continue
		}
		switch msg.Action {
		case domain.ActionJoin:
			if err := s.rooms.Join(ctx, client, msg.Room); err != nil {
				logger.WithError(err).WithField("room", msg.Room).Error("join room")
			}
		case domain.ActionLeave:
			s.rooms.Leave(ctx, client, msg.Room)
		default:
			logger.WithField("action", msg.Action).Debug("ignoring unknown control action")
		}
	}
}

func (s *server) writeLoop(ctx context.Context, conn *websocket.Conn, client *subscription.Client, logger *log.Entry) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case data := <-client.Frames():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.WithError(err).Debug("websocket write failed")
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
