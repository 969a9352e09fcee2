package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/linkfield/linkfield-api/internal/observability"
)

const (
	sessionSendBufferSize = 32
	sessionKeepalive      = 30 * time.Second
)

// wsConn is the slice of the websocket connection the session uses. Tests
// substitute in-memory fakes.
type wsConn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// session is one live transport connection for a resolved user. A user may
// hold several sessions at once (multi-device).
type session struct {
	id       string
	userID   uint
	userName string
	conn     wsConn
	send     chan Event
	gateway  *Gateway
	baseCtx  context.Context

	mu    sync.Mutex
	rooms map[Room]struct{}

	keepalive time.Duration

	closed chan struct{}
	once   sync.Once
}

func newSession(id string, userID uint, userName string, conn wsConn, gateway *Gateway, baseCtx context.Context) *session {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &session{
		id:        id,
		userID:    userID,
		userName:  userName,
		conn:      conn,
		send:      make(chan Event, sessionSendBufferSize),
		gateway:   gateway,
		baseCtx:   baseCtx,
		rooms:     make(map[Room]struct{}),
		keepalive: sessionKeepalive,
		closed:    make(chan struct{}),
	}
}

// deliver queues an event for the session without blocking. A slow or dead
// consumer drops the event; the durable record remains fetchable over REST.
func (s *session) deliver(event Event) {
	select {
	case <-s.closed:
	case s.send <- event:
	default:
		observability.RealtimeDropped().WithLabelValues("slow_consumer").Inc()
		s.gateway.logger.Warn().Str("conn_id", s.id).Uint("user_id", s.userID).Str("event", event.Type).Msg("dropping event for slow session")
	}
}

func (s *session) trackRoom(room Room) {
	s.mu.Lock()
	s.rooms[room] = struct{}{}
	s.mu.Unlock()
}

func (s *session) forgetRoom(room Room) {
	s.mu.Lock()
	delete(s.rooms, room)
	s.mu.Unlock()
}

func (s *session) joinedRooms() []Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Room, 0, len(s.rooms))
	for room := range s.rooms {
		out = append(out, room)
	}
	return out
}

func (s *session) reader() {
	defer s.close()

	for {
		var frame Frame
		if err := s.conn.ReadJSON(&frame); err != nil {
			s.gateway.logger.Debug().Err(err).Str("conn_id", s.id).Msg("session read loop ended")
			return
		}
		s.gateway.dispatch(s.baseCtx, s, frame)
	}
}

func (s *session) writer() {
	defer s.close()

	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-s.send:
			if !ok {
				return
			}
			if err := s.conn.WriteJSON(event); err != nil {
				s.gateway.logger.Debug().Err(err).Str("conn_id", s.id).Msg("session write loop terminated")
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				s.gateway.logger.Debug().Err(err).Str("conn_id", s.id).Msg("session ping failed")
				return
			}
		case <-s.closed:
			return
		}
	}
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.closed)
		s.gateway.removeSession(s)
		_ = s.conn.Close()
	})
}
