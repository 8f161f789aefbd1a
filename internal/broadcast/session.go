package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// SessionState tracks a viewer session: Connecting -> Subscribed -> Disconnected.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateSubscribed
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Session is one connected viewer
type Session struct {
	id     uuid.UUID
	conn   *websocket.Conn
	sendCh chan []byte
	done   chan struct{}
	state  atomic.Int32
	once   sync.Once

	writeTimeout time.Duration
	pingPeriod   time.Duration
}

func newSession(conn *websocket.Conn, cfg HubConfig) *Session {
	return &Session{
		id:           uuid.New(),
		conn:         conn,
		sendCh:       make(chan []byte, cfg.SendBuffer),
		done:         make(chan struct{}),
		writeTimeout: cfg.WriteTimeout,
		pingPeriod:   cfg.PingPeriod,
	}
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// enqueue hands a frame to the writer without blocking
func (s *Session) enqueue(data []byte) bool {
	select {
	case s.sendCh <- data:
		return true
	default:
		return false
	}
}

func (s *Session) run() {
	ping := time.NewTicker(s.pingPeriod)
	defer ping.Stop()

	for {
		select {
		case msg := <-s.sendCh:
			s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				// The read pump sees the closed conn and unsubscribes.
				s.conn.Close()
				return
			}
		case <-ping.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout)); err != nil {
				s.conn.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// close is safe to call more than once
func (s *Session) close() {
	s.once.Do(func() {
		s.state.Store(int32(StateDisconnected))
		close(s.done)
		s.conn.Close()
	})
}
