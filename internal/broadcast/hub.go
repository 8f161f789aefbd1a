package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/rch-registry/internal/model"
	"github.com/jwalitptl/rch-registry/pkg/metrics"
)

// ErrHubFull is returned by Subscribe when MaxSessions is reached.
var ErrHubFull = fmt.Errorf("maximum viewer sessions reached")

// ErrHubStopped is returned by Subscribe after Stop.
var ErrHubStopped = fmt.Errorf("broadcast hub stopped")

type HubConfig struct {
	MaxSessions  int
	SendBuffer   int
	QueueSize    int
	WriteTimeout time.Duration
	PingPeriod   time.Duration
	// PongWait bounds how long a silent peer stays subscribed
	PongWait time.Duration
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		MaxSessions:  1000,
		SendBuffer:   16,
		QueueSize:    256,
		WriteTimeout: 5 * time.Second,
		PingPeriod:   30 * time.Second,
		PongWait:     60 * time.Second,
	}
}

// --- Command types ---

type hubCmd interface{ hubCmd() }

type cmdSubscribe struct {
	session *Session
	errCh   chan error
}

func (cmdSubscribe) hubCmd() {}

type cmdUnsubscribe struct {
	session *Session
}

func (cmdUnsubscribe) hubCmd() {}

type cmdBroadcast struct {
	event string
	data  []byte
}

func (cmdBroadcast) hubCmd() {}

type cmdSessionCount struct {
	replyCh chan int
}

func (cmdSessionCount) hubCmd() {}

type cmdStop struct{}

func (cmdStop) hubCmd() {}

// --- Hub ---

type Hub struct {
	cfg      HubConfig
	cmdCh    chan hubCmd
	sessions map[*Session]struct{}
	done     chan struct{}
	stopped  atomic.Bool
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

func NewHub(cfg HubConfig, m *metrics.Metrics, log zerolog.Logger) *Hub {
	def := DefaultHubConfig()
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = def.MaxSessions
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = def.PingPeriod
	}
	if cfg.PongWait <= cfg.PingPeriod {
		cfg.PongWait = 2 * cfg.PingPeriod
	}
	if m == nil {
		m = metrics.NewNop()
	}

	h := &Hub{
		cfg:      cfg,
		cmdCh:    make(chan hubCmd, cfg.QueueSize),
		sessions: make(map[*Session]struct{}),
		done:     make(chan struct{}),
		metrics:  m,
		log:      log.With().Str("component", "broadcast").Logger(),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.done)
	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case cmdSubscribe:
			h.handleSubscribe(c)
		case cmdUnsubscribe:
			h.handleUnsubscribe(c.session)
		case cmdBroadcast:
			h.handleBroadcast(c)
		case cmdSessionCount:
			c.replyCh <- len(h.sessions)
		case cmdStop:
			h.handleStop()
			return
		}
	}
}

func (h *Hub) handleSubscribe(c cmdSubscribe) {
	if len(h.sessions) >= h.cfg.MaxSessions {
		h.log.Warn().Int("max_sessions", h.cfg.MaxSessions).Msg("rejecting viewer: hub full")
		c.session.close()
		c.errCh <- ErrHubFull
		return
	}

	h.sessions[c.session] = struct{}{}
	c.session.state.Store(int32(StateSubscribed))
	// Queued ahead of any broadcast this session can receive
	if ack, err := json.Marshal(model.Envelope{
		Event: model.EventSubscribed,
		Data:  model.SubscribedAck{SessionID: c.session.id.String()},
	}); err == nil {
		c.session.enqueue(ack)
	}
	go c.session.run()

	h.metrics.ViewerSessions.Set(float64(len(h.sessions)))
	h.log.Debug().Str("session_id", c.session.id.String()).Int("sessions", len(h.sessions)).Msg("viewer subscribed")
	c.errCh <- nil
}

func (h *Hub) handleUnsubscribe(s *Session) {
	if _, ok := h.sessions[s]; !ok {
		s.close()
		return
	}
	delete(h.sessions, s)
	s.close()

	h.metrics.ViewerSessions.Set(float64(len(h.sessions)))
	h.log.Debug().Str("session_id", s.id.String()).Int("sessions", len(h.sessions)).Msg("viewer unsubscribed")
}

func (h *Hub) handleBroadcast(c cmdBroadcast) {
	var slow []*Session
	for s := range h.sessions {
		if !s.enqueue(c.data) {
			slow = append(slow, s)
		}
	}

	for _, s := range slow {
		h.log.Warn().Str("session_id", s.id.String()).Str("event", c.event).Msg("disconnecting slow viewer")
		h.metrics.BroadcastsDropped.WithLabelValues("slow_session").Inc()
		h.handleUnsubscribe(s)
	}

	h.metrics.BroadcastsPublished.Inc()
	h.log.Debug().Str("event", c.event).Int("sessions", len(h.sessions)).Msg("event broadcast")
}

func (h *Hub) handleStop() {
	for s := range h.sessions {
		s.close()
		delete(h.sessions, s)
	}
	h.metrics.ViewerSessions.Set(0)
}

// --- Public API ---

// Upgraded connections enter here. The returned session receives every
// event published after Subscribe returns; nothing earlier is replayed.
func (h *Hub) Subscribe(conn *websocket.Conn) (*Session, error) {
	s := newSession(conn, h.cfg)
	if h.stopped.Load() {
		s.close()
		return nil, ErrHubStopped
	}

	errCh := make(chan error, 1)
	select {
	case h.cmdCh <- cmdSubscribe{session: s, errCh: errCh}:
	case <-h.done:
		s.close()
		return nil, ErrHubStopped
	}

	select {
	case err := <-errCh:
		if err != nil {
			return nil, err
		}
		return s, nil
	case <-h.done:
		s.close()
		return nil, ErrHubStopped
	}
}

// Unsubscribe removes the session and closes its connection. Idempotent.
func (h *Hub) Unsubscribe(s *Session) {
	if s == nil {
		return
	}
	if h.stopped.Load() {
		s.close()
		return
	}
	select {
	case h.cmdCh <- cmdUnsubscribe{session: s}:
	case <-h.done:
		s.close()
	}
}

// ServeSession pumps inbound frames until the peer goes away, then
// unsubscribes. Viewers do not send anything meaningful; reading keeps
// control frames (ping/pong/close) flowing.
func (h *Hub) ServeSession(s *Session) {
	defer h.Unsubscribe(s)

	s.conn.SetReadLimit(4096)
	s.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("session_id", s.id.String()).Msg("viewer connection closed")
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	}
}

// Publish implements messaging.Publisher. It wraps payload in the event
// envelope and queues it for every subscribed session. It never blocks:
// when the queue is full or the hub is stopped the event is dropped and
// nil is returned. Only an unencodable payload is reported.
func (h *Hub) Publish(_ context.Context, event string, payload interface{}) error {
	data, err := json.Marshal(model.Envelope{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event, err)
	}

	if h.stopped.Load() {
		h.metrics.BroadcastsDropped.WithLabelValues("hub_stopped").Inc()
		return nil
	}

	select {
	case h.cmdCh <- cmdBroadcast{event: event, data: data}:
	default:
		h.metrics.BroadcastsDropped.WithLabelValues("queue_full").Inc()
		h.log.Warn().Str("event", event).Msg("broadcast queue full, dropping event")
	}
	return nil
}

// SessionCount returns the number of subscribed sessions, or 0 once stopped.
func (h *Hub) SessionCount() int {
	if h.stopped.Load() {
		return 0
	}
	replyCh := make(chan int, 1)
	select {
	case h.cmdCh <- cmdSessionCount{replyCh: replyCh}:
	case <-h.done:
		return 0
	}
	select {
	case n := <-replyCh:
		return n
	case <-h.done:
		return 0
	}
}

// Stop closes every session and waits for the hub goroutine to exit.
func (h *Hub) Stop() {
	if !h.stopped.CompareAndSwap(false, true) {
		<-h.done
		return
	}
	h.cmdCh <- cmdStop{}
	<-h.done
	h.log.Info().Msg("broadcast hub stopped")
}
