package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/peerrelay/internal/log"
)

// State is the lifecycle stage of a Session.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options tune a Session. Zero durations disable the matching deadline.
type Options struct {
	MaxMessageSize int64
	OutboxLimit    int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingInterval   time.Duration
	RateLimit      RateLimit
	Logger         *log.Logger
	Observer       Observer
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxMessageSize: 512,
		OutboxLimit:    256,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingInterval:   54 * time.Second,
		RateLimit: RateLimit{
			Enabled:  true,
			Burst:    5,
			Interval: time.Second,
		},
	}
}

// errLocalClose stops the writer after it sent a locally requested close.
var errLocalClose = errors.New("session closed locally")

// Session is one accepted connection paired with a fixed peer. Only the
// session's own goroutines touch its transport; other sessions reach it
// through Push.
type Session struct {
	id       string
	peer     string
	instance string
	conn     Conn
	registry *Registry
	opts     Options
	log      *log.Logger
	observer Observer
	limiter  *rate.Limiter

	mu     sync.Mutex
	state  State
	outbox *outbox

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession binds conn to the (self, peer) pair. The session stays in
// StateConnecting and out of the registry until Run is called.
func NewSession(conn Conn, self, peer string, registry *Registry, opts Options) *Session {
	instance := uuid.NewString()

	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger("relay")
	}
	remote := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}

	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	return &Session{
		id:       self,
		peer:     peer,
		instance: instance,
		conn:     conn,
		registry: registry,
		opts:     opts,
		log:      logger.With("self", self, "peer", peer, "conn", instance, "remote", remote),
		observer: observer,
		limiter:  opts.RateLimit.limiter(),
		state:    StateConnecting,
		outbox:   newOutbox(opts.OutboxLimit),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// ID returns the connection id the session is registered under.
func (s *Session) ID() string { return s.id }

// Peer returns the id every inbound message is routed to.
func (s *Session) Peer() string { return s.peer }

// InstanceID distinguishes sessions that reuse the same connection id.
func (s *Session) InstanceID() string { return s.instance }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run registers the session and pumps frames until the transport closes or
// ctx is cancelled. Expected close conditions return nil.
func (s *Session) Run(ctx context.Context) error {
	if !s.open() {
		return ErrSessionClosed
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(s.readPump)
	g.Go(func() error { return s.writePump(gctx) })
	err := g.Wait()

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	s.log.Debug("session closed")
	return err
}

// Push queues env for the writer. It never waits on the transport.
func (s *Session) Push(env Envelope) error {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if !s.outbox.add(env) {
		s.mu.Unlock()
		return ErrOutboxFull
	}
	s.mu.Unlock()

	s.wake()
	return nil
}

// Close asks the writer to send a normal close frame and release the
// transport. The session leaves the registry immediately.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.state = StateClosing
	s.outbox.add(Envelope{Kind: KindClose, From: s.id})
	s.mu.Unlock()

	s.registry.Release(s.id, s)
	s.wake()
	return nil
}

func (s *Session) open() bool {
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return false
	}
	s.state = StateOpen
	s.mu.Unlock()

	s.registry.Register(s.id, s)
	s.observer.SessionOpened()
	s.log.Info("session opened")
	return true
}

// shutdown moves the session to Closing and removes it from the registry.
// The writer stops once done is closed.
func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosing
		s.mu.Unlock()

		s.registry.Release(s.id, s)
		close(s.done)
		s.observer.SessionClosed()
	})
}

func (s *Session) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Session) isOpen() bool {
	return s.State() == StateOpen
}

func (s *Session) deadline(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}

// setupReadConnection applies the read limit and keepalive deadlines.
func (s *Session) setupReadConnection() {
	if s.opts.MaxMessageSize > 0 {
		s.conn.SetReadLimit(s.opts.MaxMessageSize)
	}
	if s.opts.PongWait <= 0 {
		return
	}
	if err := s.conn.SetReadDeadline(s.deadline(s.opts.PongWait)); err != nil {
		s.log.Warn("setting initial read deadline failed", "err", err)
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(s.deadline(s.opts.PongWait))
	})
}

func (s *Session) readPump() error {
	defer s.shutdown()

	s.setupReadConnection()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			return s.handleReadError(err)
		}
		if !s.isOpen() {
			return nil
		}

		s.observer.MessageReceived()
		if !s.checkRateLimit() {
			continue
		}
		s.route(msgType, data)
	}
}

// handleReadError classifies a read failure. Ordinary disconnects return
// nil; anything else is a transport fault for this session only.
func (s *Session) handleReadError(err error) error {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		s.log.Warn("message exceeded maximum size", "limit", s.opts.MaxMessageSize)
		return fmt.Errorf("read: %w", err)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure):
		s.log.Info("peer disconnected", "reason", err)
		return nil
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || isExpectedCloseError(err):
		s.log.Debug("connection closed", "reason", err)
		return nil
	default:
		s.log.Warn("read failed", "err", err)
		return fmt.Errorf("read: %w", err)
	}
}

func (s *Session) checkRateLimit() bool {
	if s.limiter != nil && !s.limiter.Allow() {
		s.observer.MessageDropped(DropRateLimited)
		s.log.Warn("rate limit exceeded; discarding message",
			"burst", s.opts.RateLimit.Burst, "interval", s.opts.RateLimit.Interval)
		return false
	}
	return true
}

// route forwards one inbound frame to the fixed peer. A peer that is not
// registered right now misses the message for good.
func (s *Session) route(msgType int, data []byte) {
	if msgType != websocket.TextMessage || !utf8.Valid(data) {
		s.observer.MessageDropped(DropUnsupportedFrame)
		s.log.Debug("ignoring non-text frame", "type", msgType)
		return
	}

	target, ok := s.registry.Lookup(s.peer)
	if !ok {
		s.observer.MessageDropped(DropPeerOffline)
		s.log.Debug("peer not connected; message dropped")
		return
	}

	err := target.Push(TextEnvelope(s.id, string(data)))
	switch {
	case err == nil:
		s.observer.MessageDelivered()
	case errors.Is(err, ErrOutboxFull):
		s.observer.MessageDropped(DropOutboxFull)
		s.log.Warn("peer outbox full; message dropped")
	default:
		s.observer.MessageDropped(DropPeerClosed)
		s.log.Debug("peer closing; message dropped", "err", err)
	}
}

func (s *Session) writePump(ctx context.Context) error {
	var tick <-chan time.Time
	if s.opts.PingInterval > 0 && s.opts.PongWait > 0 {
		ticker := time.NewTicker(s.opts.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer s.closeConnection()

	for {
		select {
		case <-ctx.Done():
			s.writeClose(websocket.CloseGoingAway, "server shutting down")
			return nil
		case <-s.done:
			s.drainOnExit()
			return nil
		case <-s.notify:
			if err := s.flush(); err != nil {
				if errors.Is(err, errLocalClose) {
					return nil
				}
				return err
			}
		case <-tick:
			if err := s.ping(); err != nil {
				return err
			}
		}
	}
}

// flush writes every queued envelope, one frame each, in queue order.
func (s *Session) flush() error {
	s.mu.Lock()
	batch := s.outbox.drain()
	s.mu.Unlock()

	for _, env := range batch {
		if env.Kind == KindClose {
			s.writeClose(websocket.CloseNormalClosure, "")
			return errLocalClose
		}
		if err := s.writeText(env.Payload()); err != nil {
			return err
		}
	}
	return nil
}

// drainOnExit discards undelivered text but still honours a pending local
// close so the remote side sees a normal closure.
func (s *Session) drainOnExit() {
	s.mu.Lock()
	batch := s.outbox.drain()
	s.mu.Unlock()

	for _, env := range batch {
		if env.Kind == KindClose {
			s.writeClose(websocket.CloseNormalClosure, "")
			return
		}
	}
}

func (s *Session) writeText(payload []byte) error {
	if err := s.conn.SetWriteDeadline(s.deadline(s.opts.WriteWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if isExpectedCloseError(err) {
			s.log.Debug("write after close", "reason", err)
			return nil
		}
		s.log.Warn("write failed", "err", err)
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (s *Session) writeClose(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, s.deadline(s.opts.WriteWait)); err != nil {
		if !isExpectedCloseError(err) {
			s.log.Warn("writing close frame failed", "err", err)
		}
	}
}

func (s *Session) ping() error {
	if err := s.conn.WriteControl(websocket.PingMessage, nil, s.deadline(s.opts.WriteWait)); err != nil {
		if isExpectedCloseError(err) {
			return nil
		}
		s.log.Warn("writing ping failed", "err", err)
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func (s *Session) closeConnection() {
	if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
		s.log.Warn("closing connection failed", "err", err)
	}
}
