// Package transport owns the single live connection to the Zerg service and
// routes inbound events to per-type handlers.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/michaelluochen/zerg-tui/pkg/errs"
	"github.com/michaelluochen/zerg-tui/pkg/proto"
	"github.com/michaelluochen/zerg-tui/pkg/sio"
)

var (
	errConnectInProgress = errors.New("connect already in progress")
	errConnectAborted    = errors.New("connect aborted by disconnect")
)

// Conn is one established event connection.
type Conn interface {
	Emit(ctx context.Context, name string, payload any) error
	// ReadEvent blocks for the next inbound event. It is called from one goroutine.
	ReadEvent() (string, json.RawMessage, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type DialFunc func(ctx context.Context, url string) (Conn, error)

func (f DialFunc) Dial(ctx context.Context, url string) (Conn, error) { return f(ctx, url) }

// SocketDialer dials Socket.IO endpoints.
type SocketDialer struct {
	Options sio.Options
}

func (d SocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, err := sio.Dial(ctx, url, d.Options)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	}
	return "unknown"
}

// Lifecycle is a connection status change. Intentional is set only when the
// local side asked for the disconnect.
type Lifecycle struct {
	Status      string
	Intentional bool
	Err         error
}

type LifecycleFunc func(Lifecycle)

type Session struct {
	url    string
	dialer Dialer
	log    zerolog.Logger

	mu        sync.Mutex
	state     State
	conn      Conn
	gen       uint64
	handlers  map[string]proto.Handler
	lifecycle []LifecycleFunc
}

// New returns a disconnected session for url. A nil dialer dials Socket.IO.
func New(url string, dialer Dialer, logger zerolog.Logger) *Session {
	if dialer == nil {
		dialer = SocketDialer{Options: sio.DefaultOptions()}
	}
	return &Session{
		url:      url,
		dialer:   dialer,
		log:      logger.With().Str("component", "transport").Str("url", url).Logger(),
		handlers: make(map[string]proto.Handler),
	}
}

func (s *Session) URL() string { return s.url }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MarkReconnecting flags a session that is down and being retried.
func (s *Session) MarkReconnecting() {
	s.mu.Lock()
	if s.state != Connected {
		s.state = Reconnecting
	}
	s.mu.Unlock()
}

// MarkDisconnected settles a session that is no longer being retried.
func (s *Session) MarkDisconnected() {
	s.mu.Lock()
	if s.state == Reconnecting {
		s.state = Disconnected
	}
	s.mu.Unlock()
}

// On installs the handler for eventType, replacing any previous one.
func (s *Session) On(eventType string, h proto.Handler) {
	s.mu.Lock()
	s.handlers[eventType] = h
	s.mu.Unlock()
}

// Off removes the handler for eventType only.
func (s *Session) Off(eventType string) {
	s.mu.Lock()
	delete(s.handlers, eventType)
	s.mu.Unlock()
}

func (s *Session) OnLifecycle(fn LifecycleFunc) {
	s.mu.Lock()
	s.lifecycle = append(s.lifecycle, fn)
	s.mu.Unlock()
}

// Connect dials the service. Connecting an already connected session is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Connected:
		s.mu.Unlock()
		return nil
	case Connecting:
		s.mu.Unlock()
		return &errs.ConnectionError{Op: "connect", URL: s.url, Err: errConnectInProgress}
	}
	fallback := Disconnected
	if s.state == Reconnecting {
		fallback = Reconnecting
	}
	s.state = Connecting
	s.mu.Unlock()

	s.log.Info().Msg("connecting")
	conn, err := s.dialer.Dial(ctx, s.url)
	if err != nil {
		s.mu.Lock()
		if s.state == Connecting {
			s.state = fallback
		}
		s.mu.Unlock()
		s.log.Error().Err(err).Msg("connect failed")
		return &errs.ConnectionError{Op: "connect", URL: s.url, Err: err}
	}

	s.mu.Lock()
	if s.state != Connecting {
		s.mu.Unlock()
		_ = conn.Close()
		return &errs.ConnectionError{Op: "connect", URL: s.url, Err: errConnectAborted}
	}
	s.gen++
	gen := s.gen
	s.conn = conn
	s.state = Connected
	s.mu.Unlock()

	go s.readLoop(conn, gen)
	s.log.Info().Msg("connected")
	s.notify(Lifecycle{Status: proto.StatusConnected})
	return nil
}

// Disconnect closes the connection if there is one. It always leaves the
// session Disconnected and raises an intentional disconnect notification.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.gen++
	s.state = Disconnected
	s.mu.Unlock()

	var err error
	if conn != nil {
		if cerr := conn.Close(); cerr != nil {
			err = &errs.ConnectionError{Op: "disconnect", URL: s.url, Err: cerr}
			s.log.Warn().Err(cerr).Msg("close failed")
		}
		s.log.Info().Msg("disconnected")
	}
	s.notify(Lifecycle{Status: proto.StatusDisconnected, Intentional: true})
	return err
}

// Emit sends one named event.
func (s *Session) Emit(ctx context.Context, eventType string, payload any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return &errs.ConnectionError{Op: "emit " + eventType, URL: s.url, Err: errs.ErrNotConnected}
	}
	if err := conn.Emit(ctx, eventType, payload); err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("emit failed")
		return &errs.ConnectionError{Op: "emit " + eventType, URL: s.url, Err: err}
	}
	s.log.Debug().Str("event", eventType).Msg("emitted")
	return nil
}

func (s *Session) readLoop(conn Conn, gen uint64) {
	for {
		name, raw, err := conn.ReadEvent()
		if err != nil {
			s.lost(gen, err)
			return
		}
		payload := map[string]any{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &payload); err != nil {
				s.log.Debug().Str("event", name).Err(err).Msg("non-object payload dropped")
				continue
			}
		}

		s.mu.Lock()
		current := s.gen == gen
		h := s.handlers[name]
		s.mu.Unlock()
		if !current {
			return
		}
		if h == nil {
			s.log.Debug().Str("event", name).Msg("no handler")
			continue
		}
		h(proto.Event{Type: name, Payload: payload})
	}
}

// lost handles a read failure on the connection of generation gen. Failures
// from connections already replaced or closed locally are ignored.
func (s *Session) lost(gen uint64, cause error) {
	s.mu.Lock()
	if s.gen != gen || s.conn == nil {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.conn = nil
	s.state = Disconnected
	s.mu.Unlock()

	_ = conn.Close()
	s.log.Warn().Err(cause).Msg("connection lost")
	s.notify(Lifecycle{Status: proto.StatusDisconnected, Err: cause})
}

func (s *Session) notify(l Lifecycle) {
	s.mu.Lock()
	fns := append([]LifecycleFunc(nil), s.lifecycle...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(l)
	}
}
