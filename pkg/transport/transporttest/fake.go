// Package transporttest provides in-memory connections for tests.
package transporttest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/michaelluochen/zerg-tui/pkg/proto"
	"github.com/michaelluochen/zerg-tui/pkg/transport"
)

var ErrDialRefused = errors.New("transporttest: dial refused")

type frame struct {
	name string
	raw  json.RawMessage
	err  error
}

// Conn is a scripted connection. Events queued with Push are returned by
// ReadEvent in order.
type Conn struct {
	inbound chan frame
	done    chan struct{}
	once    sync.Once

	mu      sync.Mutex
	sent    []proto.Event
	emitErr error
	onEmit  func(c *Conn, ev proto.Event)
}

func NewConn() *Conn {
	return &Conn{
		inbound: make(chan frame, 64),
		done:    make(chan struct{}),
	}
}

// Respond installs a hook run synchronously after every successful Emit.
func (c *Conn) Respond(fn func(c *Conn, ev proto.Event)) {
	c.mu.Lock()
	c.onEmit = fn
	c.mu.Unlock()
}

func (c *Conn) FailEmits(err error) {
	c.mu.Lock()
	c.emitErr = err
	c.mu.Unlock()
}

// Push queues an inbound event.
func (c *Conn) Push(name string, payload any) {
	var raw json.RawMessage
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	select {
	case c.inbound <- frame{name: name, raw: raw}:
	case <-c.done:
	}
}

// Drop makes the next read fail as a lost connection would.
func (c *Conn) Drop(err error) {
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	select {
	case c.inbound <- frame{err: err}:
	case <-c.done:
	}
}

func (c *Conn) Emit(ctx context.Context, name string, payload any) error {
	c.mu.Lock()
	if c.emitErr != nil {
		err := c.emitErr
		c.mu.Unlock()
		return err
	}
	m, _ := proto.ToMap(payload)
	ev := proto.Event{Type: name, Payload: m}
	c.sent = append(c.sent, ev)
	fn := c.onEmit
	c.mu.Unlock()
	if fn != nil {
		fn(c, ev)
	}
	return nil
}

func (c *Conn) ReadEvent() (string, json.RawMessage, error) {
	select {
	case f := <-c.inbound:
		return f.name, f.raw, f.err
	case <-c.done:
		return "", nil, io.EOF
	}
}

func (c *Conn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Sent returns the events emitted so far.
func (c *Conn) Sent() []proto.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]proto.Event(nil), c.sent...)
}

// SentTypes returns the names of emitted events in order.
func (c *Conn) SentTypes() []string {
	var out []string
	for _, ev := range c.Sent() {
		out = append(out, ev.Type)
	}
	return out
}

// Dialer hands out a fresh Conn per successful dial. Errors queued with
// FailNext are returned first, one per dial.
type Dialer struct {
	mu     sync.Mutex
	queued []error
	always error
	onConn func(*Conn)
	conns  []*Conn
	calls  int
}

var _ transport.Dialer = (*Dialer)(nil)

func (d *Dialer) FailNext(errs ...error) {
	d.mu.Lock()
	d.queued = append(d.queued, errs...)
	d.mu.Unlock()
}

// FailAlways makes every dial fail with err; nil restores success.
func (d *Dialer) FailAlways(err error) {
	d.mu.Lock()
	d.always = err
	d.mu.Unlock()
}

// OnConn runs fn on every new connection before it is returned.
func (d *Dialer) OnConn(fn func(*Conn)) {
	d.mu.Lock()
	d.onConn = fn
	d.mu.Unlock()
}

func (d *Dialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(d.queued) > 0 {
		err := d.queued[0]
		d.queued = d.queued[1:]
		if err != nil {
			return nil, err
		}
	} else if d.always != nil {
		return nil, d.always
	}
	c := NewConn()
	if d.onConn != nil {
		d.onConn(c)
	}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *Dialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Last returns the most recent connection, or nil.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}
