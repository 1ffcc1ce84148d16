package sio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrClosedByServer = errors.New("sio: connection closed by server")
	ErrHandshake      = errors.New("sio: invalid handshake")
)

// ConnectError is the server's rejection of the namespace connect.
type ConnectError struct {
	Message string
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("sio: connect rejected: %s", e.Message)
}

type Options struct {
	Header           http.Header
	Namespace        string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

func DefaultOptions() Options {
	return Options{
		Namespace:        defaultNamespace,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Namespace == "" {
		o.Namespace = def.Namespace
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = def.HandshakeTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = def.WriteTimeout
	}
	return o
}

// Conn is one Socket.IO connection. ReadEvent must be called from a single
// goroutine; Emit and Close are safe to call concurrently with it.
type Conn struct {
	ws        *websocket.Conn
	opts      Options
	handshake Handshake
	sid       string

	wmu       sync.Mutex
	closeOnce sync.Once
}

// EndpointURL maps a service URL (http://host:port) to its websocket endpoint.
func EndpointURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("sio: unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("sio: missing host in %q", raw)
	}
	if !strings.Contains(u.Path, "socket.io") {
		u.Path = strings.TrimRight(u.Path, "/") + "/socket.io/"
	}
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial opens the websocket and completes the Engine.IO open and Socket.IO
// namespace connect exchange.
func Dial(ctx context.Context, rawURL string, opts Options) (*Conn, error) {
	opts = opts.withDefaults()
	endpoint, err := EndpointURL(rawURL)
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, endpoint, opts.Header)
	if err != nil {
		return nil, err
	}
	c := &Conn{ws: ws, opts: opts}

	deadline := time.Now().Add(opts.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = ws.SetReadDeadline(deadline)
	if err := c.open(ctx); err != nil {
		_ = ws.Close()
		return nil, err
	}
	_ = ws.SetReadDeadline(time.Time{})
	return c, nil
}

func (c *Conn) open(ctx context.Context) error {
	typ, body, err := c.readFrame()
	if err != nil {
		return err
	}
	if typ != EngineOpen {
		return fmt.Errorf("%w: expected open packet, got %q", ErrHandshake, typ)
	}
	if err := json.Unmarshal(body, &c.handshake); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	connect := EncodeMessage(Packet{Type: SocketConnect, Namespace: c.opts.Namespace, ID: -1})
	if err := c.write(ctx, connect); err != nil {
		return err
	}
	for {
		typ, body, err := c.readFrame()
		if err != nil {
			return err
		}
		switch typ {
		case EnginePing:
			if err := c.write(ctx, []byte{EnginePong}); err != nil {
				return err
			}
		case EngineClose:
			return ErrClosedByServer
		case EngineMessage:
			p, err := DecodePacket(body)
			if err != nil {
				return err
			}
			if p.Namespace != c.opts.Namespace {
				continue
			}
			switch p.Type {
			case SocketConnect:
				var ack struct {
					SID string `json:"sid"`
				}
				if len(p.Data) > 0 {
					_ = json.Unmarshal(p.Data, &ack)
				}
				c.sid = ack.SID
				return nil
			case SocketConnectError:
				var rej struct {
					Message string `json:"message"`
				}
				_ = json.Unmarshal(p.Data, &rej)
				return &ConnectError{Message: rej.Message}
			}
		}
	}
}

// ReadEvent blocks until the next EVENT packet and returns its name and first
// argument. Pings are answered inline.
func (c *Conn) ReadEvent() (string, json.RawMessage, error) {
	for {
		if window := c.pingWindow(); window > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(window))
		}
		typ, body, err := c.readFrame()
		if err != nil {
			return "", nil, err
		}
		switch typ {
		case EnginePing:
			if err := c.write(context.Background(), []byte{EnginePong}); err != nil {
				return "", nil, err
			}
		case EngineClose:
			return "", nil, ErrClosedByServer
		case EngineMessage:
			p, err := DecodePacket(body)
			if err != nil || p.Namespace != c.opts.Namespace {
				continue
			}
			switch p.Type {
			case SocketEvent:
				name, payload, err := ParseEvent(p.Data)
				if err != nil {
					continue
				}
				return name, payload, nil
			case SocketDisconnect:
				return "", nil, ErrClosedByServer
			}
		}
	}
}

// Emit sends one EVENT packet.
func (c *Conn) Emit(ctx context.Context, name string, payload any) error {
	frame, err := EncodeEvent(c.opts.Namespace, name, payload)
	if err != nil {
		return err
	}
	return c.write(ctx, frame)
}

// Close sends a namespace disconnect and closes the socket. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		c.wmu.Lock()
		_ = c.ws.SetWriteDeadline(deadline)
		_ = c.ws.WriteMessage(websocket.TextMessage,
			EncodeMessage(Packet{Type: SocketDisconnect, Namespace: c.opts.Namespace, ID: -1}))
		c.wmu.Unlock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) SID() string { return c.sid }

func (c *Conn) Handshake() Handshake { return c.handshake }

func (c *Conn) pingWindow() time.Duration {
	ms := c.handshake.PingInterval + c.handshake.PingTimeout
	return time.Duration(ms) * time.Millisecond
}

func (c *Conn) readFrame() (byte, []byte, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return 0, nil, err
		}
		if mt != websocket.TextMessage {
			continue
		}
		return DecodeFrame(data)
	}
}

func (c *Conn) write(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(c.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}
