// Package mockzerg is a stand-in Zerg service speaking Socket.IO over websocket.
// It answers every request the client can send and exposes hooks for tests to
// push events and simulate network loss.
package mockzerg

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/michaelluochen/zerg-tui/pkg/proto"
	"github.com/michaelluochen/zerg-tui/pkg/sio"
)

type Options struct {
	PingInterval time.Duration
	PingTimeout  time.Duration
	// StepDelay spaces out multi-part replies the way the real service streams them.
	StepDelay time.Duration
	// Reject makes the namespace connect fail with this message.
	Reject string
}

func DefaultOptions() Options {
	return Options{
		PingInterval: 25 * time.Second,
		PingTimeout:  20 * time.Second,
		StepDelay:    50 * time.Millisecond,
	}
}

type clientConn struct {
	sid string
	ws  *websocket.Conn
	wmu sync.Mutex
}

func (c *clientConn) send(frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *clientConn) emit(event string, payload map[string]any) error {
	frame, err := sio.EncodeEvent("/", event, payload)
	if err != nil {
		return err
	}
	return c.send(frame)
}

type Server struct {
	log      zerolog.Logger
	opts     Options
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	clients  map[string]*clientConn
	files    map[string]string // filename -> base64
	received []proto.Event
}

func New(logger zerolog.Logger, opts Options) *Server {
	def := DefaultOptions()
	if opts.PingInterval <= 0 {
		opts.PingInterval = def.PingInterval
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = def.PingTimeout
	}
	return &Server{
		log:      logger.With().Str("component", "mockzerg").Logger(),
		opts:     opts,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:  make(map[string]*clientConn),
		files:    make(map[string]string),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/socket.io/", s.handleWS)
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("transport") != "websocket" {
		http.Error(w, "only websocket transport is supported", http.StatusBadRequest)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	defer ws.Close()

	c := &clientConn{sid: uuid.NewString(), ws: ws}
	open, _ := sio.EncodeOpen(sio.Handshake{
		SID:          c.sid,
		Upgrades:     []string{},
		PingInterval: int(s.opts.PingInterval / time.Millisecond),
		PingTimeout:  int(s.opts.PingTimeout / time.Millisecond),
		MaxPayload:   1000000,
	})
	if err := c.send(open); err != nil {
		return
	}
	if !s.acceptNamespace(c) {
		return
	}

	s.add(c)
	defer s.remove(c)
	s.log.Info().Str("sid", c.sid).Msg("client connected")

	_ = c.emit(proto.EventStdout, map[string]any{"value": "mock zerg service connected", "timestamp": now()})

	stop := make(chan struct{})
	defer close(stop)
	go s.pingLoop(c, stop)

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			s.log.Info().Str("sid", c.sid).Err(err).Msg("client disconnected")
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		typ, body, err := sio.DecodeFrame(data)
		if err != nil {
			continue
		}
		switch typ {
		case sio.EnginePing:
			_ = c.send([]byte{sio.EnginePong})
		case sio.EngineClose:
			return
		case sio.EngineMessage:
			p, err := sio.DecodePacket(body)
			if err != nil {
				continue
			}
			switch p.Type {
			case sio.SocketDisconnect:
				s.log.Info().Str("sid", c.sid).Msg("client left namespace")
				return
			case sio.SocketEvent:
				name, raw, err := sio.ParseEvent(p.Data)
				if err != nil {
					continue
				}
				payload := map[string]any{}
				if len(raw) > 0 {
					_ = json.Unmarshal(raw, &payload)
				}
				s.record(proto.Event{Type: name, Payload: payload})
				s.handle(c, name, payload)
			}
		}
	}
}

func (s *Server) acceptNamespace(c *clientConn) bool {
	_ = c.ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer c.ws.SetReadDeadline(time.Time{})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return false
		}
		typ, body, err := sio.DecodeFrame(data)
		if err != nil || typ != sio.EngineMessage {
			continue
		}
		p, err := sio.DecodePacket(body)
		if err != nil || p.Type != sio.SocketConnect {
			continue
		}
		if s.opts.Reject != "" {
			msg, _ := json.Marshal(map[string]string{"message": s.opts.Reject})
			_ = c.send(sio.EncodeMessage(sio.Packet{Type: sio.SocketConnectError, ID: -1, Data: msg}))
			return false
		}
		ack, _ := json.Marshal(map[string]string{"sid": uuid.NewString()})
		return c.send(sio.EncodeMessage(sio.Packet{Type: sio.SocketConnect, ID: -1, Data: ack})) == nil
	}
}

func (s *Server) handle(c *clientConn, name string, data map[string]any) {
	switch name {
	case proto.EventInitialize:
		s.log.Info().Str("sid", c.sid).Msg("initializing zerg")
		_ = c.emit(proto.EventOutput, map[string]any{"value": "Hello, I'm Mock Zerg!", "timestamp": now()})
		s.pause(1)
		_ = c.emit(proto.EventOutput, map[string]any{"value": "Mock Zerg initialized and ready", "timestamp": now()})
		_ = c.emit(proto.EventStdout, map[string]any{"value": "zerg initialized and updated", "timestamp": now()})
	case proto.EventCommand:
		cmd := fmt.Sprint(data["command"])
		s.log.Info().Str("sid", c.sid).Str("command", cmd).Msg("command received")
		_ = c.emit(proto.EventOutput, map[string]any{"value": "Processing command: " + cmd, "timestamp": now()})
		s.pause(2)
		_ = c.emit(proto.EventOutput, map[string]any{"value": "Command completed: " + cmd, "timestamp": now()})
	case proto.EventRequestUpdate:
		_ = c.emit(proto.EventStdout, map[string]any{"value": "zerg updated", "timestamp": now()})
		_ = c.emit(proto.EventUpdate, map[string]any{
			"zerg":      map[string]any{"status": "IDLE", "workspace": "/mock/workspace", "mock": true},
			"timestamp": now(),
		})
	case proto.EventUploadFile:
		var up proto.Upload
		_ = proto.Decode(data, &up)
		s.mu.Lock()
		s.files[up.Filename] = up.FileData
		s.mu.Unlock()
		s.log.Info().Str("file", up.Filename).Msg("file uploaded")
		_ = c.emit(proto.EventOutput, map[string]any{"value": "File uploaded successfully: " + up.Filename, "timestamp": now()})
	case proto.EventRequestDownload:
		var req proto.DownloadRequest
		_ = proto.Decode(data, &req)
		s.mu.RLock()
		fileData, ok := s.files[req.Filename]
		s.mu.RUnlock()
		if ok {
			_ = c.emit(proto.EventDownloadResponse, map[string]any{"filename": req.Filename, "file_data": fileData})
		} else {
			_ = c.emit(proto.EventDownloadResponse, map[string]any{"error": "File not found: " + req.Filename})
		}
	case proto.EventFetchCommands:
		_ = c.emit(proto.EventOutput, map[string]any{
			"value":     "Available commands: init, cmd, update, upload, download",
			"timestamp": now(),
		})
	default:
		s.log.Debug().Str("event", name).Msg("unhandled event")
	}
}

func (s *Server) pingLoop(c *clientConn, stop <-chan struct{}) {
	t := time.NewTicker(s.opts.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if err := c.send([]byte{sio.EnginePing}); err != nil {
				return
			}
		}
	}
}

func (s *Server) pause(steps int) {
	if s.opts.StepDelay > 0 {
		time.Sleep(time.Duration(steps) * s.opts.StepDelay)
	}
}

func (s *Server) add(c *clientConn) {
	s.mu.Lock()
	s.clients[c.sid] = c
	s.mu.Unlock()
}

func (s *Server) remove(c *clientConn) {
	s.mu.Lock()
	delete(s.clients, c.sid)
	s.mu.Unlock()
}

func (s *Server) record(ev proto.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// cap at 500
	if len(s.received) >= 500 {
		s.received = append(s.received[1:], ev)
	} else {
		s.received = append(s.received, ev)
	}
}

// Emit broadcasts an event to every connected client.
func (s *Server) Emit(event string, payload map[string]any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var firstErr error
	for _, c := range s.clients {
		if err := c.emit(event, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DropAll closes every socket without a disconnect packet, as a network failure would.
func (s *Server) DropAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		_ = c.ws.Close()
	}
}

func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Received returns the events clients have sent, oldest first.
func (s *Server) Received() []proto.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]proto.Event(nil), s.received...)
}

func (s *Server) PutFile(name string, content []byte) {
	s.mu.Lock()
	s.files[name] = base64.StdEncoding.EncodeToString(content)
	s.mu.Unlock()
}

func (s *Server) File(name string) ([]byte, bool) {
	s.mu.RLock()
	data, ok := s.files[name]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, false
	}
	return b, true
}

func now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
