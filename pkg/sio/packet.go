// Package sio speaks the Socket.IO v4 protocol over the Engine.IO v4 websocket
// transport. Only text frames are supported; binary attachments are ignored.
package sio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Engine.IO packet types
const (
	EngineOpen    byte = '0'
	EngineClose   byte = '1'
	EnginePing    byte = '2'
	EnginePong    byte = '3'
	EngineMessage byte = '4'
	EngineUpgrade byte = '5'
	EngineNoop    byte = '6'
)

// Socket.IO packet types (carried inside an EngineMessage)
const (
	SocketConnect      byte = '0'
	SocketDisconnect   byte = '1'
	SocketEvent        byte = '2'
	SocketAck          byte = '3'
	SocketConnectError byte = '4'
	SocketBinaryEvent  byte = '5'
	SocketBinaryAck    byte = '6'
)

const defaultNamespace = "/"

var ErrMalformedPacket = errors.New("sio: malformed packet")

// Handshake is the Engine.IO open packet body.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"` // ms
	PingTimeout  int      `json:"pingTimeout"`  // ms
	MaxPayload   int      `json:"maxPayload"`
}

// Packet is one Socket.IO packet. ID is -1 when the packet carries no ack id.
type Packet struct {
	Type      byte
	Namespace string
	ID        int
	Data      json.RawMessage
}

// EncodeMessage renders p as a complete Engine.IO message frame.
func EncodeMessage(p Packet) []byte {
	out := []byte{EngineMessage, p.Type}
	if p.Namespace != "" && p.Namespace != defaultNamespace {
		out = append(out, p.Namespace...)
		out = append(out, ',')
	}
	if p.ID >= 0 {
		out = strconv.AppendInt(out, int64(p.ID), 10)
	}
	return append(out, p.Data...)
}

// EncodeEvent renders an EVENT packet for name with payload.
func EncodeEvent(namespace, name string, payload any) ([]byte, error) {
	data, err := json.Marshal([]any{name, payload})
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", name, err)
	}
	return EncodeMessage(Packet{Type: SocketEvent, Namespace: namespace, ID: -1, Data: data}), nil
}

// EncodeOpen renders the server's open frame.
func EncodeOpen(h Handshake) ([]byte, error) {
	body, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return append([]byte{EngineOpen}, body...), nil
}

// DecodeFrame splits an Engine.IO text frame into its type and body.
func DecodeFrame(frame []byte) (byte, []byte, error) {
	if len(frame) == 0 {
		return 0, nil, ErrMalformedPacket
	}
	return frame[0], frame[1:], nil
}

// DecodePacket parses the body of an EngineMessage frame.
func DecodePacket(body []byte) (Packet, error) {
	if len(body) == 0 {
		return Packet{}, ErrMalformedPacket
	}
	p := Packet{Type: body[0], Namespace: defaultNamespace, ID: -1}
	rest := body[1:]

	if p.Type == SocketBinaryEvent || p.Type == SocketBinaryAck {
		i := indexByte(rest, '-')
		if i < 0 {
			return Packet{}, ErrMalformedPacket
		}
		rest = rest[i+1:]
	}
	if len(rest) > 0 && rest[0] == '/' {
		i := indexByte(rest, ',')
		if i < 0 {
			p.Namespace = string(rest)
			return p, nil
		}
		p.Namespace = string(rest[:i])
		rest = rest[i+1:]
	}
	n := 0
	for n < len(rest) && rest[n] >= '0' && rest[n] <= '9' {
		n++
	}
	if n > 0 {
		id, err := strconv.Atoi(string(rest[:n]))
		if err != nil {
			return Packet{}, ErrMalformedPacket
		}
		p.ID = id
		rest = rest[n:]
	}
	if len(rest) > 0 {
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// ParseEvent splits EVENT data (["name", payload, ...]) into name and first argument.
func ParseEvent(data json.RawMessage) (string, json.RawMessage, error) {
	var args []json.RawMessage
	if err := json.Unmarshal(data, &args); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}
	if len(args) == 0 {
		return "", nil, ErrMalformedPacket
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return "", nil, fmt.Errorf("%w: event name: %v", ErrMalformedPacket, err)
	}
	if len(args) < 2 {
		return name, nil, nil
	}
	return name, args[1], nil
}

func indexByte(b []byte, c byte) int {
	for i := range b {
		if b[i] == c {
			return i
		}
	}
	return -1
}
