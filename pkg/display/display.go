// Package display maps routed Zerg events onto the panes of a display surface.
package display

import (
	"fmt"
	"sort"
	"strings"

	"github.com/michaelluochen/zerg-tui/pkg/proto"
)

type Pane int

const (
	PaneChat Pane = iota
	PaneReview
	PaneExecution
)

func (p Pane) String() string {
	switch p {
	case PaneChat:
		return "chat"
	case PaneReview:
		return "review"
	case PaneExecution:
		return "exec"
	}
	return "?"
}

// Style is a rendering hint. Surfaces pick their own colors for each.
type Style int

const (
	StylePlain Style = iota
	StyleSystem
	StyleUser
	StyleOutput
	StyleReasoning
	StyleError
	StyleWarning
	StyleTests
	StyleEvals
	StylePrompt
	StyleStdout
	StyleStderr
	StyleReview
	StyleHeading
)

type ConnectionStatus string

const (
	Connected    ConnectionStatus = "connected"
	Connecting   ConnectionStatus = "connecting"
	Reconnecting ConnectionStatus = "reconnecting"
	Disconnected ConnectionStatus = "disconnected"
	Failed       ConnectionStatus = "failed"
)

// Symbol is the status bar marker for s.
func (s ConnectionStatus) Symbol() string {
	switch s {
	case Connected:
		return "🟢"
	case Connecting, Reconnecting:
		return "🟡"
	case Disconnected:
		return "🔴"
	case Failed:
		return "⛔"
	}
	return "⚫"
}

func (s ConnectionStatus) Text() string {
	switch s {
	case Connected:
		return "Connected"
	case Connecting:
		return "Connecting..."
	case Reconnecting:
		return "Reconnecting..."
	case Disconnected:
		return "Disconnected"
	case Failed:
		return "Connection failed"
	}
	return "Unknown"
}

// Display is the surface events are rendered on.
type Display interface {
	AppendLine(pane Pane, text string, style Style)
	SetConnectionStatus(status ConnectionStatus)
	SetAgentStatus(text string)
	Clear(pane Pane)
}

var agentStyles = map[string]Style{
	proto.EventOutput:    StyleOutput,
	proto.EventReasoning: StyleReasoning,
	proto.EventError:     StyleError,
	proto.EventWarning:   StyleWarning,
	proto.EventTests:     StyleTests,
	proto.EventEvals:     StyleEvals,
	proto.EventChoices:   StylePlain,
}

// System writes a system message to the chat pane.
func System(d Display, format string, args ...any) {
	d.AppendLine(PaneChat, "[SYSTEM] "+fmt.Sprintf(format, args...), StyleSystem)
}

// User echoes what the user typed.
func User(d Display, text string) {
	d.AppendLine(PaneChat, "You: "+text, StyleUser)
}

// AgentPrefix renders zerg_output as [OUTPUT] and other types as "Agent:".
func AgentPrefix(eventType string) string {
	if strings.HasPrefix(eventType, "zerg_") {
		return "[" + strings.ToUpper(strings.TrimPrefix(eventType, "zerg_")) + "]"
	}
	return "Agent:"
}

// Route renders one event. It reports false for types it has no mapping for.
func Route(d Display, eventType string, payload map[string]any) bool {
	value := func() string {
		v, _ := proto.Event{Type: eventType, Payload: payload}.Value()
		return v
	}

	if style, ok := agentStyles[eventType]; ok {
		d.AppendLine(PaneChat, AgentPrefix(eventType)+" "+value(), style)
		return true
	}

	switch eventType {
	case proto.EventConnection:
		routeConnection(d, payload)
	case proto.EventStdout, proto.EventZergStdout:
		d.AppendLine(PaneExecution, value(), StyleStdout)
	case proto.EventStderr, proto.EventZergStderr:
		d.AppendLine(PaneExecution, value(), StyleStderr)
	case proto.EventPrompt:
		d.AppendLine(PaneChat, "Prompt: "+value(), StylePrompt)
	case proto.EventSystemPrompt:
		d.AppendLine(PaneChat, "System prompt: "+value(), StylePrompt)
	case proto.EventUpdate:
		state, _ := payload["zerg"].(map[string]any)
		d.Clear(PaneReview)
		d.AppendLine(PaneReview, "Agent state:", StyleHeading)
		for _, line := range SnapshotLines(state) {
			d.AppendLine(PaneReview, line, StyleReview)
		}
	default:
		return false
	}
	return true
}

func routeConnection(d Display, payload map[string]any) {
	status, _ := payload["status"].(string)
	switch status {
	case proto.StatusConnected:
		System(d, "Connected to Zerg service")
		d.SetConnectionStatus(Connected)
	case proto.StatusDisconnected:
		if intentional, _ := payload["intentional"].(bool); intentional {
			System(d, "Disconnected from Zerg service")
		} else {
			System(d, "Lost connection to Zerg service")
		}
		d.SetConnectionStatus(Disconnected)
	}
}

// SnapshotLines renders agent state as sorted "key: value" lines.
func SnapshotLines(state map[string]any) []string {
	if len(state) == 0 {
		return []string{"(no state)"}
	}
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, state[k]))
	}
	return lines
}

// Sink adapts d into a dispatcher sink.
func Sink(d Display) func(eventType string, payload map[string]any) error {
	return func(eventType string, payload map[string]any) error {
		Route(d, eventType, payload)
		return nil
	}
}
