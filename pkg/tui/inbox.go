package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/michaelluochen/zerg-tui/pkg/display"
)

type lineMsg struct {
	pane  display.Pane
	text  string
	style display.Style
}

type clearMsg struct{ pane display.Pane }

type connMsg struct{ status display.ConnectionStatus }

type agentMsg struct{ text string }

// Inbox is a display.Display that forwards everything to the bubbletea
// program as messages, so the model is only mutated from Update.
type Inbox struct {
	ch   chan tea.Msg
	done chan struct{}
	once sync.Once
}

func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = 256
	}
	return &Inbox{ch: make(chan tea.Msg, size), done: make(chan struct{})}
}

func (in *Inbox) send(msg tea.Msg) {
	select {
	case in.ch <- msg:
	case <-in.done:
	}
}

func (in *Inbox) AppendLine(pane display.Pane, text string, style display.Style) {
	in.send(lineMsg{pane: pane, text: text, style: style})
}

func (in *Inbox) SetConnectionStatus(status display.ConnectionStatus) {
	in.send(connMsg{status: status})
}

func (in *Inbox) SetAgentStatus(text string) { in.send(agentMsg{text: text}) }

func (in *Inbox) Clear(pane display.Pane) { in.send(clearMsg{pane: pane}) }

// Close releases senders blocked on a full inbox once the program is gone.
func (in *Inbox) Close() {
	in.once.Do(func() { close(in.done) })
}

// wait delivers the next inbox message to Update.
func (in *Inbox) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-in.ch:
			return msg
		case <-in.done:
			return nil
		}
	}
}
