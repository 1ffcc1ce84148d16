// Package tui is the interactive terminal interface: three panes, a status
// bar and an input line with history.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/michaelluochen/zerg-tui/pkg/command"
	"github.com/michaelluochen/zerg-tui/pkg/display"
)

// Runner executes one submitted input line.
type Runner interface {
	Execute(ctx context.Context, line string) error
}

type RunnerFunc func(ctx context.Context, line string) error

func (f RunnerFunc) Execute(ctx context.Context, line string) error { return f(ctx, line) }

type Options struct {
	Title   string
	Runner  Runner
	History *command.History
	// Line caps per pane; zero means unlimited.
	ChatMaxLines      int
	ReviewMaxLines    int
	ExecutionMaxLines int
}

type execDoneMsg struct{ err error }

type styledLine struct {
	text  string
	style display.Style
}

type pane struct {
	title string
	max   int
	lines []styledLine
	vp    viewport.Model
}

func (p *pane) append(l styledLine) {
	p.lines = append(p.lines, l)
	if p.max > 0 && len(p.lines) > p.max {
		p.lines = append(p.lines[:0], p.lines[len(p.lines)-p.max:]...)
	}
}

type Model struct {
	ctx     context.Context
	title   string
	inbox   *Inbox
	runner  Runner
	history *command.History
	theme   theme

	panes [3]*pane
	input textinput.Model

	conn   display.ConnectionStatus
	agent  string
	width  int
	height int
}

func New(ctx context.Context, inbox *Inbox, opts Options) *Model {
	in := textinput.New()
	in.Prompt = "> "
	in.Placeholder = "Type a command or message (/help)"
	in.CharLimit = 4000
	in.Focus()

	if opts.History == nil {
		opts.History = command.NewHistory(0)
	}
	if opts.Title == "" {
		opts.Title = "Zerg Terminal Client"
	}

	m := &Model{
		ctx:     ctx,
		title:   opts.Title,
		inbox:   inbox,
		runner:  opts.Runner,
		history: opts.History,
		theme:   newTheme(),
		input:   in,
		conn:    display.Disconnected,
		agent:   "Idle",
	}
	m.panes[display.PaneChat] = &pane{title: "Chat", max: opts.ChatMaxLines, vp: viewport.New(0, 0)}
	m.panes[display.PaneReview] = &pane{title: "Review", max: opts.ReviewMaxLines, vp: viewport.New(0, 0)}
	m.panes[display.PaneExecution] = &pane{title: "Execution", max: opts.ExecutionMaxLines, vp: viewport.New(0, 0)}
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.inbox.wait())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case lineMsg:
		m.paneFor(msg.pane).append(styledLine{text: msg.text, style: msg.style})
		m.render(msg.pane)
		cmds = append(cmds, m.inbox.wait())
	case clearMsg:
		p := m.paneFor(msg.pane)
		p.lines = nil
		m.render(msg.pane)
		cmds = append(cmds, m.inbox.wait())
	case connMsg:
		m.conn = msg.status
		cmds = append(cmds, m.inbox.wait())
	case agentMsg:
		m.agent = msg.text
		cmds = append(cmds, m.inbox.wait())
	case execDoneMsg:
		if errors.Is(msg.err, command.ErrQuit) {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+q":
			return m, tea.Quit
		case "enter":
			return m, m.submit()
		case "up":
			if v, ok := m.history.Prev(m.input.Value()); ok {
				m.input.SetValue(v)
				m.input.CursorEnd()
			}
			return m, nil
		case "down":
			if v, ok := m.history.Next(); ok {
				m.input.SetValue(v)
				m.input.CursorEnd()
			}
			return m, nil
		case "pgup":
			chat := m.panes[display.PaneChat]
			chat.vp.LineUp(max(1, chat.vp.Height-1))
			return m, nil
		case "pgdown":
			chat := m.panes[display.PaneChat]
			chat.vp.LineDown(max(1, chat.vp.Height-1))
			return m, nil
		case "ctrl+l":
			m.panes[display.PaneChat].lines = nil
			m.render(display.PaneChat)
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	case tea.MouseMsg:
		chat := m.panes[display.PaneChat]
		var cmd tea.Cmd
		chat.vp, cmd = chat.vp.Update(msg)
		cmds = append(cmds, cmd)
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) submit() tea.Cmd {
	line := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	if line == "" {
		m.history.Reset()
		return nil
	}
	m.history.Add(line)
	if m.runner == nil {
		return nil
	}
	ctx, runner := m.ctx, m.runner
	return func() tea.Msg {
		return execDoneMsg{err: runner.Execute(ctx, line)}
	}
}

func (m *Model) paneFor(p display.Pane) *pane {
	if int(p) < 0 || int(p) >= len(m.panes) {
		return m.panes[display.PaneChat]
	}
	return m.panes[p]
}

// render refreshes a pane's viewport, following the tail unless the user
// scrolled up.
func (m *Model) render(p display.Pane) {
	pn := m.paneFor(p)
	follow := pn.vp.AtBottom()
	width := pn.vp.Width
	rendered := make([]string, 0, len(pn.lines))
	for _, l := range pn.lines {
		st := m.theme.line(l.style)
		if width > 0 {
			st = st.Width(width)
		}
		rendered = append(rendered, st.Render(l.text))
	}
	pn.vp.SetContent(strings.Join(rendered, "\n"))
	if follow {
		pn.vp.GotoBottom()
	}
}

func (m *Model) resize() {
	const inputHeight, statusHeight = 3, 1
	// border plus title row
	const chrome = 3

	bodyHeight := max(6, m.height-inputHeight-statusHeight)
	leftWidth := m.width * 3 / 5
	rightWidth := m.width - leftWidth
	reviewHeight := bodyHeight / 2
	execHeight := bodyHeight - reviewHeight

	set := func(p display.Pane, w, h int) {
		vp := &m.paneFor(p).vp
		vp.Width = max(10, w-2)
		vp.Height = max(1, h-chrome)
	}
	set(display.PaneChat, leftWidth, bodyHeight)
	set(display.PaneReview, rightWidth, reviewHeight)
	set(display.PaneExecution, rightWidth, execHeight)
	m.input.Width = max(10, m.width-6)

	for p := range m.panes {
		m.render(display.Pane(p))
	}
}

func (m *Model) panel(p display.Pane, focus bool) string {
	pn := m.paneFor(p)
	style := m.theme.panel
	if focus {
		style = m.theme.panelFocus
	}
	body := m.theme.panelTitle.Render(pn.title) + "\n" + pn.vp.View()
	return style.Width(pn.vp.Width).Render(body)
}

func (m *Model) statusLine() string {
	text := fmt.Sprintf(" %s %s │ Agent: %s │ %s", m.conn.Symbol(), m.conn.Text(), m.agent, m.title)
	style := m.theme.status
	if m.conn == display.Failed {
		style = m.theme.statusErr
	}
	if m.width > 0 {
		style = style.Width(m.width)
	}
	return style.Render(text)
}

func (m *Model) View() string {
	if m.width == 0 {
		return m.statusLine() + "\n" + m.input.View()
	}
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.panel(display.PaneReview, false),
		m.panel(display.PaneExecution, false),
	)
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.panel(display.PaneChat, true), right)
	input := m.theme.input.Width(max(10, m.width-2)).Render(m.input.View())
	return lipgloss.JoinVertical(lipgloss.Left, body, input, m.statusLine())
}

// Lines returns the plain text held by a pane.
func (m *Model) Lines(p display.Pane) []string {
	pn := m.paneFor(p)
	out := make([]string, 0, len(pn.lines))
	for _, l := range pn.lines {
		out = append(out, l.text)
	}
	return out
}

// Run drives the program until the user quits or ctx ends.
func Run(ctx context.Context, m *Model, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(m, opts...)
	defer m.inbox.Close()
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
