package display

import "sync"

type Line struct {
	Pane  Pane
	Text  string
	Style Style
}

// Recorder is an in-memory Display. It backs batch mode and tests.
type Recorder struct {
	mu     sync.Mutex
	lines  []Line
	status ConnectionStatus
	agent  string
}

func NewRecorder() *Recorder {
	return &Recorder{status: Disconnected, agent: "Idle"}
}

func (r *Recorder) AppendLine(pane Pane, text string, style Style) {
	r.mu.Lock()
	r.lines = append(r.lines, Line{Pane: pane, Text: text, Style: style})
	r.mu.Unlock()
}

func (r *Recorder) SetConnectionStatus(status ConnectionStatus) {
	r.mu.Lock()
	r.status = status
	r.mu.Unlock()
}

func (r *Recorder) SetAgentStatus(text string) {
	r.mu.Lock()
	r.agent = text
	r.mu.Unlock()
}

func (r *Recorder) Clear(pane Pane) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.lines[:0]
	for _, l := range r.lines {
		if l.Pane != pane {
			kept = append(kept, l)
		}
	}
	r.lines = kept
}

func (r *Recorder) Lines(pane Pane) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, l := range r.lines {
		if l.Pane == pane {
			out = append(out, l.Text)
		}
	}
	return out
}

func (r *Recorder) All() []Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Line(nil), r.lines...)
}

func (r *Recorder) ConnectionStatus() ConnectionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Recorder) AgentStatus() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agent
}
