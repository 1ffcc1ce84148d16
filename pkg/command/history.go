package command

// History is an in-memory input history, most recent first. Re-entering a
// command moves it to the front.
type History struct {
	max   int
	items []string
	index int
	draft string
}

func NewHistory(max int) *History {
	if max <= 0 {
		max = 100
	}
	return &History{max: max, index: -1}
}

func (h *History) Add(cmd string) {
	h.Reset()
	if cmd == "" {
		return
	}
	for i, it := range h.items {
		if it == cmd {
			h.items = append(h.items[:i], h.items[i+1:]...)
			break
		}
	}
	h.items = append([]string{cmd}, h.items...)
	if len(h.items) > h.max {
		h.items = h.items[:h.max]
	}
}

// Prev steps to an older entry. current is kept as the draft when leaving the
// input line.
func (h *History) Prev(current string) (string, bool) {
	if h.index >= len(h.items)-1 {
		return "", false
	}
	if h.index == -1 {
		h.draft = current
	}
	h.index++
	return h.items[h.index], true
}

// Next steps to a newer entry, returning the draft past the newest one.
func (h *History) Next() (string, bool) {
	switch {
	case h.index > 0:
		h.index--
		return h.items[h.index], true
	case h.index == 0:
		h.index = -1
		return h.draft, true
	}
	return "", false
}

func (h *History) Reset() {
	h.index = -1
	h.draft = ""
}

func (h *History) Items() []string {
	return append([]string(nil), h.items...)
}
