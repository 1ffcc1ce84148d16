// Package console is the line-oriented surface used with --plain: colored,
// pane-prefixed output on a writer and a read loop over an input stream.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/michaelluochen/zerg-tui/pkg/command"
	"github.com/michaelluochen/zerg-tui/pkg/display"
)

type Display struct {
	mu     sync.Mutex
	out    io.Writer
	styles map[display.Style]*color.Color
	gray   *color.Color
	conn   display.ConnectionStatus
	agent  string
}

// New writes to out. Colors are disabled when useColor is false, regardless of
// the terminal.
func New(out io.Writer, useColor bool) *Display {
	styles := map[display.Style]*color.Color{
		display.StylePlain:     color.New(color.Reset),
		display.StyleSystem:    color.New(color.FgHiBlack),
		display.StyleUser:      color.New(color.FgGreen, color.Bold),
		display.StyleOutput:    color.New(color.Reset),
		display.StyleReasoning: color.New(color.FgMagenta),
		display.StyleError:     color.New(color.FgRed, color.Bold),
		display.StyleWarning:   color.New(color.FgYellow),
		display.StyleTests:     color.New(color.FgCyan),
		display.StyleEvals:     color.New(color.FgCyan),
		display.StylePrompt:    color.New(color.FgBlue),
		display.StyleStdout:    color.New(color.Reset),
		display.StyleStderr:    color.New(color.FgRed),
		display.StyleReview:    color.New(color.Reset),
		display.StyleHeading:   color.New(color.Bold, color.Underline),
	}
	gray := color.New(color.FgHiBlack)
	if !useColor {
		for _, c := range styles {
			c.DisableColor()
		}
		gray.DisableColor()
	}
	return &Display{out: out, styles: styles, gray: gray, conn: display.Disconnected}
}

func prefix(p display.Pane) string {
	switch p {
	case display.PaneExecution:
		return "exec │ "
	case display.PaneReview:
		return "review │ "
	}
	return ""
}

func (d *Display) AppendLine(pane display.Pane, text string, style display.Style) {
	c, ok := d.styles[style]
	if !ok {
		c = d.styles[display.StylePlain]
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, line := range strings.Split(text, "\n") {
		if p := prefix(pane); p != "" {
			d.gray.Fprint(d.out, p)
		}
		c.Fprintln(d.out, line)
	}
}

// SetConnectionStatus prints a status line when the status changes.
func (d *Display) SetConnectionStatus(status display.ConnectionStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status == d.conn {
		return
	}
	d.conn = status
	d.gray.Fprintf(d.out, "-- %s %s\n", status.Symbol(), status.Text())
}

func (d *Display) SetAgentStatus(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if text == d.agent {
		return
	}
	d.agent = text
	d.gray.Fprintf(d.out, "-- Agent: %s\n", text)
}

// Clear has nothing to erase on a scrolling terminal.
func (d *Display) Clear(display.Pane) {}

type Runner interface {
	Execute(ctx context.Context, line string) error
}

type LoopOptions struct {
	// Prompt is printed before each read when non-empty.
	Prompt string
	// Linger keeps the loop alive after end of input so late replies print.
	Linger time.Duration
}

// Loop feeds lines from in to r until end of input, /quit or ctx ends.
// Command failures are already on the display and do not stop the loop.
func Loop(ctx context.Context, in io.Reader, out io.Writer, r Runner, opts LoopOptions) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		if opts.Prompt != "" {
			fmt.Fprint(out, opts.Prompt)
		}

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)
		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
				return
			}
			if err := scanner.Err(); err != nil {
				errCh <- err
				return
			}
			errCh <- io.EOF
		}()

		var line string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if errors.Is(err, io.EOF) {
				linger(ctx, opts.Linger)
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case line = <-inputCh:
		}

		if err := r.Execute(ctx, line); errors.Is(err, command.ErrQuit) {
			return nil
		}
	}
}

func linger(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
