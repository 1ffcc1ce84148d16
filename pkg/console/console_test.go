package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelluochen/zerg-tui/pkg/command"
	"github.com/michaelluochen/zerg-tui/pkg/display"
)

func TestDisplayPrefixesPanes(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf, false)

	display.Route(d, "zerg_output", map[string]any{"value": "hi"})
	display.Route(d, "stdout", map[string]any{"value": "line1\nline2"})
	display.Route(d, "zerg_update", map[string]any{"zerg": map[string]any{"status": "IDLE"}})

	assert.Equal(t, "[OUTPUT] hi\n"+
		"exec │ line1\nexec │ line2\n"+
		"review │ Agent state:\nreview │ status: IDLE\n", buf.String())
}

func TestDisplayStatusChangesOnly(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf, false)

	d.SetConnectionStatus(display.Disconnected)
	d.SetConnectionStatus(display.Connected)
	d.SetConnectionStatus(display.Connected)
	d.SetAgentStatus("Ready")
	d.SetAgentStatus("Ready")

	assert.Equal(t, "-- 🟢 Connected\n-- Agent: Ready\n", buf.String())
}

type recordingRunner struct {
	lines []string
	quit  string
	fail  string
}

func (r *recordingRunner) Execute(_ context.Context, line string) error {
	r.lines = append(r.lines, line)
	switch line {
	case r.quit:
		return command.ErrQuit
	case r.fail:
		return errors.New("boom")
	}
	return nil
}

func TestLoopRunsUntilEOF(t *testing.T) {
	r := &recordingRunner{fail: "bad"}
	var out bytes.Buffer
	err := Loop(context.Background(), strings.NewReader("init\nbad\nls\n"), &out, r, LoopOptions{Prompt: "> "})
	require.NoError(t, err)
	assert.Equal(t, []string{"init", "bad", "ls"}, r.lines)
	assert.Equal(t, 4, strings.Count(out.String(), "> "))
}

func TestLoopStopsOnQuit(t *testing.T) {
	r := &recordingRunner{quit: "/quit"}
	err := Loop(context.Background(), strings.NewReader("a\n/quit\nb\n"), io.Discard, r, LoopOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "/quit"}, r.lines)
}

func TestLoopHonorsContext(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Loop(ctx, pr, io.Discard, &recordingRunner{}, LoopOptions{}) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not return after cancel")
	}
}

func TestLoopLingersAfterEOF(t *testing.T) {
	start := time.Now()
	err := Loop(context.Background(), strings.NewReader(""), io.Discard, &recordingRunner{}, LoopOptions{Linger: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}
