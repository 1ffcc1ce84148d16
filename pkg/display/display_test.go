package display

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelluochen/zerg-tui/pkg/proto"
)

func TestRouteAgentMessages(t *testing.T) {
	r := NewRecorder()
	require.True(t, Route(r, proto.EventOutput, map[string]any{"value": "done"}))
	require.True(t, Route(r, proto.EventReasoning, map[string]any{"value": "thinking"}))
	require.True(t, Route(r, proto.EventPrompt, map[string]any{"value": "continue?"}))

	assert.Equal(t, []string{"[OUTPUT] done", "[REASONING] thinking", "Prompt: continue?"}, r.Lines(PaneChat))
	all := r.All()
	assert.Equal(t, StyleOutput, all[0].Style)
	assert.Equal(t, StyleReasoning, all[1].Style)
}

func TestRouteExecutionOutput(t *testing.T) {
	r := NewRecorder()
	Route(r, proto.EventStdout, map[string]any{"value": "out"})
	Route(r, proto.EventZergStderr, map[string]any{"value": "err"})

	assert.Equal(t, []string{"out", "err"}, r.Lines(PaneExecution))
	assert.Equal(t, StyleStderr, r.All()[1].Style)
	assert.Empty(t, r.Lines(PaneChat))
}

func TestRouteNonStringValue(t *testing.T) {
	r := NewRecorder()
	Route(r, proto.EventChoices, map[string]any{"value": []any{"a", "b"}})
	assert.Equal(t, []string{`[CHOICES] ["a","b"]`}, r.Lines(PaneChat))
}

func TestRouteConnection(t *testing.T) {
	r := NewRecorder()
	Route(r, proto.EventConnection, map[string]any{"status": proto.StatusConnected})
	assert.Equal(t, Connected, r.ConnectionStatus())

	Route(r, proto.EventConnection, map[string]any{"status": proto.StatusDisconnected, "intentional": false})
	assert.Equal(t, Disconnected, r.ConnectionStatus())

	Route(r, proto.EventConnection, map[string]any{"status": proto.StatusDisconnected, "intentional": true})
	assert.Equal(t, []string{
		"[SYSTEM] Connected to Zerg service",
		"[SYSTEM] Lost connection to Zerg service",
		"[SYSTEM] Disconnected from Zerg service",
	}, r.Lines(PaneChat))
}

func TestRouteUpdateReplacesReview(t *testing.T) {
	r := NewRecorder()
	Route(r, proto.EventUpdate, map[string]any{"zerg": map[string]any{"status": "BUSY"}})
	Route(r, proto.EventUpdate, map[string]any{"zerg": map[string]any{"workspace": "/w", "status": "IDLE"}})

	assert.Equal(t, []string{"Agent state:", "status: IDLE", "workspace: /w"}, r.Lines(PaneReview))
}

func TestRouteUnknown(t *testing.T) {
	r := NewRecorder()
	assert.False(t, Route(r, "mystery", map[string]any{"value": "x"}))
	assert.Empty(t, r.All())
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "Connection failed", Failed.Text())
	assert.NotEqual(t, Disconnected.Symbol(), Failed.Symbol())
	assert.Equal(t, "Unknown", ConnectionStatus("x").Text())
}

func TestAgentPrefix(t *testing.T) {
	assert.Equal(t, "[WARNING]", AgentPrefix("zerg_warning"))
	assert.Equal(t, "Agent:", AgentPrefix("other"))
}
