// Package dispatch filters inbound events through the channel registry and
// forwards the accepted ones to a display sink.
package dispatch

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/michaelluochen/zerg-tui/pkg/channels"
	"github.com/michaelluochen/zerg-tui/pkg/errs"
	"github.com/michaelluochen/zerg-tui/pkg/proto"
)

// Sink receives accepted events. A failing sink never affects dispatch.
type Sink func(eventType string, payload map[string]any) error

// Registrar is the handler registration side of a transport.
type Registrar interface {
	On(eventType string, h proto.Handler)
}

type Dispatcher struct {
	reg *channels.Registry
	log zerolog.Logger

	mu       sync.RWMutex
	sink     Sink
	snapshot map[string]any
}

func New(reg *channels.Registry, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		reg:      reg,
		log:      logger.With().Str("component", "dispatch").Logger(),
		snapshot: map[string]any{},
	}
}

func (d *Dispatcher) SetSink(s Sink) {
	d.mu.Lock()
	d.sink = s
	d.mu.Unlock()
}

// Bind installs the dispatcher's handlers for every channel event and the
// state update event.
func (d *Dispatcher) Bind(r Registrar) {
	for _, name := range proto.ChannelEvents {
		r.On(name, d.HandleChannel)
	}
	r.On(proto.EventUpdate, d.HandleUpdate)
}

// HandleChannel forwards a {value} event when its channel is enabled.
func (d *Dispatcher) HandleChannel(ev proto.Event) {
	if _, ok := ev.Payload["value"]; !ok {
		d.log.Debug().Str("event", ev.Type).Msg("event without value ignored")
		return
	}
	if !d.reg.Enabled(ev.Type) {
		return
	}
	d.deliver(ev.Type, ev.Payload)
}

// HandleUpdate always refreshes the agent snapshot; the sink only sees the
// update when its channel is enabled.
func (d *Dispatcher) HandleUpdate(ev proto.Event) {
	state, ok := ev.Payload["zerg"].(map[string]any)

	d.mu.Lock()
	if ok {
		d.snapshot = copyMap(state)
	} else {
		d.snapshot = map[string]any{}
	}
	d.mu.Unlock()

	if !ok {
		d.log.Debug().Msg("state update without zerg, snapshot cleared")
		return
	}
	if d.reg.Enabled(proto.EventUpdate) {
		d.deliver(ev.Type, ev.Payload)
	}
}

// Notify forwards a local notification (connection status) without filtering.
func (d *Dispatcher) Notify(eventType string, payload map[string]any) {
	d.deliver(eventType, payload)
}

// Snapshot returns a copy of the last known agent state.
func (d *Dispatcher) Snapshot() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return copyMap(d.snapshot)
}

func (d *Dispatcher) deliver(eventType string, payload map[string]any) {
	d.mu.RLock()
	sink := d.sink
	d.mu.RUnlock()
	if sink == nil {
		return
	}
	if err := invoke(sink, eventType, payload); err != nil {
		d.log.Error().Err(&errs.SinkError{EventType: eventType, Err: err}).Str("event", eventType).Msg("sink failed")
	}
}

func invoke(sink Sink, eventType string, payload map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sink(eventType, payload)
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
