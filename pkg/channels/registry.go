// Package channels tracks which inbound event types are shown.
package channels

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/michaelluochen/zerg-tui/pkg/errs"
	"github.com/michaelluochen/zerg-tui/pkg/proto"
)

// Defaults is the policy a fresh registry starts with. Prompt echoes and full
// state broadcasts are noisy and stay off unless asked for.
func Defaults() map[string]bool {
	return map[string]bool{
		proto.EventStdout:       true,
		proto.EventStderr:       true,
		proto.EventPrompt:       false,
		proto.EventSystemPrompt: false,
		proto.EventTests:        true,
		proto.EventEvals:        true,
		proto.EventChoices:      true,
		proto.EventOutput:       true,
		proto.EventReasoning:    true,
		proto.EventError:        true,
		proto.EventWarning:      true,
		proto.EventZergStdout:   true,
		proto.EventZergStderr:   true,
		proto.EventUpdate:       false,
	}
}

// Registry is the set of known channels and their enabled flags. The key set is
// fixed at construction.
type Registry struct {
	log zerolog.Logger

	mu    sync.RWMutex
	flags map[string]bool
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		log:   logger.With().Str("component", "channels").Logger(),
		flags: Defaults(),
	}
}

// Set changes one flag. Unknown names are logged and rejected without changing
// anything; the returned error is informational.
func (r *Registry) Set(name string, enabled bool) error {
	r.mu.Lock()
	_, ok := r.flags[name]
	if ok {
		r.flags[name] = enabled
	}
	r.mu.Unlock()

	if !ok {
		r.log.Warn().Str("channel", name).Msgf("unknown channel %s", name)
		return &errs.ConfigurationError{Key: name, Reason: "unknown channel"}
	}
	r.log.Debug().Str("channel", name).Bool("enabled", enabled).Msg("channel toggled")
	return nil
}

func (r *Registry) Enable(name string) error  { return r.Set(name, true) }
func (r *Registry) Disable(name string) error { return r.Set(name, false) }

// Enabled reports the flag for name; unknown names are disabled.
func (r *Registry) Enabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flags[name]
}

func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.flags[name]
	return ok
}

// Names returns the known channel names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.flags))
	for n := range r.flags {
		names = append(names, n)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (r *Registry) Snapshot() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool, len(r.flags))
	for k, v := range r.flags {
		out[k] = v
	}
	return out
}

// Apply sets every entry of overrides, continuing past unknown names. It
// returns the first error seen.
func (r *Registry) Apply(overrides map[string]bool) error {
	var first error
	for name, enabled := range overrides {
		if err := r.Set(name, enabled); err != nil && first == nil {
			first = err
		}
	}
	return first
}
