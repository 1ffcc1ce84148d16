// Package command turns a line of user input into client calls.
package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/michaelluochen/zerg-tui/pkg/channels"
	"github.com/michaelluochen/zerg-tui/pkg/display"
)

// ErrQuit is returned by Execute when the user asked to leave.
var ErrQuit = errors.New("quit")

type Kind int

const (
	KindEmpty Kind = iota
	KindMessage
	KindInit
	KindUpdate
	KindCommands
	KindUpload
	KindDownload
	KindChannel
	KindChannels
	KindSnapshot
	KindReconnect
	KindClear
	KindHelp
	KindQuit
	KindUnknown
)

type Command struct {
	Kind Kind
	Raw  string
	Args []string
}

var slash = map[string]Kind{
	"/commands":  KindCommands,
	"/upload":    KindUpload,
	"/download":  KindDownload,
	"/channel":   KindChannel,
	"/channels":  KindChannels,
	"/snapshot":  KindSnapshot,
	"/reconnect": KindReconnect,
	"/clear":     KindClear,
	"/help":      KindHelp,
	"/quit":      KindQuit,
	"/exit":      KindQuit,
}

// Parse classifies one input line. Lines starting with "init" or "update" are
// control directives; other text without a leading slash goes to the agent.
func Parse(line string) Command {
	raw := strings.TrimSpace(line)
	cmd := Command{Raw: raw}
	switch {
	case raw == "":
		cmd.Kind = KindEmpty
	case strings.HasPrefix(raw, "/"):
		fields := strings.Fields(raw)
		kind, ok := slash[strings.ToLower(fields[0])]
		if !ok {
			kind = KindUnknown
		}
		cmd.Kind = kind
		cmd.Args = fields[1:]
	case strings.HasPrefix(raw, "init"):
		cmd.Kind = KindInit
	case strings.HasPrefix(raw, "update"):
		cmd.Kind = KindUpdate
	default:
		cmd.Kind = KindMessage
	}
	return cmd
}

// Client is the part of the session the commands drive.
type Client interface {
	Connected() bool
	SendCommand(ctx context.Context, text string) error
	Initialize(ctx context.Context) error
	RequestStateUpdate(ctx context.Context) error
	FetchAvailableCommands(ctx context.Context) error
	UploadFile(ctx context.Context, filename string, content []byte) error
	DownloadFile(ctx context.Context, filename string) ([]byte, error)
	Reconnect() error
	Channels() *channels.Registry
	Snapshot() map[string]any
}

type Executor struct {
	Client    Client
	Display   display.Display
	Workspace string
	Log       zerolog.Logger
}

var errNotConnected = errors.New("not connected to Zerg service")

// Execute runs one input line. Failures are shown on the display and also
// returned; ErrQuit is returned without display.
func (e *Executor) Execute(ctx context.Context, line string) error {
	cmd := Parse(line)
	if cmd.Kind == KindEmpty {
		return nil
	}
	display.User(e.Display, cmd.Raw)

	err := e.run(ctx, cmd)
	switch {
	case err == nil, errors.Is(err, ErrQuit):
	case errors.Is(err, errNotConnected):
		display.System(e.Display, "Not connected to Zerg service!")
	default:
		e.Log.Error().Err(err).Str("input", cmd.Raw).Msg("command failed")
		display.System(e.Display, "Error sending command: %v", err)
	}
	return err
}

func (e *Executor) run(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case KindQuit:
		return ErrQuit
	case KindHelp:
		for _, l := range helpLines {
			e.Display.AppendLine(display.PaneChat, l, display.StyleSystem)
		}
		return nil
	case KindClear:
		e.Display.Clear(display.PaneChat)
		return nil
	case KindChannels:
		reg := e.Client.Channels()
		for _, name := range reg.Names() {
			e.Display.AppendLine(display.PaneChat, fmt.Sprintf("  %-16s %s", name, onOff(reg.Enabled(name))), display.StyleSystem)
		}
		return nil
	case KindChannel:
		return e.toggleChannel(cmd.Args)
	case KindSnapshot:
		e.Display.Clear(display.PaneReview)
		e.Display.AppendLine(display.PaneReview, "Agent state:", display.StyleHeading)
		for _, l := range display.SnapshotLines(e.Client.Snapshot()) {
			e.Display.AppendLine(display.PaneReview, l, display.StyleReview)
		}
		return nil
	case KindReconnect:
		if e.Client.Connected() {
			display.System(e.Display, "Already connected")
			return nil
		}
		return e.Client.Reconnect()
	case KindUnknown:
		return fmt.Errorf("unknown command %s, try /help", strings.Fields(cmd.Raw)[0])
	}

	if !e.Client.Connected() {
		return errNotConnected
	}
	switch cmd.Kind {
	case KindInit:
		return e.Client.Initialize(ctx)
	case KindUpdate:
		return e.Client.RequestStateUpdate(ctx)
	case KindCommands:
		return e.Client.FetchAvailableCommands(ctx)
	case KindUpload:
		return e.upload(ctx, cmd.Args)
	case KindDownload:
		return e.download(ctx, cmd.Args)
	default:
		return e.Client.SendCommand(ctx, cmd.Raw)
	}
}

func (e *Executor) toggleChannel(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: /channel <name> on|off")
	}
	var enabled bool
	switch strings.ToLower(args[1]) {
	case "on", "true", "enable":
		enabled = true
	case "off", "false", "disable":
	default:
		return fmt.Errorf("usage: /channel %s on|off", args[0])
	}
	if err := e.Client.Channels().Set(args[0], enabled); err != nil {
		return err
	}
	display.System(e.Display, "Channel %s %s", args[0], onOff(enabled))
	return nil
}

func (e *Executor) upload(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: /upload <path>")
	}
	path := args[0]
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.Workspace, path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	name := filepath.Base(path)
	if err := e.Client.UploadFile(ctx, name, content); err != nil {
		return err
	}
	display.System(e.Display, "Uploading %s (%d bytes)", name, len(content))
	return nil
}

func (e *Executor) download(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: /download <name>")
	}
	display.System(e.Display, "Downloading %s...", args[0])
	data, err := e.Client.DownloadFile(ctx, args[0])
	if err != nil {
		return err
	}
	// never write outside the workspace
	dest := filepath.Join(e.Workspace, filepath.Base(args[0]))
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	display.System(e.Display, "Downloaded %s (%d bytes) to %s", args[0], len(data), dest)
	return nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

var helpLines = []string{
	"Commands:",
	"  init                     initialize the agent",
	"  update                   request an agent state update",
	"  /commands                list the agent's commands",
	"  /upload <path>           upload a workspace file",
	"  /download <name>         download a file into the workspace",
	"  /channel <name> on|off   show or hide an event channel",
	"  /channels                list channels",
	"  /snapshot                show the last agent state",
	"  /reconnect               retry the connection",
	"  /clear                   clear the chat pane",
	"  /quit                    exit",
	"Anything else is sent to the agent as a command.",
}
