package proto

// Wire vocabulary (Socket.IO event names)

const (
	// outbound
	EventInitialize      = "initialize_zerg"
	EventCommand         = "zerg_command"
	EventRequestUpdate   = "request_zerg_update"
	EventFetchCommands   = "fetch_zerg_commands"
	EventUploadFile      = "upload_file"
	EventRequestDownload = "request_file_download"

	// inbound
	EventDownloadResponse = "download_file_response"
	EventUpdate           = "zerg_update"

	EventStdout       = "stdout"
	EventStderr       = "stderr"
	EventPrompt       = "prompt"
	EventSystemPrompt = "system_prompt"
	EventTests        = "zerg_tests"
	EventEvals        = "zerg_evals"
	EventChoices      = "zerg_choices"
	EventOutput       = "zerg_output"
	EventReasoning    = "zerg_reasoning"
	EventError        = "zerg_error"
	EventWarning      = "zerg_warning"
	EventZergStdout   = "zerg_stdout"
	EventZergStderr   = "zerg_stderr"

	// local lifecycle notification raised by the transport, never sent on the wire
	EventConnection = "connection"
)

// ChannelEvents are the inbound types carrying a {value} payload and subject
// to channel filtering.
var ChannelEvents = []string{
	EventStdout,
	EventStderr,
	EventPrompt,
	EventSystemPrompt,
	EventTests,
	EventEvals,
	EventChoices,
	EventOutput,
	EventReasoning,
	EventError,
	EventWarning,
	EventZergStdout,
	EventZergStderr,
}

// Connection status values carried by EventConnection.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)
