package proto

import "encoding/json"

// Event is one inbound or outbound message.
type Event struct {
	Type    string
	Payload map[string]any
}

// Handler consumes inbound events.
type Handler func(Event)

// Value returns the primary {value} field of a channel event.
func (e Event) Value() (string, bool) {
	raw, ok := e.Payload["value"]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	if !ok {
		b, err := json.Marshal(raw)
		if err != nil {
			return "", false
		}
		s = string(b)
	}
	return s, true
}

// Command from client
type Command struct {
	Command string `json:"command"`
}

// Upload from client
type Upload struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"` // base64
}

// DownloadRequest from client
type DownloadRequest struct {
	Filename string `json:"filename"`
}

// DownloadResponse from server; Error is set when the server could not serve the file.
type DownloadResponse struct {
	Filename string  `json:"filename"`
	FileData *string `json:"file_data,omitempty"`
	Error    *string `json:"error,omitempty"`
}

// Empty is the payload of parameterless requests.
type Empty struct{}

// Decode converts a generic payload into a typed struct.
func Decode(payload map[string]any, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// ToMap converts a typed payload into its generic map form.
func ToMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
