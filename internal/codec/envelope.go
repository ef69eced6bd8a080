// envelope.go — tagged encoding/decoding of the extension-side message envelope.
// The tag lives at top-level key "type"; variants are request, response,
// notification, heartbeat. Decoding is lenient by design (see ParseFrame):
// the envelope format has evolved across extension versions and unknown
// shapes must not tear down the connection.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Envelope variant tags.
const (
	TypeRequest      = "request"
	TypeResponse     = "response"
	TypeNotification = "notification"
	TypeHeartbeat    = "heartbeat"
	// TypeConnection is a legacy variant handled only by the lenient path.
	TypeConnection = "connection"
)

// Envelope is the strict, fully-typed frame shape. Only the fields relevant
// to the frame's Type are populated; the others are zero.
type Envelope struct {
	Type string `json:"type"`

	// request
	RequestID string          `json:"request_id,omitempty"`
	Action    string          `json:"action,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	TabID     *uint32         `json:"tab_id,omitempty"`

	// response
	Result *ResponseResult `json:"result,omitempty"`

	// notification
	Event *EventEnvelope `json:"event,omitempty"`

	// heartbeat
	Timestamp string `json:"timestamp,omitempty"`
}

// ResponseResult is the Rust-style Result<BrowserResponse, String> shape:
// exactly one of Ok/Err is populated.
type ResponseResult struct {
	Ok  json.RawMessage `json:"Ok,omitempty"`
	Err *string         `json:"Err,omitempty"`
}

// EventEnvelope carries a BrowserEvent tagged by its own "type" field.
type EventEnvelope struct {
	Type  string  `json:"type"`
	TabID *uint32 `json:"tab_id,omitempty"`
	Raw   json.RawMessage
}

// UnmarshalJSON keeps the raw bytes around so higher layers can decode the
// event-specific fields on demand without a second round trip to the wire.
func (e *EventEnvelope) UnmarshalJSON(data []byte) error {
	type shape struct {
		Type  string  `json:"type"`
		TabID *uint32 `json:"tab_id,omitempty"`
	}
	var s shape
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	e.Type = s.Type
	e.TabID = s.TabID
	e.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (e EventEnvelope) MarshalJSON() ([]byte, error) {
	if e.Raw != nil {
		return e.Raw, nil
	}
	type shape struct {
		Type  string  `json:"type"`
		TabID *uint32 `json:"tab_id,omitempty"`
	}
	return json.Marshal(shape{Type: e.Type, TabID: e.TabID})
}

// NewHeartbeat builds a heartbeat envelope stamped with the current time.
func NewHeartbeat(now time.Time) Envelope {
	return Envelope{Type: TypeHeartbeat, Timestamp: now.UTC().Format(time.RFC3339)}
}

// NewRequest builds a request envelope for action with the given params.
func NewRequest(requestID, action string, tabID *uint32, params any) (Envelope, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Envelope{}, fmt.Errorf("codec: marshal params for %s: %w", action, err)
	}
	return Envelope{
		Type:      TypeRequest,
		RequestID: requestID,
		Action:    action,
		Params:    raw,
		TabID:     tabID,
	}, nil
}

// Encode serialises an envelope for the outbound queue.
func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// ParseResult is what ParseFrame returns: either a strictly-typed Envelope,
// or — when strict decoding fails but the bytes are still valid JSON — a
// generic object handled by the lenient fallback path.
type ParseResult struct {
	Envelope *Envelope
	Lenient  map[string]json.RawMessage
}

// ParseFrame attempts a strict decode first. On failure it falls back to a
// generic JSON object decode so the lenient policy can still react to
// known-but-unmodeled types (notification, heartbeat, response, connection)
// without tearing down the connection. Returns an error only when the bytes
// are not valid JSON at all, which the caller must treat as InvalidRequest.
func ParseFrame(data []byte) (ParseResult, error) {
	var env Envelope
	if err := strictUnmarshal(data, &env); err == nil && env.Type != "" {
		return ParseResult{Envelope: &env}, nil
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(data, &generic); err != nil {
		return ParseResult{}, fmt.Errorf("codec: frame is not valid JSON: %w", err)
	}
	return ParseResult{Lenient: generic}, nil
}

// strictUnmarshal rejects unknown top-level fields so a frame that merely
// resembles an envelope does not silently succeed with partial data — this
// is what routes malformed-but-JSON frames into the lenient fallback.
func strictUnmarshal(data []byte, env *Envelope) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(env)
}

// LenientType reads the "type" string out of a lenient-parsed frame, if any.
func LenientType(fields map[string]json.RawMessage) (string, bool) {
	raw, ok := fields["type"]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// LenientTabID reads "tab_id" or "tabId" out of a lenient-parsed frame.
func LenientTabID(fields map[string]json.RawMessage) (uint32, bool) {
	for _, key := range []string{"tab_id", "tabId"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var id uint32
		if err := json.Unmarshal(raw, &id); err == nil && id != 0 {
			return id, true
		}
	}
	return 0, false
}
