package server

import (
	"encoding/json"
	"fmt"
	"time"
)

const EventVersion = 1

// Outbound events owned by the server rather than a session.
const (
	EventConnection         = "connection"
	EventDocumentsExtracted = "documents_extracted"
)

// Inbound event names.
const (
	EventStartInterview      = "start_interview"
	EventSendMessage         = "send_message"
	EventSendVoiceTranscript = "send_voice_transcript"
	EventStartVoiceStream    = "start_voice_stream"
	EventStopVoiceStream     = "stop_voice_stream"
	EventAudioChunk          = "audio_chunk"
	EventExecuteCommand      = "execute_command"
	EventRequestFeedback     = "request_feedback"
	EventExtractDocuments    = "extract_documents"
)

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type ConnectionEvent struct {
	Connected bool   `json:"connected"`
	SessionID string `json:"session_id"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}

// encodeEvent flattens payload's JSON fields into the event envelope. A nil
// payload produces the bare envelope. Payload fields never override the
// envelope fields.
func encodeEvent(eventType string, payload any, now time.Time) ([]byte, error) {
	envelope := newEvent(eventType, now)
	if payload == nil {
		return json.Marshal(envelope)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%s payload is not an object: %w", eventType, err)
	}

	head, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(head, &fields); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// inbound is a client frame: {"type": ..., "data": ...}.
type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type startRequest struct {
	Role   string          `json:"role"`
	Mode   string          `json:"mode"`
	Config json.RawMessage `json:"config"`
}

type commandRequest struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

type extractRequest struct {
	JobDescription string `json:"jd_text"`
	Resume         string `json:"resume_text"`
	Role           string `json:"role"`
}

type audioRequest struct {
	Audio string `json:"audio"`
}

// decodeText accepts either {"text": "..."} or a bare JSON string.
func decodeText(data json.RawMessage) (string, error) {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		return text, nil
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", fmt.Errorf("decode text payload: %w", err)
	}
	return obj.Text, nil
}
