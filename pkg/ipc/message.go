// Package ipc defines the wire protocol shared by the deskd host and app
// frontends. Every message is a single JSON envelope carrying a
// "namespace/action" command string.
package ipc

import (
	"encoding/json"
	"strings"
	"time"
)

// MessageType represents the type of an IPC message.
type MessageType string

const (
	MessageTypeRequest  MessageType = "request"
	MessageTypeResponse MessageType = "response"
	MessageTypeEvent    MessageType = "event"
	MessageTypeError    MessageType = "error"
)

// Message is the base envelope for all IPC messages.
type Message struct {
	ID        string          `json:"id,omitempty"`
	Type      MessageType     `json:"type"`
	Command   string          `json:"command"`
	OK        bool            `json:"ok,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     *ErrorPayload   `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ErrorPayload is the wire form of a dispatch failure. Kind is a stable code
// from internal/common/errors; frontends branch on it.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// NewRequest creates a new request message.
func NewRequest(id, command string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        id,
		Type:      MessageTypeRequest,
		Command:   command,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewResponse creates a new success response message.
func NewResponse(id, command string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        id,
		Type:      MessageTypeResponse,
		Command:   command,
		OK:        true,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewRawResponse creates a success response from an already-marshaled
// payload.
func NewRawResponse(id, command string, payload json.RawMessage) *Message {
	return &Message{
		ID:        id,
		Type:      MessageTypeResponse,
		Command:   command,
		OK:        true,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// NewEvent creates a new unsolicited event notification.
func NewEvent(command string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      MessageTypeEvent,
		Command:   command,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewError creates a new error response message. The result is discriminated
// from success by the presence of the error key.
func NewError(id, command, kind, message string) *Message {
	return &Message{
		ID:      id,
		Type:    MessageTypeError,
		Command: command,
		Error: &ErrorPayload{
			Kind:    kind,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	}
}

// ParsePayload parses the payload into the given struct.
func (m *Message) ParsePayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

// SplitCommand splits a "namespace/action" command string. The namespace is
// everything before the first slash; commands without a slash have an empty
// action.
func SplitCommand(command string) (namespace, action string) {
	if i := strings.Index(command, "/"); i >= 0 {
		return command[:i], command[i+1:]
	}
	return command, ""
}

// JoinCommand builds a "namespace/action" command string.
func JoinCommand(namespace, action string) string {
	return namespace + "/" + action
}
