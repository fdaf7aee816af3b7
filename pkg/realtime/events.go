package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/digital-persona/go-clientcore/pkg/persona"
)

// Inbound event type tags.
const (
	TypeMessage       = "message"
	TypeTyping        = "typing"
	TypePersonaStatus = "personaStatus"
	TypeUserJoined    = "userJoined"
	TypeUserLeft      = "userLeft"
)

// Outbound operation type tags.
const (
	TypeSendMessage         = "sendMessage"
	TypeJoinConversation    = "joinConversation"
	TypeLeaveConversation   = "leaveConversation"
	TypeStartTyping         = "startTyping"
	TypeStopTyping          = "stopTyping"
	TypeUpdatePersonaStatus = "updatePersonaStatus"
)

// ErrUnknownEventType marks a frame whose type tag is not part of the inbound
// contract. Such frames are logged and skipped, never fatal.
var ErrUnknownEventType = errors.New("realtime: unknown event type")

// Envelope is the wire format for every frame: a type tag and a payload.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Event is the closed union of inbound events. Adding a member means
// extending DecodeEvent and every switch over Event, which is exactly the
// point: a new message type is a compile-visible change, not a silently
// ignored default case.
type Event interface {
	isEvent()
}

// MessageEvent carries a chat message.
type MessageEvent struct {
	Message persona.ChatMessage
}

// TypingEvent carries a typing indicator transition.
type TypingEvent struct {
	Typing persona.TypingState
}

// PersonaStatusEvent carries a live persona status update.
type PersonaStatusEvent struct {
	Status persona.Status
}

// UserJoinedEvent reports a user coming online.
type UserJoinedEvent struct {
	UserID string `json:"userId"`
}

// UserLeftEvent reports a user going offline.
type UserLeftEvent struct {
	UserID string `json:"userId"`
}

func (MessageEvent) isEvent()       {}
func (TypingEvent) isEvent()        {}
func (PersonaStatusEvent) isEvent() {}
func (UserJoinedEvent) isEvent()    {}
func (UserLeftEvent) isEvent()      {}

// DecodeEvent parses one wire frame into an Event.
func DecodeEvent(frame []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch env.Type {
	case TypeMessage:
		var m persona.ChatMessage
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", env.Type, err)
		}
		return MessageEvent{Message: m}, nil
	case TypeTyping:
		var ts persona.TypingState
		if err := json.Unmarshal(env.Payload, &ts); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", env.Type, err)
		}
		return TypingEvent{Typing: ts}, nil
	case TypePersonaStatus:
		var st persona.Status
		if err := json.Unmarshal(env.Payload, &st); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", env.Type, err)
		}
		return PersonaStatusEvent{Status: st}, nil
	case TypeUserJoined:
		var e UserJoinedEvent
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", env.Type, err)
		}
		return e, nil
	case TypeUserLeft:
		var e UserLeftEvent
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", env.Type, err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.Type)
	}
}

// EncodeFrame serializes a type tag and payload into the wire envelope.
func EncodeFrame(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return json.Marshal(Envelope{Type: eventType, Payload: raw})
}
