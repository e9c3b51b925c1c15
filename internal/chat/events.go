package chat

import (
	"encoding/json"
	"fmt"
)

// Frame is the wire envelope in both directions: {"event": ..., "data": ...}.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func EncodeFrame(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// Event is one decoded inbound client action. The set of variants is closed:
// JoinChat, SendMessage, Typing and MarkRead.
type Event interface {
	isEvent()
}

type JoinChat struct {
	RequestID string `json:"requestId"`
	UserID    string `json:"userId"`
	PartnerID string `json:"partnerId"`
}

type SendMessage struct {
	RequestID string `json:"requestId"`
	Message   string `json:"message"`
	Sender    Role   `json:"sender"`
}

// Typing covers typing_start (Start=true) and typing_stop.
type Typing struct {
	RequestID string `json:"requestId"`
	Sender    Role   `json:"sender"`
	Start     bool   `json:"-"`
}

type MarkRead struct {
	RequestID string `json:"requestId"`
	MessageID string `json:"messageId"`
}

func (JoinChat) isEvent()    {}
func (SendMessage) isEvent() {}
func (Typing) isEvent()      {}
func (MarkRead) isEvent()    {}

// Inbound event names.
const (
	InJoinChat    = "join_chat"
	InSendMessage = "send_message"
	InTypingStart = "typing_start"
	InTypingStop  = "typing_stop"
	InMarkRead    = "mark_read"
)

// DecodeEvent parses a raw frame into a known variant. Field-level checks
// (empty ids, bad roles) are left to the handler.
func DecodeEvent(raw []byte) (Event, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if len(f.Data) == 0 {
		f.Data = json.RawMessage("{}")
	}

	var (
		ev  Event
		err error
	)
	switch f.Event {
	case InJoinChat:
		var e JoinChat
		err = json.Unmarshal(f.Data, &e)
		ev = e
	case InSendMessage:
		var e SendMessage
		err = json.Unmarshal(f.Data, &e)
		ev = e
	case InTypingStart, InTypingStop:
		var e Typing
		err = json.Unmarshal(f.Data, &e)
		e.Start = f.Event == InTypingStart
		ev = e
	case InMarkRead:
		var e MarkRead
		err = json.Unmarshal(f.Data, &e)
		ev = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrValidation, f.Event, err)
	}
	return ev, nil
}
