package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Inbound event names.
const (
	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventSendMessage = "sendMessage"
	EventAnalyzeChat = "analyzeChat"
	EventTypingStart = "typingStart"
	EventTypingStop  = "typingStop"
	EventMessageRead = "messageRead"
)

// Outbound event names.
const (
	EventNewMessage        = "newMessage"
	EventAIThinking        = "aiThinking"
	EventAnalysisComplete  = "analysisComplete"
	EventErrorMessage      = "errorMessage"
	EventUserTyping        = "userTyping"
	EventMessageReadUpdate = "messageReadUpdate"
)

// InboundEvent is the envelope every client frame arrives in.
type InboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// OutboundEvent is the envelope every server frame is sent in.
type OutboundEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ErrMissingField is wrapped by every payload validation error.
var ErrMissingField = errors.New("missing required field")

// RoomRef carries a room id. It decodes from either a bare JSON string or
// an object with a roomId field.
type RoomRef struct {
	RoomID string `json:"roomId"`
}

func (r *RoomRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.RoomID)
	}
	type plain RoomRef
	return json.Unmarshal(data, (*plain)(r))
}

// Validate checks the room id is present.
func (r RoomRef) Validate() error {
	if strings.TrimSpace(r.RoomID) == "" {
		return fmt.Errorf("%w: roomId", ErrMissingField)
	}
	return nil
}

// SendMessagePayload is the data of a sendMessage event.
type SendMessagePayload struct {
	RoomID     string `json:"roomId"`
	Text       string `json:"text"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	// PendingID is the client's provisional id; it is echoed back, never stored.
	PendingID string `json:"pendingId,omitempty"`
	// Message is accepted as an alias for Text.
	Message string `json:"message,omitempty"`
}

// Normalize trims fields and folds the Message alias into Text.
func (p *SendMessagePayload) Normalize() {
	if strings.TrimSpace(p.Text) == "" && p.Message != "" {
		p.Text = p.Message
	}
	p.Message = ""
	p.RoomID = strings.TrimSpace(p.RoomID)
	p.SenderID = strings.TrimSpace(p.SenderID)
	p.SenderName = strings.TrimSpace(p.SenderName)
}

// Validate rejects payloads with an empty room, text, sender id or sender name.
func (p SendMessagePayload) Validate() error {
	fields := []struct{ name, value string }{
		{"roomId", p.RoomID},
		{"text", p.Text},
		{"senderId", p.SenderID},
		{"senderName", p.SenderName},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, f.name)
		}
	}
	return nil
}

// TypingPayload is the data of typingStart/typingStop.
type TypingPayload struct {
	RoomID     string `json:"roomId"`
	SenderName string `json:"senderName"`
}

// MessageReadPayload is the data of messageRead.
type MessageReadPayload struct {
	RoomID    string `json:"roomId"`
	MessageID uint   `json:"messageId"`
	UserID    string `json:"userId"`
}

// Validate rejects receipts without room, message or user.
func (p MessageReadPayload) Validate() error {
	if strings.TrimSpace(p.RoomID) == "" || p.MessageID == 0 || strings.TrimSpace(p.UserID) == "" {
		return fmt.Errorf("%w: roomId, messageId and userId", ErrMissingField)
	}
	return nil
}

// NewMessageData is the payload of newMessage.
type NewMessageData struct {
	Message
	PendingID string `json:"pendingId,omitempty"`
}

// AIThinkingData is the payload of aiThinking.
type AIThinkingData struct {
	RoomID string `json:"roomId"`
}

// AnalysisCompleteData is the payload of analysisComplete.
type AnalysisCompleteData struct {
	RoomID   string `json:"roomId"`
	Analysis string `json:"analysis"`
}

// ErrorData is the payload of errorMessage.
type ErrorData struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	RoomID string `json:"roomId,omitempty"`
}

// UserTypingData is the payload of userTyping.
type UserTypingData struct {
	RoomID     string `json:"roomId"`
	SenderName string `json:"senderName"`
	IsTyping   bool   `json:"isTyping"`
}

// MessageReadUpdateData is the payload of messageReadUpdate.
type MessageReadUpdateData struct {
	RoomID    string `json:"roomId"`
	MessageID uint   `json:"messageId"`
	UserID    string `json:"userId"`
}
