package types

import (
	"encoding/json"
	"time"
)

// SessionStatus represents the current state of a gateway session
type SessionStatus string

const (
	SessionStatusStarting SessionStatus = "STARTING"
	SessionStatusWorking  SessionStatus = "WORKING"
	SessionStatusStopped  SessionStatus = "STOPPED"
	SessionStatusFailed   SessionStatus = "FAILED"
)

// Session represents a gateway session
type Session struct {
	Name      string        `json:"name"`
	Status    SessionStatus `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
	Error     string        `json:"error,omitempty"`
}

// SendOptions carries optional send parameters. MessageID, when set, is
// used as the outbound message's correlation identifier.
type SendOptions struct {
	MessageID string `json:"messageId,omitempty"`
	QuotedID  string `json:"quotedId,omitempty"`
}

// SendMessageRequest is the wire request for text sends
type SendMessageRequest struct {
	Session   string `json:"session"`
	ChatID    string `json:"chatId"`
	Text      string `json:"text"`
	MessageID string `json:"messageId,omitempty"`
	QuotedID  string `json:"quotedId,omitempty"`
}

// SendMessageResponse is the gateway's reply to a send
type SendMessageResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// SeenRequest marks inbound messages as read
type SeenRequest struct {
	Session    string   `json:"session"`
	ChatID     string   `json:"chatId"`
	MessageIDs []string `json:"messageIds,omitempty"`
}

// EventEnvelope wraps one event from the gateway's websocket feed
type EventEnvelope struct {
	Event   string          `json:"event"`
	Session string          `json:"session"`
	Payload json.RawMessage `json:"payload"`
}

// MessageEvent is the payload of a "message" envelope
type MessageEvent struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	PushName  string `json:"pushName"`
	Body      string `json:"body"`
	Caption   string `json:"caption"`
	Timestamp int64  `json:"timestamp"`
	FromMe    bool   `json:"fromMe"`
}

// ClientConfig represents the configuration for the gateway client
type ClientConfig struct {
	BaseURL    string        `json:"base_url"`
	APIKey     string        `json:"api_key"`
	Timeout    time.Duration `json:"timeout"`
	RetryCount int           `json:"retry_count"`
}

// ErrorResponse represents error responses from the gateway API
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}
