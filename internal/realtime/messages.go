package realtime

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Wire message types exchanged on the socket. The inbound set is closed:
// anything else is rejected at the boundary.
const (
	MessageTypeRegister           = "register"
	MessageTypePing               = "ping"
	MessageTypePong               = "pong"
	MessageTypeNotification       = "notification"
	MessageTypeBroadcast          = "broadcast"
	MessageTypeUnreadNotification = "unread_notifications"
	MessageTypeAdminNotification  = "admin_notifications"
)

// Envelope is the JSON frame shared by both directions.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// OutboundEnvelope carries server-to-client payloads.
type OutboundEnvelope struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewOutbound stamps the envelope with the current time.
func NewOutbound(msgType string, data any) OutboundEnvelope {
	return OutboundEnvelope{Type: msgType, Data: data, Timestamp: time.Now().UTC()}
}

// InboundMessage is the closed set of client-to-server messages.
type InboundMessage interface {
	inbound()
}

// RegisterMessage binds an identity to the connection.
type RegisterMessage struct {
	UserID  *uuid.UUID
	IsAdmin bool
}

func (RegisterMessage) inbound() {}

// PingMessage is a client liveness probe.
type PingMessage struct{}

func (PingMessage) inbound() {}

type registerPayload struct {
	ID   string `json:"id" validate:"omitempty,uuid"`
	Role string `json:"role" validate:"omitempty,oneof=customer admin"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// DecodeInbound parses and validates a raw client frame.
func DecodeInbound(raw []byte) (InboundMessage, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch envelope.Type {
	case MessageTypePing:
		return PingMessage{}, nil
	case MessageTypeRegister:
		var payload registerPayload
		if len(envelope.Data) > 0 {
			if err := json.Unmarshal(envelope.Data, &payload); err != nil {
				return nil, fmt.Errorf("decode register payload: %w", err)
			}
		}
		if err := validate.Struct(payload); err != nil {
			return nil, fmt.Errorf("invalid register payload: %w", err)
		}
		msg := RegisterMessage{IsAdmin: payload.Role == "admin"}
		if payload.ID != "" {
			id, err := uuid.Parse(payload.ID)
			if err != nil {
				return nil, fmt.Errorf("invalid register id: %w", err)
			}
			msg.UserID = &id
		}
		if msg.UserID == nil && !msg.IsAdmin {
			return nil, fmt.Errorf("register requires an id or the admin role")
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("unsupported message type %q", envelope.Type)
	}
}
