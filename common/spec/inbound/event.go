// Package inbound defines the normalised envelope every messaging channel
// produces for the message pipeline. Channel adapters (WhatsApp webhook,
// Matrix sync) convert their native payloads into an Event so classification,
// prompting, and dispatch never see platform-specific shapes.
package inbound

import (
	"encoding/json"
	"fmt"
	"time"
)

// Channel names the messaging platform an event arrived on.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelMatrix   Channel = "matrix"
)

// MessageType is the platform-level message type, before classification.
type MessageType string

const (
	TypeText        MessageType = "text"
	TypeAudio       MessageType = "audio"
	TypeInteractive MessageType = "interactive"
)

// Event is one inbound chat message.
type Event struct {
	// ID is the platform message ID. Used to drop redelivered webhooks.
	ID string `json:"id"`

	// Channel is the platform the message arrived on.
	Channel Channel `json:"channel"`

	// SenderID identifies the user. It keys conversation history and the
	// language preference.
	SenderID string `json:"sender_id"`

	// ReplyTo is the address replies are sent to. For WhatsApp this is the
	// sender's phone number; for Matrix it is the room ID.
	ReplyTo string `json:"reply_to"`

	// DisplayName is the sender's profile name when the platform provides one.
	DisplayName string `json:"display_name,omitempty"`

	// Type is the platform message type.
	Type MessageType `json:"type"`

	// Text is the inline text body. For interactive replies it carries the
	// selected option.
	Text string `json:"text,omitempty"`

	// Media is set for audio and voice messages.
	Media *Media `json:"media,omitempty"`

	// TS is when the platform received the message.
	TS time.Time `json:"ts"`
}

// Media is a platform reference to an attachment. It is resolved to a
// short-lived download URL by the channel's media resolver.
type Media struct {
	// ID is the platform media identifier (WhatsApp media ID or mxc:// URI).
	ID string `json:"id"`
	// MIMEType is the type declared by the platform, if any.
	MIMEType string `json:"mime_type,omitempty"`
	// Voice is true for push-to-talk voice notes.
	Voice bool `json:"voice,omitempty"`
}

// HasAudio reports whether the event carries an audio attachment reference.
func (e *Event) HasAudio() bool {
	return e != nil && e.Media != nil && e.Media.ID != ""
}

// Validate checks that an Event is structurally valid.
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("event must not be nil")
	}
	if e.Channel == "" {
		return fmt.Errorf("channel must not be empty")
	}
	if e.SenderID == "" {
		return fmt.Errorf("sender_id must not be empty")
	}
	if e.ReplyTo == "" {
		return fmt.Errorf("reply_to must not be empty")
	}
	switch e.Type {
	case TypeText, TypeInteractive:
		if e.Text == "" {
			return fmt.Errorf("%s message must carry text", e.Type)
		}
	case TypeAudio:
		if !e.HasAudio() {
			return fmt.Errorf("audio message must carry a media reference")
		}
	default:
		return fmt.Errorf("unsupported message type %q", e.Type)
	}
	return nil
}

// Parse decodes a JSON-encoded Event and validates it.
func Parse(data []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("inbound parse: %w", err)
	}
	if err := evt.Validate(); err != nil {
		return nil, fmt.Errorf("inbound validate: %w", err)
	}
	return &evt, nil
}
