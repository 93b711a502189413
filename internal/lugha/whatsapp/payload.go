package whatsapp

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bdobrica/Lugha/common/spec/inbound"
)

//go:embed schema.json
var schemaJSON string

var notificationSchema = jsonschema.MustCompileString("whatsapp-notification.schema.json", schemaJSON)

// Notification is the webhook POST body.
type Notification struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	MessagingProduct string            `json:"messaging_product"`
	Contacts         []Contact         `json:"contacts"`
	Messages         []Message         `json:"messages"`
	Statuses         []json.RawMessage `json:"statuses"`
}

type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type Message struct {
	From        string       `json:"from"`
	ID          string       `json:"id"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type"`
	Text        *TextBody    `json:"text,omitempty"`
	Audio       *MediaRef    `json:"audio,omitempty"`
	Voice       *MediaRef    `json:"voice,omitempty"`
	Button      *Button      `json:"button,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
}

type TextBody struct {
	Body string `json:"body"`
}

type MediaRef struct {
	ID       string `json:"id"`
	MIMEType string `json:"mime_type"`
	Voice    bool   `json:"voice"`
}

type Button struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

type Interactive struct {
	Type        string `json:"type"`
	ButtonReply *Reply `json:"button_reply,omitempty"`
	ListReply   *Reply `json:"list_reply,omitempty"`
}

type Reply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ParseNotification validates body against the notification schema and
// decodes it.
func ParseNotification(body []byte) (*Notification, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("whatsapp: decode notification: %w", err)
	}
	if err := notificationSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("whatsapp: invalid notification: %w", err)
	}
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("whatsapp: decode notification: %w", err)
	}
	return &n, nil
}

// Events normalises every supported message in n. Status callbacks and
// unsupported message types (images, stickers, locations) are skipped.
func (n *Notification) Events() []*inbound.Event {
	var out []*inbound.Event
	for _, entry := range n.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, msg := range change.Value.Messages {
				evt, ok := msg.event(names[msg.From])
				if !ok {
					slog.Debug("whatsapp: skipping unsupported message", "type", msg.Type, "id", msg.ID)
					continue
				}
				out = append(out, evt)
			}
		}
	}
	return out
}

func (m Message) event(displayName string) (*inbound.Event, bool) {
	evt := &inbound.Event{
		ID:          m.ID,
		Channel:     inbound.ChannelWhatsApp,
		SenderID:    m.From,
		ReplyTo:     m.From,
		DisplayName: displayName,
		TS:          parseTimestamp(m.Timestamp),
	}

	switch m.Type {
	case "text":
		if m.Text == nil {
			return nil, false
		}
		evt.Type = inbound.TypeText
		evt.Text = m.Text.Body
	case "audio", "voice":
		ref := m.Audio
		if ref == nil {
			ref = m.Voice
		}
		if ref == nil {
			return nil, false
		}
		evt.Type = inbound.TypeAudio
		evt.Media = &inbound.Media{
			ID:       ref.ID,
			MIMEType: ref.MIMEType,
			Voice:    ref.Voice || m.Type == "voice",
		}
	case "interactive":
		if m.Interactive == nil {
			return nil, false
		}
		evt.Type = inbound.TypeInteractive
		switch {
		case m.Interactive.ButtonReply != nil:
			evt.Text = replyText(m.Interactive.ButtonReply)
		case m.Interactive.ListReply != nil:
			evt.Text = replyText(m.Interactive.ListReply)
		}
	case "button":
		if m.Button == nil {
			return nil, false
		}
		evt.Type = inbound.TypeInteractive
		evt.Text = m.Button.Text
		if evt.Text == "" {
			evt.Text = m.Button.Payload
		}
	default:
		return nil, false
	}

	if evt.Validate() != nil {
		return nil, false
	}
	return evt, true
}

func replyText(r *Reply) string {
	if strings.TrimSpace(r.Title) != "" {
		return r.Title
	}
	return r.ID
}

func parseTimestamp(s string) time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil || secs <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(secs, 0).UTC()
}
