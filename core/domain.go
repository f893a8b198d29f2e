package core

import (
	"encoding/json"
	"strings"
	"time"
)

type MessageStatus string

const (
	MessageStatusPending    MessageStatus = "pending"
	MessageStatusSending    MessageStatus = "sending"
	MessageStatusSent       MessageStatus = "sent"
	MessageStatusDelivered  MessageStatus = "delivered"
	MessageStatusDelayed    MessageStatus = "delayed"
	MessageStatusBounced    MessageStatus = "bounced"
	MessageStatusComplained MessageStatus = "complained"
	MessageStatusFailed     MessageStatus = "failed"
)

// IsTerminal reports whether the status ends the normal delivery lifecycle.
// Delivered is terminal but may still be superseded by a bounce or complaint.
func (s MessageStatus) IsTerminal() bool {
	switch s {
	case MessageStatusDelivered, MessageStatusBounced, MessageStatusComplained, MessageStatusFailed:
		return true
	default:
		return false
	}
}

func (s MessageStatus) IsFinal() bool {
	switch s {
	case MessageStatusBounced, MessageStatusComplained, MessageStatusFailed:
		return true
	default:
		return false
	}
}

const (
	EventEmailSent            = "email.sent"
	EventEmailDelivered       = "email.delivered"
	EventEmailDeliveryDelayed = "email.delivery_delayed"
	EventEmailComplained      = "email.complained"
	EventEmailBounced         = "email.bounced"
	EventEmailOpened          = "email.opened"
	EventEmailClicked         = "email.clicked"
)

const (
	ConfigKeyResendAPIKey        = "RESEND_API_KEY"
	ConfigKeyResendWebhookSecret = "RESEND_WEBHOOK_SECRET"
	ConfigKeyEmailFromAddress    = "EMAIL_FROM_ADDRESS"
	ConfigKeyEmailFromName       = "EMAIL_FROM_NAME"
)

const (
	DefaultFromAddress = "noreply@example.com"
	DefaultFromName    = "Mailflow"
	UnknownBounceValue = "unknown"
)

type ConfigEntry struct {
	Key         string
	Value       *string
	IsSecret    bool
	IsEncrypted bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasValue reports whether the entry carries a non-blank value. A row with an
// absent or blank value is distinct from a missing row but resolves the same way.
func (e ConfigEntry) HasValue() bool {
	return e.Value != nil && strings.TrimSpace(*e.Value) != ""
}

// DisplayValue returns the value for display, redacting secret entries.
func (e ConfigEntry) DisplayValue() string {
	if e.Value == nil {
		return ""
	}
	if e.IsSecret {
		return RedactedValue
	}
	return *e.Value
}

type Attachment struct {
	Filename    string `json:"filename"`
	Path        string `json:"path"`
	Size        int64  `json:"size,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

type OpenEvent struct {
	Timestamp time.Time `json:"timestamp"`
	IPAddress string    `json:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
}

type ClickEvent struct {
	Timestamp time.Time `json:"timestamp"`
	IPAddress string    `json:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	URL       string    `json:"url,omitempty"`
}

type GenericEvent struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type LastEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageMetadata accumulates dispatch results and delivery events. Keys match
// the JSON document persisted alongside each message.
type MessageMetadata struct {
	ProviderMessageID string          `json:"providerMessageId,omitempty"`
	ProviderResponse  json.RawMessage `json:"providerResponse,omitempty"`
	Error             string          `json:"error,omitempty"`
	DispatchedAt      *time.Time      `json:"dispatchedAt,omitempty"`
	SentAt            *time.Time      `json:"sentAt,omitempty"`
	DeliveredAt       *time.Time      `json:"deliveredAt,omitempty"`
	DelayedAt         *time.Time      `json:"delayedAt,omitempty"`
	ComplainedAt      *time.Time      `json:"complainedAt,omitempty"`
	BouncedAt         *time.Time      `json:"bouncedAt,omitempty"`
	BounceType        string          `json:"bounceType,omitempty"`
	BounceReason      string          `json:"bounceReason,omitempty"`
	OpenEvents        []OpenEvent     `json:"openEvents,omitempty"`
	ClickEvents       []ClickEvent    `json:"clickEvents,omitempty"`
	Events            []GenericEvent  `json:"events,omitempty"`
	LastEvent         *LastEvent      `json:"lastEvent,omitempty"`
}

func (m MessageMetadata) Clone() MessageMetadata {
	out := m
	out.ProviderResponse = cloneRaw(m.ProviderResponse)
	out.DispatchedAt = cloneTime(m.DispatchedAt)
	out.SentAt = cloneTime(m.SentAt)
	out.DeliveredAt = cloneTime(m.DeliveredAt)
	out.DelayedAt = cloneTime(m.DelayedAt)
	out.ComplainedAt = cloneTime(m.ComplainedAt)
	out.BouncedAt = cloneTime(m.BouncedAt)
	out.OpenEvents = append([]OpenEvent(nil), m.OpenEvents...)
	out.ClickEvents = append([]ClickEvent(nil), m.ClickEvents...)
	if len(m.Events) > 0 {
		out.Events = make([]GenericEvent, len(m.Events))
		for i, event := range m.Events {
			event.Data = cloneRaw(event.Data)
			out.Events[i] = event
		}
	} else {
		out.Events = nil
	}
	if m.LastEvent != nil {
		last := *m.LastEvent
		out.LastEvent = &last
	}
	return out
}

type Message struct {
	ID          string
	From        string
	To          []string
	CC          []string
	BCC         []string
	ReplyTo     []string
	Subject     string
	Body        string
	Text        string
	Status      MessageStatus
	Attachments []Attachment
	Metadata    MessageMetadata
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProviderMessageID returns the provider correlation key, empty until a send succeeds.
func (m Message) ProviderMessageID() string {
	return m.Metadata.ProviderMessageID
}

func (m Message) Clone() Message {
	out := m
	out.To = append([]string(nil), m.To...)
	out.CC = append([]string(nil), m.CC...)
	out.BCC = append([]string(nil), m.BCC...)
	out.ReplyTo = append([]string(nil), m.ReplyTo...)
	out.Attachments = append([]Attachment(nil), m.Attachments...)
	out.Metadata = m.Metadata.Clone()
	return out
}

// MessageDraft is the neutral send request built by application code.
type MessageDraft struct {
	From        string
	To          []string
	CC          []string
	BCC         []string
	ReplyTo     []string
	Subject     string
	Body        string
	Text        string
	Attachments []Attachment
}

func (d MessageDraft) Validate() error {
	if len(normalizeAddresses(d.To)) == 0 {
		return newBadInputError("core: at least one recipient is required", map[string]any{"field": "to"})
	}
	if strings.TrimSpace(d.Subject) == "" {
		return newBadInputError("core: subject is required", map[string]any{"field": "subject"})
	}
	if strings.TrimSpace(d.Body) == "" && strings.TrimSpace(d.Text) == "" {
		return newBadInputError("core: body is required", map[string]any{"field": "body"})
	}
	for i, attachment := range d.Attachments {
		if strings.TrimSpace(attachment.Filename) == "" || strings.TrimSpace(attachment.Path) == "" {
			return newBadInputError("core: attachment filename and path are required", map[string]any{
				"field": "attachments",
				"index": i,
			})
		}
	}
	return nil
}

// WebhookEvent is one decoded provider callback. It is never persisted.
type WebhookEvent struct {
	ProviderID        string
	Type              string
	ProviderMessageID string
	Data              json.RawMessage
	OccurredAt        time.Time
	ReceivedAt        time.Time
}

// Timestamp returns the provider event time, falling back to receive time.
func (e WebhookEvent) Timestamp() time.Time {
	if !e.OccurredAt.IsZero() {
		return e.OccurredAt.UTC()
	}
	return e.ReceivedAt.UTC()
}

func normalizeAddresses(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := value.UTC()
	return &copied
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
