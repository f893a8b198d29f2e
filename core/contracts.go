package core

import (
	"context"
	"encoding/json"

	glog "github.com/goliatone/go-logger/glog"
)

// ConfigEntryStore is the read side of persisted configuration.
type ConfigEntryStore interface {
	Get(ctx context.Context, key string) (ConfigEntry, error)
}

// ConfigEntryWriter is used by provisioning tooling; the runtime never writes config.
type ConfigEntryWriter interface {
	Upsert(ctx context.Context, entry ConfigEntry) (ConfigEntry, error)
}

// MessageMutation edits a message in place. A mutation may be invoked more than
// once when a concurrent writer wins the version race, so it must only derive
// its changes from the message it receives.
type MessageMutation func(msg *Message) error

type MessageStore interface {
	Create(ctx context.Context, msg Message) (Message, error)
	Get(ctx context.Context, id string) (Message, error)
	FindByProviderMessageID(ctx context.Context, providerMessageID string) (Message, error)
	Update(ctx context.Context, id string, mutate MessageMutation) (Message, error)
}

type ProviderAttachment struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

// ProviderSendRequest is the provider-bound payload built from a Message.
type ProviderSendRequest struct {
	APIKey      string
	From        string
	To          []string
	CC          []string
	BCC         []string
	ReplyTo     []string
	Subject     string
	HTML        string
	Text        string
	Attachments []ProviderAttachment
}

type ProviderSendResponse struct {
	ProviderMessageID string
	StatusCode        int
	Raw               json.RawMessage
}

// EmailProvider performs exactly one provider call per Send.
type EmailProvider interface {
	ID() string
	Send(ctx context.Context, req ProviderSendRequest) (ProviderSendResponse, error)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type InboundRequest struct {
	ProviderID string
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Message    string
	Error      string
	Metadata   map[string]any
}

// WebhookHandler turns an inbound provider callback into an acknowledgement.
type WebhookHandler interface {
	Handle(ctx context.Context, req InboundRequest) (InboundResult, error)
}

// MailService is the application-facing surface consumed by commands, queries,
// and transports.
type MailService interface {
	Send(ctx context.Context, draft MessageDraft) (SendResult, error)
	GetMessage(ctx context.Context, id string) (Message, error)
	ProcessEvent(ctx context.Context, event WebhookEvent) (ProcessResult, error)
}
