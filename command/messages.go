package command

import (
	"strings"

	"github.com/kdevda/go-mailflow/core"
)

const (
	TypeSendEmail           = "mailflow.command.email.send"
	TypeProcessWebhookEvent = "mailflow.command.webhook_event.process"
	TypeSetConfigEntry      = "mailflow.command.config_entry.set"
)

type SendEmailMessage struct {
	Draft core.MessageDraft
}

func (SendEmailMessage) Type() string { return TypeSendEmail }

func (m SendEmailMessage) Validate() error {
	if err := m.Draft.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid email draft")
	}
	return nil
}

type ProcessWebhookEventMessage struct {
	Event core.WebhookEvent
}

func (ProcessWebhookEventMessage) Type() string { return TypeProcessWebhookEvent }

func (m ProcessWebhookEventMessage) Validate() error {
	if strings.TrimSpace(m.Event.Type) == "" {
		return commandValidationError("type", "event type is required")
	}
	if strings.TrimSpace(m.Event.ProviderMessageID) == "" {
		return commandValidationError("data.id", "provider message id is required")
	}
	return nil
}

type SetConfigEntryMessage struct {
	Key     string
	Value   *string
	Secret  bool
	Encrypt bool
}

func (SetConfigEntryMessage) Type() string { return TypeSetConfigEntry }

func (m SetConfigEntryMessage) Validate() error {
	if strings.TrimSpace(m.Key) == "" {
		return commandValidationError("key", "config key is required")
	}
	if m.Encrypt && (m.Value == nil || strings.TrimSpace(*m.Value) == "") {
		return commandValidationError("value", "an encrypted entry needs a value")
	}
	return nil
}
