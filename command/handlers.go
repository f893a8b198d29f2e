package command

import (
	"context"
	"strings"

	gocmd "github.com/goliatone/go-command"
	"github.com/kdevda/go-mailflow/core"
)

type SendingService interface {
	Send(ctx context.Context, draft core.MessageDraft) (core.SendResult, error)
}

type EventProcessingService interface {
	ProcessEvent(ctx context.Context, event core.WebhookEvent) (core.ProcessResult, error)
}

type SendEmailCommand struct {
	service SendingService
}

func NewSendEmailCommand(service SendingService) *SendEmailCommand {
	return &SendEmailCommand{service: service}
}

// Execute stores the SendResult even when the provider call fails so callers
// can read the persisted message id alongside the error.
func (c *SendEmailCommand) Execute(ctx context.Context, msg SendEmailMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: send service is required")
	}
	out, err := c.service.Send(ctx, msg.Draft)
	storeResult(ctx, out)
	return err
}

type ProcessWebhookEventCommand struct {
	service EventProcessingService
}

func NewProcessWebhookEventCommand(service EventProcessingService) *ProcessWebhookEventCommand {
	return &ProcessWebhookEventCommand{service: service}
}

func (c *ProcessWebhookEventCommand) Execute(ctx context.Context, msg ProcessWebhookEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: event processing service is required")
	}
	out, err := c.service.ProcessEvent(ctx, msg.Event)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SetConfigEntryCommand struct {
	writer  core.ConfigEntryWriter
	secrets core.SecretProvider
}

func NewSetConfigEntryCommand(writer core.ConfigEntryWriter, secrets core.SecretProvider) *SetConfigEntryCommand {
	return &SetConfigEntryCommand{writer: writer, secrets: secrets}
}

func (c *SetConfigEntryCommand) Execute(ctx context.Context, msg SetConfigEntryMessage) error {
	if c == nil || c.writer == nil {
		return commandDependencyError("command: config entry writer is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	entry := core.ConfigEntry{
		Key:      strings.TrimSpace(msg.Key),
		IsSecret: msg.Secret || msg.Encrypt,
	}
	if msg.Value != nil {
		value := *msg.Value
		entry.Value = &value
	}
	if msg.Encrypt {
		if c.secrets == nil {
			return commandInvalidInputError("command: encryption requested but no secret provider is configured")
		}
		sealed, err := core.EncodeEncryptedValue(ctx, c.secrets, *msg.Value)
		if err != nil {
			return err
		}
		entry.Value = &sealed
		entry.IsEncrypted = true
	}
	stored, err := c.writer.Upsert(ctx, entry)
	if err != nil {
		return err
	}
	storeResult(ctx, stored)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
