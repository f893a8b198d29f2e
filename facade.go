package mailflow

import (
	"context"
	"fmt"

	gocmd "github.com/goliatone/go-command"
	mailcommand "github.com/kdevda/go-mailflow/command"
	"github.com/kdevda/go-mailflow/core"
	mailquery "github.com/kdevda/go-mailflow/query"
)

type CommandQueryService interface {
	mailcommand.SendingService
	mailcommand.EventProcessingService
	mailquery.MessageReader
}

type ConfigEntryReadWriter interface {
	core.ConfigEntryStore
	core.ConfigEntryWriter
}

type Commands struct {
	SendEmail           *mailcommand.SendEmailCommand
	ProcessWebhookEvent *mailcommand.ProcessWebhookEventCommand
	SetConfigEntry      *mailcommand.SetConfigEntryCommand
}

type Queries struct {
	GetMessage     *mailquery.GetMessageQuery
	GetConfigEntry *mailquery.GetConfigEntryQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	configStore ConfigEntryReadWriter
	secrets     core.SecretProvider
}

// WithFacadeConfigStore overrides the config store taken from the service.
func WithFacadeConfigStore(store ConfigEntryReadWriter) FacadeOption {
	return func(options *facadeOptions) {
		options.configStore = store
	}
}

func WithFacadeSecretProvider(secrets core.SecretProvider) FacadeOption {
	return func(options *facadeOptions) {
		options.secrets = secrets
	}
}

// NewFacade wires commands and queries. Config commands are only built when a
// writable config store is available, either passed in or exposed by the
// service dependencies.
func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("mailflow: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	deps := resolveDependencies(service)
	if cfg.configStore == nil {
		if store, ok := deps.ConfigStore.(ConfigEntryReadWriter); ok {
			cfg.configStore = store
		}
	}
	if cfg.secrets == nil {
		cfg.secrets = deps.SecretProvider
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		SendEmail:           mailcommand.NewSendEmailCommand(service),
		ProcessWebhookEvent: mailcommand.NewProcessWebhookEventCommand(service),
	}
	facade.queries = Queries{
		GetMessage: mailquery.NewGetMessageQuery(service),
	}
	if cfg.configStore != nil {
		facade.commands.SetConfigEntry = mailcommand.NewSetConfigEntryCommand(cfg.configStore, cfg.secrets)
		facade.queries.GetConfigEntry = mailquery.NewGetConfigEntryQuery(cfg.configStore)
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// SendEmail returns the collected SendResult alongside any send error.
func (f *Facade) SendEmail(ctx context.Context, draft core.MessageDraft) (core.SendResult, error) {
	if f == nil || f.commands.SendEmail == nil {
		return core.SendResult{}, fmt.Errorf("mailflow: send command is not configured")
	}
	msg := mailcommand.SendEmailMessage{Draft: draft}
	if err := msg.Validate(); err != nil {
		return core.SendResult{}, err
	}
	collector := gocmd.NewResult[core.SendResult]()
	err := f.commands.SendEmail.Execute(gocmd.ContextWithResult(contextOrBackground(ctx), collector), msg)
	result, _ := collector.Load()
	return result, err
}

func (f *Facade) ProcessEvent(ctx context.Context, event core.WebhookEvent) (core.ProcessResult, error) {
	if f == nil || f.commands.ProcessWebhookEvent == nil {
		return core.ProcessResult{}, fmt.Errorf("mailflow: process event command is not configured")
	}
	collector := gocmd.NewResult[core.ProcessResult]()
	err := f.commands.ProcessWebhookEvent.Execute(
		gocmd.ContextWithResult(contextOrBackground(ctx), collector),
		mailcommand.ProcessWebhookEventMessage{Event: event},
	)
	result, _ := collector.Load()
	return result, err
}

func (f *Facade) GetMessage(ctx context.Context, id string) (core.Message, error) {
	if f == nil || f.queries.GetMessage == nil {
		return core.Message{}, fmt.Errorf("mailflow: get message query is not configured")
	}
	return f.queries.GetMessage.Query(contextOrBackground(ctx), mailquery.GetMessageMessage{MessageID: id})
}

func (f *Facade) SetConfigEntry(ctx context.Context, msg mailcommand.SetConfigEntryMessage) (core.ConfigEntry, error) {
	if f == nil || f.commands.SetConfigEntry == nil {
		return core.ConfigEntry{}, fmt.Errorf("mailflow: config store is not configured")
	}
	collector := gocmd.NewResult[core.ConfigEntry]()
	if err := f.commands.SetConfigEntry.Execute(gocmd.ContextWithResult(contextOrBackground(ctx), collector), msg); err != nil {
		return core.ConfigEntry{}, err
	}
	entry, _ := collector.Load()
	return entry, nil
}

func (f *Facade) GetConfigEntry(ctx context.Context, key string) (mailquery.ConfigEntryView, error) {
	if f == nil || f.queries.GetConfigEntry == nil {
		return mailquery.ConfigEntryView{}, fmt.Errorf("mailflow: config store is not configured")
	}
	return f.queries.GetConfigEntry.Query(contextOrBackground(ctx), mailquery.GetConfigEntryMessage{Key: key})
}

func resolveDependencies(service CommandQueryService) core.ServiceDependencies {
	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return core.ServiceDependencies{}
	}
	return provider.Dependencies()
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
