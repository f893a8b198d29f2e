package core

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

const TemporaryMessageIDPrefix = "tmp_"

type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	secretProvider  SecretProvider
	configStore     ConfigEntryStore
	messageStore    MessageStore
	providers       map[string]EmailProvider
	resolver        *ConfigResolver
	dispatcher      *OutboundDispatcher
	processor       *EventProcessor
	clock           Clock
	idGenerator     IDGenerator
}

type ServiceDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	SecretProvider  SecretProvider
	ConfigStore     ConfigEntryStore
	MessageStore    MessageStore
	Resolver        *ConfigResolver
	Dispatcher      *OutboundDispatcher
	Processor       *EventProcessor
	Clock           Clock
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve(DefaultServiceName, builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger(DefaultServiceName); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = ToServiceError
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.messageStore == nil {
		builder.messageStore = NewMemoryMessageStore()
	}
	if builder.clock == nil {
		builder.clock = time.Now
	}
	if builder.idGenerator == nil {
		builder.idGenerator = uuid.NewString
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	providers := map[string]EmailProvider{}
	for _, candidate := range builder.providers {
		id := strings.ToLower(strings.TrimSpace(candidate.ID()))
		if id == "" {
			return nil, mapBuildError(builder.errorMapper, newBadInputError("core: provider id is required", nil))
		}
		providers[id] = candidate
	}

	resolver := NewConfigResolver(builder.configStore, builder.envLookup, builder.secretProvider, logger)
	active := providers[strings.ToLower(strings.TrimSpace(finalConfig.Provider))]

	return &Service{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		secretProvider:  builder.secretProvider,
		configStore:     builder.configStore,
		messageStore:    builder.messageStore,
		providers:       providers,
		resolver:        resolver,
		dispatcher:      NewOutboundDispatcher(active, resolver, finalConfig.SendTimeout()),
		processor:       NewEventProcessor(builder.messageStore),
		clock:           builder.clock,
		idGenerator:     builder.idGenerator,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metricsRecorder,
		ErrorMapper:     s.errorMapper,
		ConfigProvider:  s.configProvider,
		OptionsResolver: s.optionsResolver,
		SecretProvider:  s.secretProvider,
		ConfigStore:     s.configStore,
		MessageStore:    s.messageStore,
		Resolver:        s.resolver,
		Dispatcher:      s.dispatcher,
		Processor:       s.processor,
		Clock:           s.clock,
	}
}

func (s *Service) Resolver() *ConfigResolver {
	if s == nil {
		return nil
	}
	return s.resolver
}

func (s *Service) Processor() *EventProcessor {
	if s == nil {
		return nil
	}
	return s.processor
}

// Provider returns a registered provider by id.
func (s *Service) Provider(id string) (EmailProvider, bool) {
	if s == nil {
		return nil, false
	}
	provider, ok := s.providers[strings.ToLower(strings.TrimSpace(id))]
	return provider, ok
}

type SendResult struct {
	Message           Message
	Persisted         bool
	Success           bool
	ProviderMessageID string
	ProviderResponse  json.RawMessage
	Error             string
}

// Send persists the draft before dispatch, but a store failure never blocks
// the provider call. Without a durable row the message carries a temporary
// id and post-send updates are skipped.
func (s *Service) Send(ctx context.Context, draft MessageDraft) (result SendResult, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := s.clock().UTC()
	fields := map[string]any{"provider_id": s.config.Provider}
	defer func() {
		status := "sent"
		if err != nil {
			status = "failed"
		}
		fields["message_id"] = result.Message.ID
		fields["persisted"] = result.Persisted
		s.recordCounter(ctx, MetricSendTotal, 1, map[string]string{"status": status, "provider_id": s.config.Provider})
		s.recordHistogram(ctx, MetricSendDuration, float64(time.Since(startedAt).Milliseconds()), map[string]string{"status": status})
		s.observeOperation(ctx, startedAt, "send_email", err, fields)
	}()

	if err = draft.Validate(); err != nil {
		return SendResult{}, s.mapError(err)
	}

	msg := Message{
		ID:          s.idGenerator(),
		From:        s.resolveFrom(ctx, draft.From),
		To:          normalizeAddresses(draft.To),
		CC:          normalizeAddresses(draft.CC),
		BCC:         normalizeAddresses(draft.BCC),
		ReplyTo:     normalizeAddresses(draft.ReplyTo),
		Subject:     strings.TrimSpace(draft.Subject),
		Body:        draft.Body,
		Text:        draft.Text,
		Status:      MessageStatusPending,
		Attachments: append([]Attachment(nil), draft.Attachments...),
		CreatedAt:   startedAt,
	}

	result.Message = msg
	storeCtx, cancel := s.storeContext(ctx)
	created, createErr := s.messageStore.Create(storeCtx, msg)
	cancel()
	if createErr != nil {
		result.Message.ID = TemporaryMessageIDPrefix + uuid.NewString()
		s.logWithLevel(ctx, "warn", "message row create failed, sending without persistence", map[string]any{
			"temporary_id": result.Message.ID,
			"error":        createErr.Error(),
		})
	} else {
		result.Persisted = true
		result.Message = created
		if updated, updateErr := s.updateMessage(ctx, created.ID, func(m *Message) error {
			if CanTransition(m.Status, MessageStatusSending) {
				m.Status = MessageStatusSending
			}
			return nil
		}); updateErr != nil {
			s.logWithLevel(ctx, "warn", "message status update to sending failed", map[string]any{
				"message_id": created.ID,
				"error":      updateErr.Error(),
			})
		} else {
			result.Message = updated
		}
	}

	dispatched := s.dispatcher.Dispatch(ctx, result.Message)
	result.Success = dispatched.Success
	result.ProviderMessageID = dispatched.ProviderMessageID
	result.ProviderResponse = dispatched.RawResponse
	result.Error = dispatched.Error

	if result.Persisted {
		// The caller context may already be done after a timed out send.
		detached := context.WithoutCancel(ctx)
		sentAt := s.clock().UTC()
		updated, updateErr := s.updateMessage(detached, result.Message.ID, func(m *Message) error {
			if dispatched.Success {
				if CanTransition(m.Status, MessageStatusSent) {
					m.Status = MessageStatusSent
				}
				setOnce(&m.Metadata.DispatchedAt, sentAt)
				setOnce(&m.Metadata.SentAt, sentAt)
				m.Metadata.ProviderMessageID = dispatched.ProviderMessageID
				m.Metadata.ProviderResponse = cloneRaw(dispatched.RawResponse)
				return nil
			}
			m.Status = MessageStatusFailed
			m.Metadata.Error = dispatched.Error
			return nil
		})
		if updateErr != nil {
			s.logWithLevel(ctx, "warn", "message status update after send failed", map[string]any{
				"message_id": result.Message.ID,
				"success":    dispatched.Success,
				"error":      updateErr.Error(),
			})
		} else {
			result.Message = updated
		}
	} else if dispatched.Success {
		result.Message.Status = MessageStatusSent
		result.Message.Metadata.ProviderMessageID = dispatched.ProviderMessageID
		result.Message.Metadata.ProviderResponse = cloneRaw(dispatched.RawResponse)
	} else {
		result.Message.Status = MessageStatusFailed
		result.Message.Metadata.Error = dispatched.Error
	}

	if !dispatched.Success {
		err = s.mapError(dispatched.Err)
		var rich *goerrors.Error
		if goerrors.As(err, &rich) {
			rich.WithMetadata(map[string]any{
				"message_id": result.Message.ID,
				"persisted":  result.Persisted,
			})
		}
		return result, err
	}
	return result, nil
}

func (s *Service) GetMessage(ctx context.Context, id string) (Message, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Message{}, newBadInputError("core: message id is required", map[string]any{"field": "id"})
	}
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	msg, err := s.messageStore.Get(storeCtx, id)
	if err != nil {
		return Message{}, s.mapError(err)
	}
	return msg, nil
}

// ProcessEvent applies one decoded delivery event. Unmatched events are not
// errors.
func (s *Service) ProcessEvent(ctx context.Context, event WebhookEvent) (ProcessResult, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.processor.Process(storeCtx, event)
}

func (s *Service) resolveFrom(ctx context.Context, from string) string {
	if trimmed := strings.TrimSpace(from); trimmed != "" {
		return trimmed
	}
	address := s.resolver.ResolveString(ctx, ConfigKeyEmailFromAddress, s.config.DefaultFromAddress)
	name := s.resolver.ResolveString(ctx, ConfigKeyEmailFromName, s.config.DefaultFromName)
	return FormatAddress(name, address)
}

// FormatAddress renders "Name <address>", or the bare address without a name.
func FormatAddress(name string, address string) string {
	name = strings.TrimSpace(name)
	address = strings.TrimSpace(address)
	if name == "" {
		return address
	}
	return name + " <" + address + ">"
}

func (s *Service) updateMessage(ctx context.Context, id string, mutate MessageMutation) (Message, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	return s.messageStore.Update(storeCtx, id, mutate)
}

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout := s.config.StoreTimeout(); timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
