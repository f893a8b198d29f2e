package mailflow

import "github.com/kdevda/go-mailflow/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type Message = core.Message

type MessageDraft = core.MessageDraft

type Attachment = core.Attachment

type SendResult = core.SendResult

type WebhookEvent = core.WebhookEvent

type ProcessResult = core.ProcessResult

type ConfigEntry = core.ConfigEntry

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithErrorMapper     = core.WithErrorMapper
	WithSecretProvider  = core.WithSecretProvider
	WithConfigProvider  = core.WithConfigProvider
	WithOptionsResolver = core.WithOptionsResolver
	WithConfigStore     = core.WithConfigStore
	WithMessageStore    = core.WithMessageStore
	WithProvider        = core.WithProvider
	WithEnvLookup       = core.WithEnvLookup
	WithClock           = core.WithClock
	WithIDGenerator     = core.WithIDGenerator
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
