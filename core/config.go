package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultServiceName         = "mailflow"
	DefaultProviderID          = "resend"
	DefaultProviderBaseURL     = "https://api.resend.com"
	DefaultSendTimeoutMS       = 30000
	DefaultStoreTimeoutMS      = 5000
	DefaultMaxWebhookBodyBytes = 1 << 20
)

// Config holds service-level settings. Provider credentials are not part of
// Config; they are resolved per call through the ConfigResolver.
type Config struct {
	ServiceName         string `koanf:"service_name" mapstructure:"service_name"`
	Provider            string `koanf:"provider" mapstructure:"provider"`
	ProviderBaseURL     string `koanf:"provider_base_url" mapstructure:"provider_base_url"`
	SendTimeoutMS       int    `koanf:"send_timeout_ms" mapstructure:"send_timeout_ms"`
	StoreTimeoutMS      int    `koanf:"store_timeout_ms" mapstructure:"store_timeout_ms"`
	DefaultFromAddress  string `koanf:"default_from_address" mapstructure:"default_from_address"`
	DefaultFromName     string `koanf:"default_from_name" mapstructure:"default_from_name"`
	MaxWebhookBodyBytes int64  `koanf:"max_webhook_body_bytes" mapstructure:"max_webhook_body_bytes"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:         DefaultServiceName,
		Provider:            DefaultProviderID,
		ProviderBaseURL:     DefaultProviderBaseURL,
		SendTimeoutMS:       DefaultSendTimeoutMS,
		StoreTimeoutMS:      DefaultStoreTimeoutMS,
		DefaultFromAddress:  DefaultFromAddress,
		DefaultFromName:     DefaultFromName,
		MaxWebhookBodyBytes: DefaultMaxWebhookBodyBytes,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Provider) == "" {
		return fmt.Errorf("core: provider is required")
	}
	if base := strings.TrimSpace(c.ProviderBaseURL); base != "" {
		parsed, err := url.Parse(base)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("core: provider_base_url %q is invalid", base)
		}
	}
	if c.SendTimeoutMS < 0 {
		return fmt.Errorf("core: send_timeout_ms must be >= 0")
	}
	if c.StoreTimeoutMS < 0 {
		return fmt.Errorf("core: store_timeout_ms must be >= 0")
	}
	if c.MaxWebhookBodyBytes < 0 {
		return fmt.Errorf("core: max_webhook_body_bytes must be >= 0")
	}
	return nil
}

func (c Config) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutMS) * time.Millisecond
}

func (c Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutMS) * time.Millisecond
}
