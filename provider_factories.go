package mailflow

import (
	"fmt"
	"strings"

	"github.com/kdevda/go-mailflow/core"
	"github.com/kdevda/go-mailflow/providers/resend"
	"github.com/kdevda/go-mailflow/transport"
	"github.com/kdevda/go-mailflow/webhooks"
)

func ResendProvider(cfg resend.Config, adapter *transport.RESTAdapter) core.EmailProvider {
	return resend.New(cfg, adapter)
}

func ResendWebhookTemplate() webhooks.ProviderTemplate {
	return resend.WebhookTemplate()
}

// BuiltinProvider builds the provider named by cfg.Provider.
func BuiltinProvider(cfg Config, adapter *transport.RESTAdapter) (core.EmailProvider, webhooks.ProviderTemplate, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", resend.ProviderID:
		provider := ResendProvider(resend.Config{
			BaseURL: cfg.ProviderBaseURL,
			Timeout: cfg.SendTimeout(),
		}, adapter)
		return provider, ResendWebhookTemplate(), nil
	default:
		return nil, webhooks.ProviderTemplate{}, fmt.Errorf("mailflow: unsupported provider %q", cfg.Provider)
	}
}

// BuiltinProviderPack wraps BuiltinProvider for ExtensionHooks.
func BuiltinProviderPack(cfg Config, adapter *transport.RESTAdapter) (ProviderPack, error) {
	provider, template, err := BuiltinProvider(cfg, adapter)
	if err != nil {
		return ProviderPack{}, err
	}
	return ProviderPack{
		Name:      "builtin",
		Providers: []core.EmailProvider{provider},
		Webhooks:  []webhooks.ProviderTemplate{template},
	}, nil
}
