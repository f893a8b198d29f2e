package mailflow

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kdevda/go-mailflow/core"
	"github.com/kdevda/go-mailflow/webhooks"
)

// ProviderPack bundles email providers with the webhook templates that
// verify their callbacks.
type ProviderPack struct {
	Name      string
	Providers []core.EmailProvider
	Webhooks  []webhooks.ProviderTemplate
}

type CommandQueryBundleFactory func(facade *Facade) (any, error)

// EndpointConfigurer customizes each webhook endpoint before it is routed.
type EndpointConfigurer func(endpoint *webhooks.Endpoint)

type ExtensionHooks struct {
	mu sync.RWMutex

	providerPacks map[string]ProviderPack
	bundles       map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		providerPacks: map[string]ProviderPack{},
		bundles:       map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterProviderPack(pack ProviderPack) error {
	if h == nil {
		return fmt.Errorf("mailflow: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("mailflow: provider pack name is required")
	}
	if len(pack.Providers) == 0 && len(pack.Webhooks) == 0 {
		return fmt.Errorf("mailflow: provider pack %q has no providers or webhooks", name)
	}
	for _, template := range pack.Webhooks {
		if strings.TrimSpace(template.ProviderID) == "" {
			return fmt.Errorf("mailflow: provider pack %q has a webhook template without provider id", name)
		}
	}

	normalized := ProviderPack{
		Name:      name,
		Providers: append([]core.EmailProvider(nil), pack.Providers...),
		Webhooks:  append([]webhooks.ProviderTemplate(nil), pack.Webhooks...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.providerPacks[name]; exists {
		return fmt.Errorf("mailflow: provider pack %q already registered", name)
	}
	h.providerPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("mailflow: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("mailflow: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("mailflow: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("mailflow: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ProviderOptions turns every pack provider into a service option.
func (h *ExtensionHooks) ProviderOptions() ([]core.Option, error) {
	if h == nil {
		return nil, nil
	}
	opts := []core.Option{}
	for _, pack := range h.ProviderPacks() {
		for _, provider := range pack.Providers {
			if provider == nil {
				return nil, fmt.Errorf("mailflow: provider pack %q contains nil provider", pack.Name)
			}
			opts = append(opts, core.WithProvider(provider))
		}
	}
	return opts, nil
}

// ApplyWebhookTemplates registers one endpoint per template on router. The
// service supplies secrets, processing, logging and metrics.
func (h *ExtensionHooks) ApplyWebhookTemplates(
	router *webhooks.Router,
	service *core.Service,
	configure ...EndpointConfigurer,
) error {
	if h == nil {
		return nil
	}
	if router == nil {
		return fmt.Errorf("mailflow: webhook router is required")
	}
	if service == nil {
		return fmt.Errorf("mailflow: service is required")
	}
	cfg := service.Config()
	for _, pack := range h.ProviderPacks() {
		for _, template := range pack.Webhooks {
			endpoint := webhooks.NewEndpoint(template, service.Resolver(), service)
			endpoint.Logger = service.Logger()
			endpoint.Metrics = service.MetricsRecorder()
			if cfg.MaxWebhookBodyBytes > 0 {
				endpoint.MaxBodyBytes = cfg.MaxWebhookBodyBytes
			}
			for _, fn := range configure {
				if fn != nil {
					fn(endpoint)
				}
			}
			if err := router.Register(template.ProviderID, endpoint); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(facade *Facade) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if facade == nil {
		return nil, fmt.Errorf("mailflow: facade is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](facade)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) ProviderPacks() []ProviderPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.providerPacks))
	for name := range h.providerPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ProviderPack, 0, len(names))
	for _, name := range names {
		pack := h.providerPacks[name]
		out = append(out, ProviderPack{
			Name:      pack.Name,
			Providers: append([]core.EmailProvider(nil), pack.Providers...),
			Webhooks:  append([]webhooks.ProviderTemplate(nil), pack.Webhooks...),
		})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
