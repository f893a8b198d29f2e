package mailflow

import (
	"fmt"

	"github.com/kdevda/go-mailflow/core"
	"github.com/kdevda/go-mailflow/transport"
	"github.com/kdevda/go-mailflow/webhooks"
)

// Runtime is a fully wired mailflow instance: the core service, its
// command/query facade and the webhook router.
type Runtime struct {
	Service  *core.Service
	Facade   *Facade
	Webhooks *webhooks.Router
	Hooks    *ExtensionHooks
	Bundles  map[string]any
}

type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	hooks       *ExtensionHooks
	adapter     *transport.RESTAdapter
	service     []core.Option
	facade      []FacadeOption
	configurers []EndpointConfigurer
}

func WithExtensionHooks(hooks *ExtensionHooks) RuntimeOption {
	return func(o *runtimeOptions) {
		o.hooks = hooks
	}
}

// WithRESTAdapter sets the HTTP adapter used by builtin providers.
func WithRESTAdapter(adapter *transport.RESTAdapter) RuntimeOption {
	return func(o *runtimeOptions) {
		o.adapter = adapter
	}
}

func WithServiceOptions(opts ...core.Option) RuntimeOption {
	return func(o *runtimeOptions) {
		o.service = append(o.service, opts...)
	}
}

func WithFacadeOptions(opts ...FacadeOption) RuntimeOption {
	return func(o *runtimeOptions) {
		o.facade = append(o.facade, opts...)
	}
}

func WithEndpointConfigurer(fn EndpointConfigurer) RuntimeOption {
	return func(o *runtimeOptions) {
		if fn != nil {
			o.configurers = append(o.configurers, fn)
		}
	}
}

// NewRuntime registers the builtin provider pack when the hooks carry none.
// Configuration is resolved before the pack is built so provider settings
// loaded from the environment reach the provider client.
func NewRuntime(cfg Config, opts ...RuntimeOption) (*Runtime, error) {
	options := runtimeOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	hooks := options.hooks
	if hooks == nil {
		hooks = NewExtensionHooks()
	}

	bootstrap, err := core.NewService(cfg, options.service...)
	if err != nil {
		return nil, err
	}
	resolved := bootstrap.Config()

	if len(hooks.ProviderPacks()) == 0 {
		pack, err := BuiltinProviderPack(resolved, options.adapter)
		if err != nil {
			return nil, err
		}
		if err := hooks.RegisterProviderPack(pack); err != nil {
			return nil, err
		}
	}
	providerOpts, err := hooks.ProviderOptions()
	if err != nil {
		return nil, err
	}

	serviceOpts := append(append([]core.Option(nil), options.service...), providerOpts...)
	svc, err := core.NewService(resolved, serviceOpts...)
	if err != nil {
		return nil, err
	}
	if _, ok := svc.Provider(resolved.Provider); !ok {
		return nil, fmt.Errorf("mailflow: no provider registered for %q", resolved.Provider)
	}

	facade, err := NewFacade(svc, options.facade...)
	if err != nil {
		return nil, err
	}
	router := webhooks.NewRouter()
	if err := hooks.ApplyWebhookTemplates(router, svc, options.configurers...); err != nil {
		return nil, err
	}
	bundles, err := hooks.BuildCommandQueryBundles(facade)
	if err != nil {
		return nil, err
	}

	return &Runtime{
		Service:  svc,
		Facade:   facade,
		Webhooks: router,
		Hooks:    hooks,
		Bundles:  bundles,
	}, nil
}
