package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/kdevda/go-mailflow/core"
)

// Router dispatches inbound callbacks to the handler registered for the
// request's provider id.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]core.WebhookHandler
}

func NewRouter() *Router {
	return &Router{handlers: map[string]core.WebhookHandler{}}
}

func (r *Router) Register(providerID string, handler core.WebhookHandler) error {
	if r == nil {
		return fmt.Errorf("webhooks: router is nil")
	}
	providerID = normalizeProviderID(providerID)
	if providerID == "" {
		return goerrors.New("webhooks: provider id is required", goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.MailflowErrorBadInput)
	}
	if handler == nil {
		return goerrors.New("webhooks: handler is nil", goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.MailflowErrorBadInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[providerID]; exists {
		return goerrors.New(fmt.Sprintf("webhooks: handler already registered for provider %q", providerID), goerrors.CategoryConflict).
			WithCode(http.StatusConflict).
			WithTextCode(core.MailflowErrorBadInput).
			WithMetadata(map[string]any{"provider_id": providerID})
	}
	r.handlers[providerID] = handler
	return nil
}

func (r *Router) Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if r == nil {
		return core.InboundResult{}, fmt.Errorf("webhooks: router is nil")
	}
	providerID := normalizeProviderID(req.ProviderID)
	r.mu.RLock()
	handler, ok := r.handlers[providerID]
	r.mu.RUnlock()
	if !ok {
		err := goerrors.Wrap(core.ErrProviderNotRegistered, goerrors.CategoryNotFound, "webhooks: unknown provider "+providerID).
			WithCode(http.StatusNotFound).
			WithTextCode(core.MailflowErrorNotFound).
			WithMetadata(map[string]any{"provider_id": providerID})
		return core.InboundResult{StatusCode: http.StatusNotFound, Error: "Unknown provider"}, err
	}
	req.ProviderID = providerID
	return handler.Handle(ctx, req)
}

func (r *Router) Providers() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func normalizeProviderID(providerID string) string {
	return strings.ToLower(strings.TrimSpace(providerID))
}
