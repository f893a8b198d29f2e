package adapters_test

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-command"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/kdevda/go-mailflow/adapters/gocommand"
	"github.com/kdevda/go-mailflow/adapters/gologger"
	mailprometheus "github.com/kdevda/go-mailflow/adapters/prometheus"
	mailcommand "github.com/kdevda/go-mailflow/command"
	"github.com/kdevda/go-mailflow/core"
	mailquery "github.com/kdevda/go-mailflow/query"
	"github.com/prometheus/client_golang/prometheus"
)

type compatProvider struct {
	mu    sync.Mutex
	calls int
}

func (p *compatProvider) ID() string { return "resend" }

func (p *compatProvider) Send(context.Context, core.ProviderSendRequest) (core.ProviderSendResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return core.ProviderSendResponse{ProviderMessageID: "prov_compat", StatusCode: 200, Raw: []byte(`{"id":"prov_compat"}`)}, nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRuntimeCompatibility_GoCommandGoLoggerPrometheus(t *testing.T) {
	ctx := context.Background()
	logs := &syncBuffer{}
	logger := glog.NewLogger(gologger.FormatOption("json"), glog.WithWriter(logs))
	registry := prometheus.NewRegistry()
	recorder := mailprometheus.NewRecorder(registry)
	store := core.NewMemoryMessageStore()
	provider := &compatProvider{}

	svc, err := core.NewService(core.Config{},
		core.WithLoggerProvider(logger),
		core.WithMetricsRecorder(recorder),
		core.WithMessageStore(store),
		core.WithProvider(provider),
		core.WithEnvLookup(func(key string) (string, bool) {
			if key == core.ConfigKeyResendAPIKey {
				return "re_compat", true
			}
			return "", false
		}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	subscriptions, err := gocommand.RegisterHandlers(adapter, gocommand.Handlers{
		SendEmail:  mailcommand.NewSendEmailCommand(svc),
		GetMessage: mailquery.NewGetMessageQuery(svc),
	})
	if err != nil {
		t.Fatalf("register handlers: %v", err)
	}
	defer subscriptions.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}

	if err := gocommand.Dispatch(ctx, mailcommand.SendEmailMessage{Draft: core.MessageDraft{
		To:      []string{"a@x.com"},
		Subject: "Compat",
		Body:    "<p>hi</p>",
	}}); err != nil {
		t.Fatalf("dispatch send: %v", err)
	}
	if provider.calls != 1 {
		t.Fatalf("expected one provider call, got %d", provider.calls)
	}

	created, err := store.FindByProviderMessageID(ctx, "prov_compat")
	if err != nil {
		t.Fatalf("find sent message: %v", err)
	}
	fetched, err := gocommand.Query[mailquery.GetMessageMessage, core.Message](ctx, mailquery.GetMessageMessage{MessageID: created.ID})
	if err != nil {
		t.Fatalf("query message: %v", err)
	}
	if fetched.Status != core.MessageStatusSent {
		t.Fatalf("expected sent status, got %q", fetched.Status)
	}

	if !strings.Contains(logs.String(), "send_email succeeded") {
		t.Fatalf("expected send log line, got %q", logs.String())
	}
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, family := range families {
		if family.GetName() == core.MetricSendTotal {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %s to be exported", core.MetricSendTotal)
	}
}
