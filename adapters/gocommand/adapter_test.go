package gocommand

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	mailcommand "github.com/kdevda/go-mailflow/command"
	"github.com/kdevda/go-mailflow/core"
	mailquery "github.com/kdevda/go-mailflow/query"
)

type okMessage struct{}

func (okMessage) Type() string { return "mailflow.command.ok" }

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "mailflow.command.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

type dispatchMessage struct {
	ID string
}

func (dispatchMessage) Type() string { return "mailflow.command.test" }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
	if err := ValidateMessageContract(mailcommand.SendEmailMessage{}); err == nil {
		t.Fatalf("expected empty draft to fail contract validation")
	}
}

func TestRegistryAndDispatchWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	executed := 0
	customResolverCalled := 0

	cmd := command.CommandFunc[dispatchMessage](func(context.Context, dispatchMessage) error {
		executed++
		return nil
	})

	subscription, err := RegisterAndSubscribe(adapter, cmd)
	if err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	defer subscription.Unsubscribe()
	if err := adapter.AddResolver("custom", func(any, command.CommandMeta, *command.Registry) error {
		customResolverCalled++
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if !adapter.HasResolver("custom") {
		t.Fatalf("expected custom resolver to be registered")
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if customResolverCalled == 0 {
		t.Fatalf("expected resolver hook to run during initialization")
	}

	if err := Dispatch(context.Background(), dispatchMessage{ID: "m1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected command execution count=1, got %d", executed)
	}
}

type memoryReader struct {
	messages map[string]core.Message
}

func (r memoryReader) GetMessage(_ context.Context, id string) (core.Message, error) {
	msg, ok := r.messages[id]
	if !ok {
		return core.Message{}, core.ErrMessageNotFound
	}
	return msg, nil
}

func TestRegisterHandlers_QueryThroughDispatcher(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	reader := memoryReader{messages: map[string]core.Message{
		"m1": {ID: "m1", Subject: "Hello", Status: core.MessageStatusSent},
	}}
	configStore := core.NewMemoryConfigStore()

	subscriptions, err := RegisterHandlers(adapter, Handlers{
		GetMessage:     mailquery.NewGetMessageQuery(reader),
		SetConfigEntry: mailcommand.NewSetConfigEntryCommand(configStore, nil),
	})
	if err != nil {
		t.Fatalf("register handlers: %v", err)
	}
	defer subscriptions.Unsubscribe()
	if len(subscriptions) != 2 {
		t.Fatalf("expected only configured handlers to subscribe, got %d", len(subscriptions))
	}

	msg, err := Query[mailquery.GetMessageMessage, core.Message](context.Background(), mailquery.GetMessageMessage{MessageID: "m1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if msg.Subject != "Hello" {
		t.Fatalf("unexpected message %#v", msg)
	}

	value := "re_key"
	if err := Dispatch(context.Background(), mailcommand.SetConfigEntryMessage{Key: core.ConfigKeyResendAPIKey, Value: &value}); err != nil {
		t.Fatalf("dispatch set config: %v", err)
	}
	entry, err := configStore.Get(context.Background(), core.ConfigKeyResendAPIKey)
	if err != nil || entry.DisplayValue() != "re_key" {
		t.Fatalf("expected stored entry, got %#v err=%v", entry, err)
	}
}
