package query

import (
	"context"
	"errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/kdevda/go-mailflow/core"
)

type stubMessageReader struct {
	messages map[string]core.Message
}

func (s stubMessageReader) GetMessage(_ context.Context, id string) (core.Message, error) {
	msg, ok := s.messages[id]
	if !ok {
		return core.Message{}, core.ErrMessageNotFound
	}
	return msg, nil
}

func TestGetMessageQuery_ReturnsMessage(t *testing.T) {
	reader := stubMessageReader{messages: map[string]core.Message{
		"msg_1": {ID: "msg_1", Status: core.MessageStatusDelivered},
	}}
	msg, err := NewGetMessageQuery(reader).Query(context.Background(), GetMessageMessage{MessageID: " msg_1 "})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if msg.ID != "msg_1" || msg.Status != core.MessageStatusDelivered {
		t.Fatalf("unexpected message %#v", msg)
	}
}

func TestGetMessageQuery_PropagatesNotFound(t *testing.T) {
	_, err := NewGetMessageQuery(stubMessageReader{}).Query(context.Background(), GetMessageMessage{MessageID: "missing"})
	if !errors.Is(err, core.ErrMessageNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetMessageMessage_ValidateReturnsRichError(t *testing.T) {
	err := (GetMessageMessage{}).Validate()
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation || rich.TextCode != core.MailflowErrorBadInput {
		t.Fatalf("unexpected validation error %#v", rich)
	}
	if rich.Code != http.StatusBadRequest {
		t.Fatalf("expected %d code, got %d", http.StatusBadRequest, rich.Code)
	}
	validation := rich.AllValidationErrors()
	if len(validation) == 0 || validation[0].Field != "message_id" {
		t.Fatalf("expected message_id validation field, got %#v", validation)
	}
}

func TestGetMessageMessage_RejectsTemporaryIDs(t *testing.T) {
	err := (GetMessageMessage{MessageID: core.TemporaryMessageIDPrefix + "abc"}).Validate()
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryBadInput {
		t.Fatalf("expected bad input for temporary id, got %v", err)
	}
}

func TestGetMessageQuery_NilReaderReturnsRichError(t *testing.T) {
	var q *GetMessageQuery
	_, err := q.Query(context.Background(), GetMessageMessage{MessageID: "msg_1"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal || rich.TextCode != core.MailflowErrorInternal {
		t.Fatalf("unexpected dependency error %#v", rich)
	}
}

func TestGetConfigEntryQuery_RedactsSecrets(t *testing.T) {
	apiKey := "re_live"
	fromName := "Acme"
	store := core.NewMemoryConfigStore(
		core.ConfigEntry{Key: core.ConfigKeyResendAPIKey, Value: &apiKey, IsSecret: true},
		core.ConfigEntry{Key: core.ConfigKeyEmailFromName, Value: &fromName},
	)
	q := NewGetConfigEntryQuery(store)

	secret, err := q.Query(context.Background(), GetConfigEntryMessage{Key: core.ConfigKeyResendAPIKey})
	if err != nil {
		t.Fatalf("query secret: %v", err)
	}
	if secret.Value != core.RedactedValue || !secret.HasValue {
		t.Fatalf("expected redacted secret, got %#v", secret)
	}
	plain, err := q.Query(context.Background(), GetConfigEntryMessage{Key: core.ConfigKeyEmailFromName})
	if err != nil {
		t.Fatalf("query plain: %v", err)
	}
	if plain.Value != "Acme" {
		t.Fatalf("expected plain value, got %#v", plain)
	}
}

func TestGetConfigEntryQuery_MissingKeyIsNotFound(t *testing.T) {
	_, err := NewGetConfigEntryQuery(core.NewMemoryConfigStore()).Query(context.Background(), GetConfigEntryMessage{Key: "NOPE"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryNotFound {
		t.Fatalf("expected not found envelope, got %v", err)
	}
}
