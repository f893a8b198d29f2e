package query

import (
	"context"
	"strings"

	"github.com/kdevda/go-mailflow/core"
)

type MessageReader interface {
	GetMessage(ctx context.Context, id string) (core.Message, error)
}

type GetMessageQuery struct {
	reader MessageReader
}

func NewGetMessageQuery(reader MessageReader) *GetMessageQuery {
	return &GetMessageQuery{reader: reader}
}

func (q *GetMessageQuery) Query(ctx context.Context, msg GetMessageMessage) (core.Message, error) {
	if q == nil || q.reader == nil {
		return core.Message{}, queryDependencyError("query: message reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.Message{}, err
	}
	return q.reader.GetMessage(ctx, strings.TrimSpace(msg.MessageID))
}

type GetConfigEntryQuery struct {
	store core.ConfigEntryStore
}

func NewGetConfigEntryQuery(store core.ConfigEntryStore) *GetConfigEntryQuery {
	return &GetConfigEntryQuery{store: store}
}

// Query never returns secret plaintext; secret and encrypted values are redacted.
func (q *GetConfigEntryQuery) Query(ctx context.Context, msg GetConfigEntryMessage) (ConfigEntryView, error) {
	if q == nil || q.store == nil {
		return ConfigEntryView{}, queryDependencyError("query: config entry store is required")
	}
	if err := msg.Validate(); err != nil {
		return ConfigEntryView{}, err
	}
	entry, err := q.store.Get(ctx, strings.TrimSpace(msg.Key))
	if err != nil {
		return ConfigEntryView{}, queryWrapNotFound(err)
	}
	view := ConfigEntryView{
		Key:         entry.Key,
		Value:       entry.DisplayValue(),
		HasValue:    entry.HasValue(),
		IsSecret:    entry.IsSecret,
		IsEncrypted: entry.IsEncrypted,
	}
	if entry.IsEncrypted && view.Value != "" {
		view.Value = core.RedactedValue
	}
	return view, nil
}
