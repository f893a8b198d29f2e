package query

import (
	"strings"

	"github.com/kdevda/go-mailflow/core"
)

const (
	TypeGetMessage     = "mailflow.query.message.get"
	TypeGetConfigEntry = "mailflow.query.config_entry.get"
)

type GetMessageMessage struct {
	MessageID string
}

func (GetMessageMessage) Type() string { return TypeGetMessage }

func (m GetMessageMessage) Validate() error {
	if strings.TrimSpace(m.MessageID) == "" {
		return queryValidationError("message_id", "message id is required")
	}
	if strings.HasPrefix(strings.TrimSpace(m.MessageID), core.TemporaryMessageIDPrefix) {
		return queryInvalidInputError("query: temporary message ids are never persisted")
	}
	return nil
}

type GetConfigEntryMessage struct {
	Key string
}

func (GetConfigEntryMessage) Type() string { return TypeGetConfigEntry }

func (m GetConfigEntryMessage) Validate() error {
	if strings.TrimSpace(m.Key) == "" {
		return queryValidationError("key", "config key is required")
	}
	return nil
}

// ConfigEntryView is a display-safe config entry.
type ConfigEntryView struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	HasValue    bool   `json:"hasValue"`
	IsSecret    bool   `json:"isSecret"`
	IsEncrypted bool   `json:"isEncrypted"`
}
