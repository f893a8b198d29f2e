package sqlstore

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/kdevda/go-mailflow/core"
	"github.com/uptrace/bun"
)

type configEntryRecord struct {
	bun.BaseModel `bun:"table:mailflow_config_entries,alias:mce"`

	Key         string    `bun:"config_key,pk"`
	Value       *string   `bun:"value"`
	IsSecret    bool      `bun:"is_secret,notnull"`
	IsEncrypted bool      `bun:"is_encrypted,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type messageRecord struct {
	bun.BaseModel `bun:"table:mailflow_messages,alias:mm"`

	ID                string            `bun:"id,pk"`
	FromAddress       string            `bun:"from_address,notnull"`
	ToAddresses       []string          `bun:"to_addresses,type:jsonb,notnull"`
	CCAddresses       []string          `bun:"cc_addresses,type:jsonb,notnull"`
	BCCAddresses      []string          `bun:"bcc_addresses,type:jsonb,notnull"`
	ReplyTo           []string          `bun:"reply_to,type:jsonb,notnull"`
	Subject           string            `bun:"subject,notnull"`
	Body              string            `bun:"body,notnull"`
	TextBody          string            `bun:"text_body,notnull"`
	Status            string            `bun:"status,notnull"`
	Attachments       []core.Attachment `bun:"attachments,type:jsonb,notnull"`
	Metadata          map[string]any    `bun:"metadata,type:jsonb,notnull"`
	ProviderMessageID *string           `bun:"provider_message_id"`
	Version           int               `bun:"version,notnull"`
	CreatedAt         time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time         `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newConfigEntryRecord(entry core.ConfigEntry) *configEntryRecord {
	record := &configEntryRecord{
		Key:         strings.TrimSpace(entry.Key),
		IsSecret:    entry.IsSecret,
		IsEncrypted: entry.IsEncrypted,
		CreatedAt:   entry.CreatedAt.UTC(),
		UpdatedAt:   entry.UpdatedAt.UTC(),
	}
	if entry.Value != nil {
		value := *entry.Value
		record.Value = &value
	}
	return record
}

func (r *configEntryRecord) toDomain() core.ConfigEntry {
	if r == nil {
		return core.ConfigEntry{}
	}
	entry := core.ConfigEntry{
		Key:         r.Key,
		IsSecret:    r.IsSecret,
		IsEncrypted: r.IsEncrypted,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if r.Value != nil {
		value := *r.Value
		entry.Value = &value
	}
	return entry
}

func newMessageRecord(msg core.Message) (*messageRecord, error) {
	metadata, err := encodeMetadata(msg.Metadata)
	if err != nil {
		return nil, err
	}
	record := &messageRecord{
		ID:           msg.ID,
		FromAddress:  msg.From,
		ToAddresses:  nonNilStrings(msg.To),
		CCAddresses:  nonNilStrings(msg.CC),
		BCCAddresses: nonNilStrings(msg.BCC),
		ReplyTo:      nonNilStrings(msg.ReplyTo),
		Subject:      msg.Subject,
		Body:         msg.Body,
		TextBody:     msg.Text,
		Status:       string(msg.Status),
		Attachments:  msg.Attachments,
		Metadata:     metadata,
		Version:      msg.Version,
		CreatedAt:    msg.CreatedAt.UTC(),
		UpdatedAt:    msg.UpdatedAt.UTC(),
	}
	if record.Attachments == nil {
		record.Attachments = []core.Attachment{}
	}
	if providerID := strings.TrimSpace(msg.Metadata.ProviderMessageID); providerID != "" {
		record.ProviderMessageID = &providerID
	}
	return record, nil
}

func (r *messageRecord) toDomain() (core.Message, error) {
	if r == nil {
		return core.Message{}, nil
	}
	metadata, err := decodeMetadata(r.Metadata)
	if err != nil {
		return core.Message{}, err
	}
	msg := core.Message{
		ID:          r.ID,
		From:        r.FromAddress,
		To:          r.ToAddresses,
		CC:          r.CCAddresses,
		BCC:         r.BCCAddresses,
		ReplyTo:     r.ReplyTo,
		Subject:     r.Subject,
		Body:        r.Body,
		Text:        r.TextBody,
		Status:      core.MessageStatus(r.Status),
		Attachments: r.Attachments,
		Metadata:    metadata,
		Version:     r.Version,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if len(msg.Attachments) == 0 {
		msg.Attachments = nil
	}
	return msg.Clone(), nil
}

// Metadata round-trips through its JSON form so the column keeps the same
// camelCase document shape the API exposes.
func encodeMetadata(metadata core.MessageMetadata) (map[string]any, error) {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeMetadata(document map[string]any) (core.MessageMetadata, error) {
	if len(document) == 0 {
		return core.MessageMetadata{}, nil
	}
	raw, err := json.Marshal(document)
	if err != nil {
		return core.MessageMetadata{}, err
	}
	var metadata core.MessageMetadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return core.MessageMetadata{}, err
	}
	return metadata, nil
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
