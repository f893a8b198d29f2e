package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/kdevda/go-mailflow/core"
	"github.com/uptrace/bun"
)

type ConfigEntryStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewConfigEntryStore(db *bun.DB) (*ConfigEntryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &ConfigEntryStore{db: db, now: time.Now}, nil
}

func (s *ConfigEntryStore) Get(ctx context.Context, key string) (core.ConfigEntry, error) {
	if s == nil || s.db == nil {
		return core.ConfigEntry{}, fmt.Errorf("sqlstore: config entry store is not configured")
	}
	trimmed := strings.TrimSpace(key)
	record := &configEntryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.config_key = ?", trimmed).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.ConfigEntry{}, fmt.Errorf("%w: %s", core.ErrConfigEntryNotFound, trimmed)
		}
		return core.ConfigEntry{}, err
	}
	return record.toDomain(), nil
}

// Upsert writes an entry, keeping the original creation time on overwrite.
func (s *ConfigEntryStore) Upsert(ctx context.Context, entry core.ConfigEntry) (core.ConfigEntry, error) {
	if s == nil || s.db == nil {
		return core.ConfigEntry{}, fmt.Errorf("sqlstore: config entry store is not configured")
	}
	entry.Key = strings.TrimSpace(entry.Key)
	if entry.Key == "" {
		return core.ConfigEntry{}, fmt.Errorf("sqlstore: config key is required")
	}
	now := s.now().UTC()

	var stored core.ConfigEntry
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &configEntryRecord{}
		findErr := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.config_key = ?", entry.Key).
			Limit(1).
			Scan(ctx)
		if findErr != nil && findErr != sql.ErrNoRows {
			return findErr
		}

		entry.UpdatedAt = now
		if findErr == sql.ErrNoRows {
			if entry.CreatedAt.IsZero() {
				entry.CreatedAt = now
			}
			record := newConfigEntryRecord(entry)
			if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
				return err
			}
			stored = record.toDomain()
			return nil
		}

		entry.CreatedAt = existing.CreatedAt
		record := newConfigEntryRecord(entry)
		if _, err := tx.NewUpdate().
			Model(record).
			ExcludeColumn("config_key", "created_at").
			Where("config_key = ?", entry.Key).
			Exec(ctx); err != nil {
			return err
		}
		stored = record.toDomain()
		return nil
	})
	if err != nil {
		return core.ConfigEntry{}, err
	}
	return stored, nil
}

func (s *ConfigEntryStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: config entry store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*configEntryRecord)(nil)).
		Where("config_key = ?", strings.TrimSpace(key)).
		Exec(ctx)
	return err
}
