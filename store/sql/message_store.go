package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/kdevda/go-mailflow/core"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// MessageStore persists messages with a version column. Updates are
// transactional and conditioned on the version that was read. A zero
// maxAttempts retries conflicts until ctx is done.
type MessageStore struct {
	db          *bun.DB
	repo        repository.Repository[*messageRecord]
	maxAttempts int
	now         func() time.Time
}

func NewMessageStore(db *bun.DB) (*MessageStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*messageRecord](db, messageHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid message repository wiring: %w", err)
		}
	}
	return &MessageStore{
		db:   db,
		repo: repo,
		now:  time.Now,
	}, nil
}

func (s *MessageStore) Create(ctx context.Context, msg core.Message) (core.Message, error) {
	if s == nil || s.repo == nil {
		return core.Message{}, fmt.Errorf("sqlstore: message store is not configured")
	}
	if strings.TrimSpace(msg.ID) == "" {
		msg.ID = uuid.NewString()
	}
	now := s.now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.UpdatedAt = now
	if msg.Status == "" {
		msg.Status = core.MessageStatusPending
	}
	msg.Version = 1

	record, err := newMessageRecord(msg)
	if err != nil {
		return core.Message{}, fmt.Errorf("sqlstore: encode message: %w", err)
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Message{}, err
	}
	return created.toDomain()
}

func (s *MessageStore) Get(ctx context.Context, id string) (core.Message, error) {
	if s == nil || s.repo == nil {
		return core.Message{}, fmt.Errorf("sqlstore: message store is not configured")
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return core.Message{}, fmt.Errorf("%w: empty id", core.ErrMessageNotFound)
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", trimmed),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Message{}, err
	}
	if len(records) == 0 {
		return core.Message{}, fmt.Errorf("%w: %s", core.ErrMessageNotFound, trimmed)
	}
	return records[0].toDomain()
}

func (s *MessageStore) FindByProviderMessageID(ctx context.Context, providerMessageID string) (core.Message, error) {
	if s == nil || s.repo == nil {
		return core.Message{}, fmt.Errorf("sqlstore: message store is not configured")
	}
	trimmed := strings.TrimSpace(providerMessageID)
	if trimmed == "" {
		return core.Message{}, fmt.Errorf("%w: empty provider id", core.ErrMessageNotFound)
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("provider_message_id", "=", trimmed),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Message{}, err
	}
	if len(records) == 0 {
		return core.Message{}, fmt.Errorf("%w: provider id %s", core.ErrMessageNotFound, trimmed)
	}
	return records[0].toDomain()
}

// Update runs read, mutate and write in one transaction. Postgres holds a row
// lock for the duration; sqlite serializes writers on the transaction itself.
// The version guard stays as a backstop and a lost race is retried with a
// jittered pause until ctx is done.
func (s *MessageStore) Update(ctx context.Context, id string, mutate core.MessageMutation) (core.Message, error) {
	if s == nil || s.db == nil {
		return core.Message{}, fmt.Errorf("sqlstore: message store is not configured")
	}
	if mutate == nil {
		return core.Message{}, fmt.Errorf("sqlstore: message mutation is required")
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return core.Message{}, fmt.Errorf("%w: empty id", core.ErrMessageNotFound)
	}

	for attempt := 1; ; attempt++ {
		updated, err := s.updateInTx(ctx, trimmed, mutate)
		if !errors.Is(err, core.ErrVersionConflict) {
			return updated, err
		}
		if s.maxAttempts > 0 && attempt >= s.maxAttempts {
			return core.Message{}, fmt.Errorf("%w: message %s after %d attempts", core.ErrVersionConflict, trimmed, attempt)
		}
		select {
		case <-ctx.Done():
			return core.Message{}, fmt.Errorf("%w: message %s: %v", core.ErrVersionConflict, trimmed, ctx.Err())
		case <-time.After(conflictPause(attempt)):
		}
	}
}

func (s *MessageStore) updateInTx(ctx context.Context, id string, mutate core.MessageMutation) (core.Message, error) {
	var updated core.Message
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current := &messageRecord{}
		query := tx.NewSelect().
			Model(current).
			Where("?TableAlias.id = ?", id).
			Limit(1)
		if s.db.Dialect().Name() == dialect.PG {
			query = query.For("UPDATE")
		}
		if err := query.Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", core.ErrMessageNotFound, id)
			}
			return err
		}
		msg, err := current.toDomain()
		if err != nil {
			return err
		}

		next := msg.Clone()
		if err := mutate(&next); err != nil {
			return err
		}
		if err := core.CheckProviderMessageID(msg, next); err != nil {
			return err
		}
		next.ID = msg.ID
		next.CreatedAt = msg.CreatedAt
		next.Version = msg.Version + 1
		next.UpdatedAt = s.now().UTC()

		record, err := newMessageRecord(next)
		if err != nil {
			return fmt.Errorf("sqlstore: encode message: %w", err)
		}
		res, err := tx.NewUpdate().
			Model(record).
			ExcludeColumn("id", "created_at").
			Where("id = ?", msg.ID).
			Where("version = ?", msg.Version).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := res.RowsAffected(); affected != 1 {
			return core.ErrVersionConflict
		}
		updated = next
		return nil
	})
	if err != nil {
		return core.Message{}, err
	}
	return updated, nil
}

// conflictPause grows with the attempt and caps at 250ms, with up to half of
// it added as jitter.
func conflictPause(attempt int) time.Duration {
	base := time.Duration(attempt) * 10 * time.Millisecond
	if base > 250*time.Millisecond {
		base = 250 * time.Millisecond
	}
	return base + rand.N(base/2+1)
}
