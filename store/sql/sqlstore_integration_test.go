package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/kdevda/go-mailflow/core"
	mailflowmigrations "github.com/kdevda/go-mailflow/migrations"
	sqlstore "github.com/kdevda/go-mailflow/store/sql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-mailflow-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"mailflow_messages", "mailflow_config_entries"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestMessageStore_CreateGetAndFindByProviderID(t *testing.T) {
	ctx := context.Background()
	store := newMessageStore(t)

	created, err := store.Create(ctx, core.Message{
		From:    "Mailflow <noreply@example.com>",
		To:      []string{"a@x.com", "b@x.com"},
		CC:      []string{"c@x.com"},
		Subject: "Welcome",
		Body:    "<p>hi</p>",
		Attachments: []core.Attachment{
			{Filename: "a.pdf", Path: "https://files.example.com/a.pdf"},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.Version != 1 || created.Status != core.MessageStatusPending {
		t.Fatalf("unexpected created message %#v", created)
	}

	loaded, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(loaded.To) != 2 || loaded.To[1] != "b@x.com" || len(loaded.CC) != 1 {
		t.Fatalf("unexpected recipients %#v", loaded)
	}
	if len(loaded.Attachments) != 1 || loaded.Attachments[0].Filename != "a.pdf" {
		t.Fatalf("unexpected attachments %#v", loaded.Attachments)
	}

	if _, err := store.FindByProviderMessageID(ctx, "prov_1"); !errors.Is(err, core.ErrMessageNotFound) {
		t.Fatalf("expected not found before provider id is set, got %v", err)
	}
	sentAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := store.Update(ctx, created.ID, func(msg *core.Message) error {
		msg.Status = core.MessageStatusSent
		msg.Metadata.ProviderMessageID = "prov_1"
		msg.Metadata.SentAt = &sentAt
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	found, err := store.FindByProviderMessageID(ctx, "prov_1")
	if err != nil {
		t.Fatalf("find by provider id: %v", err)
	}
	if found.ID != created.ID || found.Status != core.MessageStatusSent || found.Version != 2 {
		t.Fatalf("unexpected found message %#v", found)
	}
	if found.Metadata.SentAt == nil || !found.Metadata.SentAt.Equal(sentAt) {
		t.Fatalf("expected sentAt to round trip, got %#v", found.Metadata.SentAt)
	}
}

func TestMessageStore_GetMissingReturnsNotFound(t *testing.T) {
	store := newMessageStore(t)
	if _, err := store.Get(context.Background(), "00000000-0000-0000-0000-000000000000"); !errors.Is(err, core.ErrMessageNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, err := store.Update(context.Background(), "00000000-0000-0000-0000-000000000000", func(*core.Message) error { return nil })
	if !errors.Is(err, core.ErrMessageNotFound) {
		t.Fatalf("expected not found from update, got %v", err)
	}
}

func TestMessageStore_ProviderMessageIDIsImmutable(t *testing.T) {
	ctx := context.Background()
	store := newMessageStore(t)
	created, err := store.Create(ctx, core.Message{To: []string{"a@x.com"}, Subject: "s", Body: "b"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Update(ctx, created.ID, func(msg *core.Message) error {
		msg.Metadata.ProviderMessageID = "prov_a"
		return nil
	}); err != nil {
		t.Fatalf("set provider id: %v", err)
	}
	_, err = store.Update(ctx, created.ID, func(msg *core.Message) error {
		msg.Metadata.ProviderMessageID = "prov_b"
		return nil
	})
	if !errors.Is(err, core.ErrProviderMessageIDImmutable) {
		t.Fatalf("expected immutable provider id error, got %v", err)
	}
}

func TestMessageStore_ConcurrentEventsAreNotLost(t *testing.T) {
	ctx := context.Background()
	store := newMessageStore(t)
	created, err := store.Create(ctx, core.Message{To: []string{"a@x.com"}, Subject: "s", Body: "b"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Update(ctx, created.ID, func(msg *core.Message) error {
		msg.Status = core.MessageStatusSent
		msg.Metadata.ProviderMessageID = "prov_open"
		return nil
	}); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	const opens = 32
	var wg sync.WaitGroup
	errs := make(chan error, opens)
	for i := 0; i < opens; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			event := core.WebhookEvent{
				ProviderID:        "resend",
				Type:              core.EventEmailOpened,
				ProviderMessageID: "prov_open",
				Data:              []byte(fmt.Sprintf(`{"id":"prov_open","open":{"ipAddress":"10.0.1.%d"}}`, i)),
				ReceivedAt:        time.Date(2026, 3, 1, 12, 0, 0, i, time.UTC),
			}
			_, err := core.NewEventProcessor(store).Process(ctx, event)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("process open: %v", err)
		}
	}

	current, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(current.Metadata.OpenEvents) != opens {
		t.Fatalf("expected %d open events, got %d", opens, len(current.Metadata.OpenEvents))
	}
}

func TestConfigEntryStore_UpsertPreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	store := factory.ConfigEntryStore()

	if _, err := store.Get(ctx, core.ConfigKeyResendAPIKey); !errors.Is(err, core.ErrConfigEntryNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if _, err := store.Upsert(ctx, core.ConfigEntry{Key: core.ConfigKeyResendAPIKey, Value: strPtr("re_one"), IsSecret: true}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	first, err := store.Get(ctx, core.ConfigKeyResendAPIKey)
	if err != nil {
		t.Fatalf("get first: %v", err)
	}
	if _, err := store.Upsert(ctx, core.ConfigEntry{Key: core.ConfigKeyResendAPIKey, Value: strPtr("re_two"), IsSecret: true}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	loaded, err := store.Get(ctx, core.ConfigKeyResendAPIKey)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !loaded.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("expected created_at preserved, %v != %v", loaded.CreatedAt, first.CreatedAt)
	}
	if loaded.Value == nil || *loaded.Value != "re_two" || !loaded.IsSecret {
		t.Fatalf("unexpected entry %#v", loaded)
	}

	if _, err := store.Upsert(ctx, core.ConfigEntry{Key: core.ConfigKeyEmailFromName}); err != nil {
		t.Fatalf("upsert null value: %v", err)
	}
	empty, err := store.Get(ctx, core.ConfigKeyEmailFromName)
	if err != nil {
		t.Fatalf("get null value: %v", err)
	}
	if empty.HasValue() {
		t.Fatalf("expected null value to be preserved, got %#v", empty)
	}
}

func TestConfigResolver_PrefersSQLStoreOverEnvironment(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	if _, err := factory.ConfigEntryStore().Upsert(ctx, core.ConfigEntry{Key: core.ConfigKeyResendAPIKey, Value: strPtr("re_store")}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	env := func(key string) (string, bool) {
		if key == core.ConfigKeyResendAPIKey {
			return "re_env", true
		}
		return "", false
	}
	resolver := core.NewConfigResolver(factory.ConfigEntryStore(), env, nil, nil)
	resolved := resolver.Resolve(ctx, core.ConfigKeyResendAPIKey)
	if resolved.Value != "re_store" || resolved.Source != core.ResolutionSourceStore {
		t.Fatalf("expected store value, got %#v", resolved)
	}
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:mailflow-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = mailflowmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != mailflowmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, mailflowmigrations.WithValidationTargets(mailflowmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func newFactory(t *testing.T) *sqlstore.RepositoryFactory {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	t.Cleanup(cleanup)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	return factory
}

func newMessageStore(t *testing.T) core.MessageStore {
	t.Helper()
	store := newFactory(t).MessageStore()
	if store == nil {
		t.Fatalf("expected message store from factory")
	}
	return store
}

func strPtr(value string) *string {
	return &value
}
