package core

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryMessageStore_ProviderMessageIDIsImmutable(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryMessageStore()
	msg := seedSentMessage(t, store, "prov_a")

	_, err := store.Update(ctx, msg.ID, func(m *Message) error {
		m.Metadata.ProviderMessageID = "prov_b"
		return nil
	})
	if !errors.Is(err, ErrProviderMessageIDImmutable) {
		t.Fatalf("expected immutable provider id error, got %v", err)
	}
	current, _ := store.Get(ctx, msg.ID)
	if current.Metadata.ProviderMessageID != "prov_a" {
		t.Fatalf("expected provider id unchanged, got %q", current.Metadata.ProviderMessageID)
	}
	if _, err := store.FindByProviderMessageID(ctx, "prov_b"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected prov_b to stay unindexed, got %v", err)
	}
}

func TestMemoryMessageStore_UpdateBumpsVersionAndIsolatesCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryMessageStore()
	created, err := store.Create(ctx, Message{To: []string{"a@x.com"}, Subject: "s", Body: "b"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != MessageStatusPending || created.Version != 1 {
		t.Fatalf("expected pending v1, got %#v", created)
	}
	created.To[0] = "mutated@x.com"

	updated, err := store.Update(ctx, created.ID, func(m *Message) error {
		m.Status = MessageStatusSending
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}
	if updated.To[0] != "a@x.com" {
		t.Fatalf("expected stored copy isolated from caller, got %q", updated.To[0])
	}
}

func TestMemoryMessageStore_MutationErrorLeavesMessageUntouched(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryMessageStore()
	created, _ := store.Create(ctx, Message{To: []string{"a@x.com"}, Subject: "s", Body: "b"})
	boom := errors.New("boom")

	_, err := store.Update(ctx, created.ID, func(m *Message) error {
		m.Status = MessageStatusFailed
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutation error, got %v", err)
	}
	current, _ := store.Get(ctx, created.ID)
	if current.Status != MessageStatusPending || current.Version != 1 {
		t.Fatalf("expected untouched message, got %#v", current)
	}
}

func TestMemoryConfigStore_UpsertPreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryConfigStore()
	first, err := store.Upsert(ctx, ConfigEntry{Key: "EMAIL_FROM_NAME", Value: strPtr("One")})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := store.Upsert(ctx, ConfigEntry{Key: "EMAIL_FROM_NAME", Value: strPtr("Two")})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("expected created_at preserved")
	}
	got, _ := store.Get(ctx, "EMAIL_FROM_NAME")
	if got.Value == nil || *got.Value != "Two" {
		t.Fatalf("expected updated value, got %#v", got)
	}
	if _, err := store.Get(ctx, "MISSING"); !errors.Is(err, ErrConfigEntryNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
