package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryConfigStore struct {
	mu      sync.RWMutex
	entries map[string]ConfigEntry
	now     Clock
}

func NewMemoryConfigStore(entries ...ConfigEntry) *MemoryConfigStore {
	store := &MemoryConfigStore{
		entries: map[string]ConfigEntry{},
		now:     time.Now,
	}
	for _, entry := range entries {
		_, _ = store.Upsert(context.Background(), entry)
	}
	return store
}

func (s *MemoryConfigStore) Get(_ context.Context, key string) (ConfigEntry, error) {
	if s == nil {
		return ConfigEntry{}, fmt.Errorf("core: memory config store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[strings.TrimSpace(key)]
	if !ok {
		return ConfigEntry{}, fmt.Errorf("%w: %s", ErrConfigEntryNotFound, key)
	}
	return cloneConfigEntry(entry), nil
}

func (s *MemoryConfigStore) Upsert(_ context.Context, entry ConfigEntry) (ConfigEntry, error) {
	if s == nil {
		return ConfigEntry{}, fmt.Errorf("core: memory config store is nil")
	}
	key := strings.TrimSpace(entry.Key)
	if key == "" {
		return ConfigEntry{}, newBadInputError("core: config key is required", map[string]any{"field": "key"})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	entry.Key = key
	if existing, ok := s.entries[key]; ok {
		entry.CreatedAt = existing.CreatedAt
	} else if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	s.entries[key] = cloneConfigEntry(entry)
	return cloneConfigEntry(entry), nil
}

func (s *MemoryConfigStore) Delete(_ context.Context, key string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, strings.TrimSpace(key))
}

// MemoryMessageStore serializes updates per store, which also makes each
// message read-modify-write atomic.
type MemoryMessageStore struct {
	mu         sync.Mutex
	messages   map[string]Message
	byProvider map[string]string
	now        Clock
}

func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{
		messages:   map[string]Message{},
		byProvider: map[string]string{},
		now:        time.Now,
	}
}

func (s *MemoryMessageStore) Create(_ context.Context, msg Message) (Message, error) {
	if s == nil {
		return Message{}, fmt.Errorf("core: memory message store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(msg.ID) == "" {
		msg.ID = uuid.NewString()
	}
	if _, exists := s.messages[msg.ID]; exists {
		return Message{}, fmt.Errorf("core: message %s already exists", msg.ID)
	}
	providerID := strings.TrimSpace(msg.Metadata.ProviderMessageID)
	if providerID != "" {
		if _, taken := s.byProvider[providerID]; taken {
			return Message{}, fmt.Errorf("core: provider message id %s already indexed", providerID)
		}
	}
	now := s.now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.UpdatedAt = now
	if msg.Status == "" {
		msg.Status = MessageStatusPending
	}
	msg.Version = 1
	s.messages[msg.ID] = msg.Clone()
	if providerID != "" {
		s.byProvider[providerID] = msg.ID
	}
	return msg.Clone(), nil
}

func (s *MemoryMessageStore) Get(_ context.Context, id string) (Message, error) {
	if s == nil {
		return Message{}, fmt.Errorf("core: memory message store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[strings.TrimSpace(id)]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	return msg.Clone(), nil
}

func (s *MemoryMessageStore) FindByProviderMessageID(_ context.Context, providerMessageID string) (Message, error) {
	if s == nil {
		return Message{}, fmt.Errorf("core: memory message store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byProvider[strings.TrimSpace(providerMessageID)]
	if !ok {
		return Message{}, fmt.Errorf("%w: provider id %s", ErrMessageNotFound, providerMessageID)
	}
	return s.messages[id].Clone(), nil
}

func (s *MemoryMessageStore) Update(_ context.Context, id string, mutate MessageMutation) (Message, error) {
	if s == nil {
		return Message{}, fmt.Errorf("core: memory message store is nil")
	}
	if mutate == nil {
		return Message{}, fmt.Errorf("core: message mutation is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.messages[strings.TrimSpace(id)]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	next := current.Clone()
	if err := mutate(&next); err != nil {
		return Message{}, err
	}
	if err := CheckProviderMessageID(current, next); err != nil {
		return Message{}, err
	}
	newProviderID := strings.TrimSpace(next.Metadata.ProviderMessageID)
	if newProviderID != "" && current.Metadata.ProviderMessageID == "" {
		if owner, taken := s.byProvider[newProviderID]; taken && owner != current.ID {
			return Message{}, fmt.Errorf("core: provider message id %s already indexed", newProviderID)
		}
		s.byProvider[newProviderID] = current.ID
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.Version = current.Version + 1
	next.UpdatedAt = s.now().UTC()
	s.messages[current.ID] = next.Clone()
	return next, nil
}

// CheckProviderMessageID rejects mutations that change a provider id once set.
func CheckProviderMessageID(current Message, next Message) error {
	before := strings.TrimSpace(current.Metadata.ProviderMessageID)
	after := strings.TrimSpace(next.Metadata.ProviderMessageID)
	if before != "" && before != after {
		return fmt.Errorf("%w: %s", ErrProviderMessageIDImmutable, current.ID)
	}
	return nil
}

func cloneConfigEntry(entry ConfigEntry) ConfigEntry {
	out := entry
	if entry.Value != nil {
		value := *entry.Value
		out.Value = &value
	}
	return out
}
