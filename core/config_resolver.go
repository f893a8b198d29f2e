package core

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"strings"
)

type ResolutionSource string

const (
	ResolutionSourceStore  ResolutionSource = "store"
	ResolutionSourceEnv    ResolutionSource = "env"
	ResolutionSourceAbsent ResolutionSource = "absent"
)

type Resolution struct {
	Key    string
	Value  string
	Source ResolutionSource
	// StoreErr records a store failure that was degraded into an env lookup.
	StoreErr error
}

func (r Resolution) Found() bool {
	return r.Source != ResolutionSourceAbsent && r.Value != ""
}

// ConfigResolver resolves named values from the config store, then the
// process environment. The order is fixed: store, env, absent.
type ConfigResolver struct {
	store   ConfigEntryStore
	secrets SecretProvider
	lookup  EnvLookup
	logger  Logger
}

func NewConfigResolver(store ConfigEntryStore, lookup EnvLookup, secrets SecretProvider, logger Logger) *ConfigResolver {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &ConfigResolver{
		store:   store,
		secrets: secrets,
		lookup:  lookup,
		logger:  logger,
	}
}

// Resolve never fails. Store errors and decrypt errors count as a missing row.
func (r *ConfigResolver) Resolve(ctx context.Context, key string) Resolution {
	key = strings.TrimSpace(key)
	result := Resolution{Key: key, Source: ResolutionSourceAbsent}
	if r == nil || key == "" {
		return result
	}

	if value, err := r.fromStore(ctx, key); err != nil {
		result.StoreErr = err
		r.warn(ctx, "config store lookup failed, falling back to environment", "key", key, "error", err.Error())
	} else if value != "" {
		result.Value = value
		result.Source = ResolutionSourceStore
		return result
	}

	if r.lookup != nil {
		if value, ok := r.lookup(key); ok && strings.TrimSpace(value) != "" {
			result.Value = strings.TrimSpace(value)
			result.Source = ResolutionSourceEnv
			return result
		}
	}
	return result
}

// ResolveString returns the resolved value or fallback when absent.
func (r *ConfigResolver) ResolveString(ctx context.Context, key string, fallback string) string {
	resolved := r.Resolve(ctx, key)
	if resolved.Found() {
		return resolved.Value
	}
	return fallback
}

func (r *ConfigResolver) fromStore(ctx context.Context, key string) (string, error) {
	if r.store == nil {
		return "", nil
	}
	entry, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrConfigEntryNotFound) {
			return "", nil
		}
		return "", err
	}
	if !entry.HasValue() {
		return "", nil
	}
	value := strings.TrimSpace(*entry.Value)
	if !entry.IsEncrypted || r.secrets == nil {
		return value, nil
	}
	ciphertext, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", err
	}
	plaintext, err := r.secrets.Decrypt(ctx, ciphertext)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(plaintext)), nil
}

func (r *ConfigResolver) warn(ctx context.Context, msg string, args ...any) {
	if r.logger == nil {
		return
	}
	logger := r.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Warn(msg, args...)
}

// EncodeEncryptedValue encrypts a plaintext config value into the stored form
// read back by ConfigResolver.
func EncodeEncryptedValue(ctx context.Context, secrets SecretProvider, plaintext string) (string, error) {
	if secrets == nil {
		return "", errors.New("core: secret provider is required to encrypt config values")
	}
	ciphertext, err := secrets.Encrypt(ctx, []byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}
