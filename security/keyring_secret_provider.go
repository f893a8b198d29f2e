package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kdevda/go-mailflow/core"
)

type KeyringDiagnostic struct {
	OccurredAt time.Time
	Operation  string
	Outcome    string
	KeyID      string
	Version    int
	Error      string
}

type KeyringDiagnosticHook func(event KeyringDiagnostic)

type KeyringOption func(*KeyringSecretProvider)

// KeyringSecretProvider encrypts with the current key and decrypts with the
// current key first, then each retired key in order. It lets encrypted config
// rows survive an app key rotation until they are re-provisioned.
type KeyringSecretProvider struct {
	current        core.SecretProvider
	retired        []core.SecretProvider
	diagnosticHook KeyringDiagnosticHook
	now            func() time.Time
}

func NewKeyringSecretProvider(current core.SecretProvider, opts ...KeyringOption) (*KeyringSecretProvider, error) {
	if current == nil {
		return nil, fmt.Errorf("security: current secret provider is required")
	}
	provider := &KeyringSecretProvider{
		current: current,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(provider)
	}
	if provider.now == nil {
		provider.now = func() time.Time { return time.Now().UTC() }
	}
	return provider, nil
}

func WithRetiredSecretProviders(providers ...core.SecretProvider) KeyringOption {
	return func(k *KeyringSecretProvider) {
		for _, provider := range providers {
			if provider != nil {
				k.retired = append(k.retired, provider)
			}
		}
	}
}

func WithKeyringDiagnostics(hook KeyringDiagnosticHook) KeyringOption {
	return func(k *KeyringSecretProvider) {
		k.diagnosticHook = hook
	}
}

func WithKeyringClock(now func() time.Time) KeyringOption {
	return func(k *KeyringSecretProvider) {
		k.now = now
	}
}

// NewKeyringFromAppKeys builds a keyring from the current key and a comma
// separated list of retired keys.
func NewKeyringFromAppKeys(current string, retired string, opts ...KeyringOption) (*KeyringSecretProvider, error) {
	primary, err := NewAppKeySecretProviderFromString(current)
	if err != nil {
		return nil, err
	}
	var previous []core.SecretProvider
	for _, key := range strings.Split(retired, ",") {
		if strings.TrimSpace(key) == "" {
			continue
		}
		candidate, err := NewAppKeySecretProviderFromString(key)
		if err != nil {
			return nil, err
		}
		previous = append(previous, candidate)
	}
	return NewKeyringSecretProvider(primary, append([]KeyringOption{WithRetiredSecretProviders(previous...)}, opts...)...)
}

func (k *KeyringSecretProvider) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if k == nil || k.current == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	return k.current.Encrypt(ctx, plaintext)
}

func (k *KeyringSecretProvider) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if k == nil || k.current == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	plaintext, err := k.current.Decrypt(ctx, ciphertext)
	if err == nil {
		return plaintext, nil
	}
	if len(k.retired) == 0 {
		return nil, err
	}
	k.emit("decrypt", "current_failed", k.current, err)

	failures := []error{err}
	for _, retired := range k.retired {
		plaintext, retiredErr := retired.Decrypt(ctx, ciphertext)
		if retiredErr == nil {
			k.emit("decrypt", "retired_succeeded", retired, nil)
			return plaintext, nil
		}
		failures = append(failures, retiredErr)
	}
	k.emit("decrypt", "all_failed", nil, err)
	return nil, fmt.Errorf("security: no key in keyring could decrypt payload: %w", errors.Join(failures...))
}

func (k *KeyringSecretProvider) Metadata() (string, int) {
	if k == nil {
		return "", 0
	}
	keyID, version, _ := readProviderMetadata(k.current)
	return keyID, version
}

func (k *KeyringSecretProvider) emit(operation string, outcome string, provider core.SecretProvider, err error) {
	if k == nil || k.diagnosticHook == nil {
		return
	}
	event := KeyringDiagnostic{
		OccurredAt: k.now().UTC(),
		Operation:  operation,
		Outcome:    outcome,
	}
	if keyID, version, ok := readProviderMetadata(provider); ok {
		event.KeyID = keyID
		event.Version = version
	}
	if err != nil {
		event.Error = err.Error()
	}
	k.diagnosticHook(event)
}

func readProviderMetadata(provider core.SecretProvider) (string, int, bool) {
	if provider == nil {
		return "", 0, false
	}
	metadataProvider, ok := provider.(interface{ Metadata() (string, int) })
	if !ok {
		return "", 0, false
	}
	keyID, version := metadataProvider.Metadata()
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		return "", 0, false
	}
	return keyID, version, true
}

var _ core.SecretProvider = (*KeyringSecretProvider)(nil)
