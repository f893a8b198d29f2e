package core

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type logCall struct {
	level string
	msg   string
	args  []any
}

type recordingLogger struct {
	mu    sync.Mutex
	calls []logCall
}

func (l *recordingLogger) record(level string, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, logCall{level: level, msg: msg, args: append([]any(nil), args...)})
}

func (l *recordingLogger) Trace(msg string, args ...any) { l.record("trace", msg, args) }
func (l *recordingLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record("error", msg, args) }
func (l *recordingLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args) }

func (l *recordingLogger) WithContext(context.Context) glog.Logger {
	return l
}

func (l *recordingLogger) hasLevel(level string, contains string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, call := range l.calls {
		if call.level == level && strings.Contains(call.msg, contains) {
			return true
		}
	}
	return false
}

type fakeProvider struct {
	mu       sync.Mutex
	id       string
	response ProviderSendResponse
	err      error
	block    bool
	requests []ProviderSendRequest
}

func (p *fakeProvider) ID() string {
	if p.id == "" {
		return "resend"
	}
	return p.id
}

func (p *fakeProvider) Send(ctx context.Context, req ProviderSendRequest) (ProviderSendResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	if p.block {
		<-ctx.Done()
		return ProviderSendResponse{}, ctx.Err()
	}
	if p.err != nil {
		return ProviderSendResponse{}, p.err
	}
	return p.response, nil
}

func (p *fakeProvider) calls() []ProviderSendRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ProviderSendRequest(nil), p.requests...)
}

type failingConfigStore struct{}

func (failingConfigStore) Get(context.Context, string) (ConfigEntry, error) {
	return ConfigEntry{}, errors.New("connection refused")
}

// createFailingMessageStore fails Create but otherwise behaves like memory.
type createFailingMessageStore struct {
	*MemoryMessageStore
}

func (createFailingMessageStore) Create(context.Context, Message) (Message, error) {
	return Message{}, errors.New("database unavailable")
}

type testSecretProvider struct{}

func (testSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("test secret provider: plaintext is required")
	}
	encoded := base64.StdEncoding.EncodeToString(plaintext)
	return []byte("enc:" + encoded), nil
}

func (testSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	value := string(ciphertext)
	if !strings.HasPrefix(value, "enc:") {
		return nil, fmt.Errorf("test secret provider: invalid ciphertext")
	}
	return base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "enc:"))
}

func strPtr(value string) *string {
	return &value
}

func envMap(values map[string]string) EnvLookup {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func fixedTime() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func newTestService(t interface {
	Fatalf(format string, args ...any)
}, opts ...Option) *Service {
	svc, err := NewService(Config{}, opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}
