package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kdevda/go-mailflow/core"
	mailquery "github.com/kdevda/go-mailflow/query"
	"github.com/spf13/pflag"
)

func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for key, value := range env {
		t.Setenv(key, value)
	}
}

func testEnv(t *testing.T) map[string]string {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "mailflow.db") + "?_foreign_keys=on"
	return map[string]string{
		"MAILFLOW_DB_DRIVER":        driverSQLite,
		"MAILFLOW_DB_DSN":           dsn,
		"MAILFLOW_LOG_LEVEL":        "error",
		"MAILFLOW_CONFIG_CACHE_TTL": "0s",
		core.ConfigKeyResendAPIKey:  "",
	}
}

func runCLI(t *testing.T, env map[string]string, args ...string) (string, error) {
	t.Helper()
	setEnv(t, env)
	root := newRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestLoadSettings_DefaultsAndOverrides(t *testing.T) {
	ctx := context.Background()
	s, err := loadSettings(ctx, nil)
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if s.DBDriver != driverSQLite || s.HTTPAddr != ":8080" || s.ConfigCacheTTL != 30*time.Second {
		t.Fatalf("unexpected defaults %#v", s)
	}

	setEnv(t, map[string]string{
		"MAILFLOW_DB_DRIVER":        "postgres",
		"MAILFLOW_DB_DSN":           "postgres://localhost/mailflow",
		"MAILFLOW_DB_DEBUG":         "true",
		"MAILFLOW_HTTP_ADDR":        ":9090",
		"MAILFLOW_CONFIG_CACHE_TTL": "5s",
		"MAILFLOW_APP_KEY":          "  key  ",
	})
	s, err = loadSettings(ctx, nil)
	if err != nil {
		t.Fatalf("load overrides: %v", err)
	}
	if s.DBDriver != driverPostgres || s.HTTPAddr != ":9090" || s.ConfigCacheTTL != 5*time.Second || s.AppKey != "key" || !s.DBDebug {
		t.Fatalf("unexpected overrides %#v", s)
	}
}

func TestLoadSettings_ChangedFlagsWinOverEnv(t *testing.T) {
	t.Setenv("MAILFLOW_DB_DSN", "file:from-env.db")
	t.Setenv("MAILFLOW_LOG_LEVEL", "debug")

	flags := pflag.NewFlagSet("mailflow", pflag.ContinueOnError)
	flags.String("db-dsn", "", "")
	flags.String("log-level", "info", "")
	flags.String("log-format", "json", "")
	if err := flags.Parse([]string{"--db-dsn", "file:from-flag.db"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	s, err := loadSettings(context.Background(), flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.DBDSN != "file:from-flag.db" {
		t.Fatalf("expected flag dsn, got %q", s.DBDSN)
	}
	if s.LogLevel != "debug" {
		t.Fatalf("expected unchanged flag to leave env value, got %q", s.LogLevel)
	}
	if s.LogFormat != "json" {
		t.Fatalf("expected default log format, got %q", s.LogFormat)
	}
}

func TestLoadSettings_RejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"MAILFLOW_DB_DRIVER":        "mysql",
		"MAILFLOW_CONFIG_CACHE_TTL": "soon",
		"MAILFLOW_DB_DEBUG":         "maybe",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := loadSettings(context.Background(), nil); err == nil {
				t.Fatalf("expected %s=%q to be rejected", key, value)
			}
		})
	}
}

func TestParseAttachments(t *testing.T) {
	got, err := parseAttachments([]string{"/tmp/report.pdf", "invoice.pdf=/srv/files/42", " "})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 attachments, got %#v", got)
	}
	if got[0].Filename != "report.pdf" || got[0].Path != "/tmp/report.pdf" {
		t.Fatalf("unexpected first attachment %#v", got[0])
	}
	if got[1].Filename != "invoice.pdf" || got[1].Path != "/srv/files/42" {
		t.Fatalf("unexpected second attachment %#v", got[1])
	}
	if _, err := parseAttachments([]string{"name="}); err == nil {
		t.Fatalf("expected empty path to be rejected")
	}
}

func TestCLI_ConfigSetAndGetRedactsSecrets(t *testing.T) {
	env := testEnv(t)
	if _, err := runCLI(t, env, "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	out, err := runCLI(t, env, "config", "set", core.ConfigKeyEmailFromAddress, "ops@example.com")
	if err != nil {
		t.Fatalf("config set: %v", err)
	}
	var view mailquery.ConfigEntryView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode set output %q: %v", out, err)
	}
	if view.Value != "ops@example.com" || view.IsSecret {
		t.Fatalf("unexpected plain entry %#v", view)
	}

	if _, err := runCLI(t, env, "config", "set", core.ConfigKeyResendAPIKey, "re_secret", "--secret"); err != nil {
		t.Fatalf("config set secret: %v", err)
	}
	out, err = runCLI(t, env, "config", "get", core.ConfigKeyResendAPIKey)
	if err != nil {
		t.Fatalf("config get: %v", err)
	}
	if strings.Contains(out, "re_secret") {
		t.Fatalf("secret leaked in output %q", out)
	}
	view = mailquery.ConfigEntryView{}
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode get output: %v", err)
	}
	if view.Value != core.RedactedValue || !view.IsSecret || !view.HasValue {
		t.Fatalf("expected redacted secret, got %#v", view)
	}
}

func TestCLI_ConfigSetEncryptsWithAppKey(t *testing.T) {
	env := testEnv(t)
	env["MAILFLOW_APP_KEY"] = "0123456789abcdef0123456789abcdef"
	if _, err := runCLI(t, env, "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	out, err := runCLI(t, env, "config", "set", core.ConfigKeyResendWebhookSecret, "whsec_cli", "--encrypt")
	if err != nil {
		t.Fatalf("config set: %v", err)
	}
	var view mailquery.ConfigEntryView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !view.IsEncrypted || view.Value != core.RedactedValue {
		t.Fatalf("expected encrypted redacted entry, got %#v", view)
	}
}

func TestCLI_ConfigSetRequiresValue(t *testing.T) {
	env := testEnv(t)
	if _, err := runCLI(t, env, "config", "set", "SOME_KEY"); err == nil {
		t.Fatalf("expected missing value error")
	}
	if _, err := runCLI(t, env, "config", "set", "SOME_KEY", "v", "--unset"); err == nil {
		t.Fatalf("expected --unset with value error")
	}
}

type fakeResend struct {
	mu       sync.Mutex
	auth     string
	payloads []map[string]any
}

func (f *fakeResend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	payload := map[string]any{}
	_ = json.Unmarshal(raw, &payload)
	f.mu.Lock()
	f.auth = r.Header.Get("Authorization")
	f.payloads = append(f.payloads, payload)
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"id":"prov_cli"}`))
}

func TestCLI_SendUsesConfiguredProvider(t *testing.T) {
	fake := &fakeResend{}
	server := httptest.NewServer(fake)
	defer server.Close()

	env := testEnv(t)
	env["MAILFLOW_PROVIDER_BASE_URL"] = server.URL
	env[core.ConfigKeyResendAPIKey] = "re_cli"

	out, err := runCLI(t, env, "send", "--migrate",
		"--to", "a@example.com", "--to", "b@example.com",
		"--subject", "Hello", "--body", "<p>hi</p>")
	if err != nil {
		t.Fatalf("send: %v (output %q)", err, out)
	}
	var result sendOutput
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !result.Success || result.ProviderMessageID != "prov_cli" || result.Status != string(core.MessageStatusSent) {
		t.Fatalf("unexpected send output %#v", result)
	}
	if !result.Persisted || strings.HasPrefix(result.MessageID, core.TemporaryMessageIDPrefix) {
		t.Fatalf("expected persisted message id, got %#v", result)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.auth != "Bearer re_cli" || len(fake.payloads) != 1 {
		t.Fatalf("unexpected provider calls auth=%q payloads=%d", fake.auth, len(fake.payloads))
	}
}

func TestCLI_SendReportsMissingAPIKey(t *testing.T) {
	env := testEnv(t)
	out, err := runCLI(t, env, "send", "--migrate", "--to", "a@example.com", "--subject", "s", "--body", "b")
	if err == nil {
		t.Fatalf("expected send failure")
	}
	if core.ErrorKind(err) != core.KindConfigurationMissing {
		t.Fatalf("expected configuration missing, got %v", err)
	}
	var result sendOutput
	if decodeErr := json.Unmarshal([]byte(out), &result); decodeErr != nil {
		t.Fatalf("decode: %v", decodeErr)
	}
	if result.Success || result.Status != string(core.MessageStatusFailed) {
		t.Fatalf("expected failed result, got %#v", result)
	}
}
