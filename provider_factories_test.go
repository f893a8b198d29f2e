package mailflow

import (
	"testing"

	"github.com/kdevda/go-mailflow/providers/resend"
)

func TestBuiltinProvider_Resend(t *testing.T) {
	cfg := DefaultConfig()
	provider, template, err := BuiltinProvider(cfg, nil)
	if err != nil {
		t.Fatalf("builtin provider: %v", err)
	}
	if provider.ID() != resend.ProviderID {
		t.Fatalf("expected resend provider, got %q", provider.ID())
	}
	if template.ProviderID != resend.ProviderID || template.SignatureHeader != resend.SignatureHeader {
		t.Fatalf("unexpected webhook template %#v", template)
	}

	cfg.Provider = ""
	if _, _, err := BuiltinProvider(cfg, nil); err != nil {
		t.Fatalf("expected empty provider to default to resend, got %v", err)
	}
}

func TestBuiltinProvider_UsesConfiguredBaseURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProviderBaseURL = "https://mail.example.test/"
	provider, _, err := BuiltinProvider(cfg, nil)
	if err != nil {
		t.Fatalf("builtin provider: %v", err)
	}
	resendProvider, ok := provider.(*resend.Provider)
	if !ok {
		t.Fatalf("expected *resend.Provider, got %T", provider)
	}
	if resendProvider.BaseURL() != "https://mail.example.test" {
		t.Fatalf("unexpected base url %q", resendProvider.BaseURL())
	}
}

func TestBuiltinProvider_UnknownProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = "postmark"
	if _, _, err := BuiltinProvider(cfg, nil); err == nil {
		t.Fatalf("expected unsupported provider error")
	}
	if _, err := BuiltinProviderPack(cfg, nil); err == nil {
		t.Fatalf("expected pack error for unsupported provider")
	}
}
