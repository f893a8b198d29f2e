package core

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestErrorKind_MapsTaxonomy(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{ConfigurationMissingError(ConfigKeyResendAPIKey), KindConfigurationMissing},
		{SignatureInvalidError(), KindSignatureInvalid},
		{MalformedPayloadError("bad", nil), KindMalformedPayload},
		{ProviderError("resend", 500, "boom", nil), KindProviderError},
		{PersistenceError("update", stderrors.New("db down")), KindPersistenceError},
		{fmt.Errorf("wrap: %w", ErrMessageNotFound), KindNotFound},
		{stderrors.New("anything"), KindInternal},
	}
	for _, tc := range cases {
		if got := ErrorKind(tc.err); got != tc.want {
			t.Fatalf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestToServiceError_AssignsStableCodes(t *testing.T) {
	mapped := ToServiceError(fmt.Errorf("lookup: %w", ErrMessageNotFound))
	if mapped.TextCode != MailflowErrorNotFound || mapped.Code != http.StatusNotFound {
		t.Fatalf("expected not found envelope, got %#v", mapped)
	}

	mapped = ToServiceError(fmt.Errorf("update: %w", ErrVersionConflict))
	if mapped.Category != goerrors.CategoryConflict {
		t.Fatalf("expected conflict category, got %q", mapped.Category)
	}

	mapped = ToServiceError(context.DeadlineExceeded)
	if mapped.TextCode != MailflowErrorProviderError || mapped.Code != http.StatusBadGateway {
		t.Fatalf("expected provider timeout envelope, got %#v", mapped)
	}

	mapped = ToServiceError(SignatureInvalidError())
	if mapped.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", mapped.Code)
	}
}

func TestProviderError_KeepsPayloadAndStatus(t *testing.T) {
	err := ProviderError("resend", 422, `{"message":"Invalid from"}`, nil)
	if err.Message != `{"message":"Invalid from"}` {
		t.Fatalf("expected provider payload as message, got %q", err.Message)
	}
	if err.Metadata["status_code"] != 422 {
		t.Fatalf("expected status code metadata, got %#v", err.Metadata)
	}
}
