package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/kdevda/go-mailflow/core"
)

type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

// Sign returns the hex-encoded HMAC-SHA256 of body keyed by secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares the provided hex signature against the HMAC of the
// exact body bytes in constant time. It never panics and reports false for an
// empty signature or secret.
func VerifySignature(signature string, body []byte, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	expected := Sign(body, secret)
	return subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) == 1
}

type HeaderHMACVerifier struct {
	Header string
	Prefix string
	Secret string
}

func (v HeaderHMACVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	header := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if header == "" {
		return fmt.Errorf("webhooks: %s signature header is required", strings.TrimSpace(v.Header))
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return fmt.Errorf("webhooks: signature secret is required")
	}
	signature := strings.TrimSpace(strings.TrimPrefix(header, strings.TrimSpace(v.Prefix)))
	if !VerifySignature(signature, req.Body, secret) {
		return fmt.Errorf("webhooks: signature verification failed")
	}
	return nil
}

// ProviderTemplate names the header and config key a provider uses to sign
// its callbacks.
type ProviderTemplate struct {
	ProviderID      string
	SignatureHeader string
	SignaturePrefix string
	SecretKey       string
}

func (t ProviderTemplate) Verifier(secret string) HeaderHMACVerifier {
	return HeaderHMACVerifier{
		Header: t.SignatureHeader,
		Prefix: t.SignaturePrefix,
		Secret: secret,
	}
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
