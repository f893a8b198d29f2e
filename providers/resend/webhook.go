package resend

import (
	"github.com/kdevda/go-mailflow/core"
	"github.com/kdevda/go-mailflow/webhooks"
)

const SignatureHeader = "X-Resend-Signature"

// WebhookTemplate signs callbacks with a hex HMAC-SHA256 of the raw body.
func WebhookTemplate() webhooks.ProviderTemplate {
	return webhooks.ProviderTemplate{
		ProviderID:      ProviderID,
		SignatureHeader: SignatureHeader,
		SecretKey:       core.ConfigKeyResendWebhookSecret,
	}
}
