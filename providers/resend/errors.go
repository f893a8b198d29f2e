package resend

import "errors"

var (
	ErrMissingAPIKey     = errors.New("resend: api key is required")
	ErrMissingRecipients = errors.New("resend: at least one recipient is required")
	ErrMissingMessageID  = errors.New("resend: response did not include an email id")
)
