package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[SendEmailMessage]           = (*SendEmailCommand)(nil)
	_ gocmd.Commander[ProcessWebhookEventMessage] = (*ProcessWebhookEventCommand)(nil)
	_ gocmd.Commander[SetConfigEntryMessage]      = (*SetConfigEntryCommand)(nil)
)
