package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type DispatchResult struct {
	Success           bool
	ProviderMessageID string
	RawResponse       json.RawMessage
	Error             string
	Err               error
}

// OutboundDispatcher maps a Message into one provider call. It never retries
// and never touches the message store.
type OutboundDispatcher struct {
	provider EmailProvider
	resolver *ConfigResolver
	timeout  time.Duration
}

func NewOutboundDispatcher(provider EmailProvider, resolver *ConfigResolver, timeout time.Duration) *OutboundDispatcher {
	return &OutboundDispatcher{
		provider: provider,
		resolver: resolver,
		timeout:  timeout,
	}
}

func (d *OutboundDispatcher) Dispatch(ctx context.Context, msg Message) DispatchResult {
	if d == nil || d.provider == nil {
		return failedDispatch(fmt.Errorf("core: %w", ErrProviderNotRegistered))
	}
	if ctx == nil {
		ctx = context.Background()
	}

	apiKey := d.resolver.Resolve(ctx, ConfigKeyResendAPIKey)
	if !apiKey.Found() {
		return failedDispatch(ConfigurationMissingError(ConfigKeyResendAPIKey))
	}

	req := BuildProviderSendRequest(msg)
	req.APIKey = apiKey.Value

	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	resp, err := d.provider.Send(callCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = ProviderError(d.provider.ID(), 0, "provider call timed out", err)
		}
		return failedDispatch(err)
	}
	if strings.TrimSpace(resp.ProviderMessageID) == "" {
		return failedDispatch(ProviderError(d.provider.ID(), resp.StatusCode, "provider response missing message id: "+string(resp.Raw), nil))
	}
	return DispatchResult{
		Success:           true,
		ProviderMessageID: strings.TrimSpace(resp.ProviderMessageID),
		RawResponse:       cloneRaw(resp.Raw),
	}
}

// BuildProviderSendRequest maps a message to the provider payload. An empty
// attachment list stays nil so the field is omitted on the wire.
func BuildProviderSendRequest(msg Message) ProviderSendRequest {
	req := ProviderSendRequest{
		From:    strings.TrimSpace(msg.From),
		To:      normalizeAddresses(msg.To),
		CC:      normalizeAddresses(msg.CC),
		BCC:     normalizeAddresses(msg.BCC),
		ReplyTo: normalizeAddresses(msg.ReplyTo),
		Subject: msg.Subject,
		HTML:    msg.Body,
		Text:    msg.Text,
	}
	if len(msg.Attachments) > 0 {
		req.Attachments = make([]ProviderAttachment, 0, len(msg.Attachments))
		for _, attachment := range msg.Attachments {
			req.Attachments = append(req.Attachments, ProviderAttachment{
				Filename: attachment.Filename,
				Path:     attachment.Path,
			})
		}
	}
	return req
}

func failedDispatch(err error) DispatchResult {
	return DispatchResult{
		Success: false,
		Error:   describeError(err),
		Err:     err,
	}
}

func describeError(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
