package webhooks

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kdevda/go-mailflow/core"
)

const (
	OutcomeProcessed        = "processed"
	OutcomeUnmatched        = "unmatched"
	OutcomeInvalidSignature = "invalid_signature"
	OutcomeMalformed        = "malformed"
	OutcomeFailed           = "failed"
)

type EventProcessor interface {
	ProcessEvent(ctx context.Context, event core.WebhookEvent) (core.ProcessResult, error)
}

type SecretResolver interface {
	Resolve(ctx context.Context, key string) core.Resolution
}

// Endpoint verifies one provider's callbacks and folds them into messages.
type Endpoint struct {
	Template     ProviderTemplate
	Secrets      SecretResolver
	Processor    EventProcessor
	Logger       core.Logger
	Metrics      core.MetricsRecorder
	MaxBodyBytes int64
	Now          func() time.Time
}

func NewEndpoint(template ProviderTemplate, secrets SecretResolver, processor EventProcessor) *Endpoint {
	return &Endpoint{
		Template:     template,
		Secrets:      secrets,
		Processor:    processor,
		Metrics:      core.NopMetricsRecorder{},
		MaxBodyBytes: core.DefaultMaxWebhookBodyBytes,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle returns an error only alongside a rejecting result (401 or 400).
// Every other path is acknowledged with 200.
func (e *Endpoint) Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if e == nil || e.Processor == nil {
		return e.finish(ctx, OutcomeFailed, core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Message:    "Webhook received but processing is unavailable",
		}), nil
	}
	providerID := strings.TrimSpace(req.ProviderID)
	if providerID == "" {
		providerID = e.Template.ProviderID
	}

	// Size is checked before the signature so a signed oversized body is a 400.
	if e.MaxBodyBytes > 0 && int64(len(req.Body)) > e.MaxBodyBytes {
		bodyErr := core.MalformedPayloadError("Webhook payload too large", map[string]any{"limit": e.MaxBodyBytes})
		return e.finish(ctx, OutcomeMalformed, core.InboundResult{
			StatusCode: http.StatusBadRequest,
			Error:      bodyErr.Message,
		}), bodyErr
	}

	var resolution core.Resolution
	if e.Secrets != nil {
		resolution = e.Secrets.Resolve(ctx, e.Template.SecretKey)
	}
	if resolution.Found() {
		verifier := e.Template.Verifier(resolution.Value)
		if err := verifier.Verify(ctx, req); err != nil {
			e.log(ctx, "warn", "webhook signature verification failed", map[string]any{
				"provider_id": providerID,
				"error":       err.Error(),
			})
			sigErr := core.SignatureInvalidError()
			return e.finish(ctx, OutcomeInvalidSignature, core.InboundResult{
				Accepted:   false,
				StatusCode: http.StatusUnauthorized,
				Error:      sigErr.Message,
			}), sigErr
		}
	} else {
		e.log(ctx, "warn", "webhook secret not configured, signature verification skipped", map[string]any{
			"provider_id": providerID,
			"secret_key":  e.Template.SecretKey,
		})
	}

	now := time.Now().UTC()
	if e.Now != nil {
		now = e.Now()
	}
	event, err := core.DecodeWebhookEvent(providerID, req.Body, now)
	if err != nil {
		message := "Invalid webhook payload"
		if rich := core.ToServiceError(err); rich != nil {
			message = rich.Message
		}
		return e.finish(ctx, OutcomeMalformed, core.InboundResult{
			StatusCode: http.StatusBadRequest,
			Error:      message,
		}), err
	}

	fields := map[string]any{
		"provider_id":         providerID,
		"event_type":          event.Type,
		"provider_message_id": event.ProviderMessageID,
	}
	processed, err := e.Processor.ProcessEvent(ctx, event)
	if err != nil {
		fields["error"] = err.Error()
		e.log(ctx, "error", "webhook processing failed, acknowledging", fields)
		return e.finish(ctx, OutcomeFailed, core.InboundResult{
			Accepted:   false,
			StatusCode: http.StatusOK,
			Message:    "Webhook received but processing failed",
			Metadata:   map[string]any{"event_type": event.Type},
		}), nil
	}
	if !processed.Matched {
		e.log(ctx, "info", "webhook references unknown message", fields)
		return e.finish(ctx, OutcomeUnmatched, core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Message:    "Message not found, event acknowledged",
			Metadata:   map[string]any{"event_type": event.Type},
		}), nil
	}

	fields["message_id"] = processed.Message.ID
	fields["status"] = string(processed.Message.Status)
	e.log(ctx, "debug", "webhook event applied", fields)
	return e.finish(ctx, OutcomeProcessed, core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Message:    "Webhook processed",
		Metadata: map[string]any{
			"event_type": event.Type,
			"message_id": processed.Message.ID,
			"status":     string(processed.Message.Status),
		},
	}), nil
}

func (e *Endpoint) finish(ctx context.Context, outcome string, result core.InboundResult) core.InboundResult {
	if e != nil && e.Metrics != nil {
		e.Metrics.IncCounter(ctx, core.MetricWebhookTotal, 1, map[string]string{
			"provider": e.Template.ProviderID,
			"outcome":  outcome,
		})
	}
	return result
}

func (e *Endpoint) log(ctx context.Context, level string, message string, fields map[string]any) {
	if e == nil || e.Logger == nil {
		return
	}
	core.LogWithLevel(ctx, e.Logger, level, message, fields)
}
