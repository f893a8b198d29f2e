package core

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var statusRank = map[MessageStatus]int{
	MessageStatusPending:   0,
	MessageStatusSending:   1,
	MessageStatusSent:      2,
	MessageStatusDelayed:   3,
	MessageStatusDelivered: 4,
}

var eventStatus = map[string]MessageStatus{
	EventEmailSent:            MessageStatusSent,
	EventEmailDelivered:       MessageStatusDelivered,
	EventEmailDeliveryDelayed: MessageStatusDelayed,
	EventEmailComplained:      MessageStatusComplained,
	EventEmailBounced:         MessageStatusBounced,
}

// CanTransition reports whether a delivery event may move status from one
// value to another. Bounced, complained and failed never change; delivered
// may still become bounced or complained.
func CanTransition(from MessageStatus, to MessageStatus) bool {
	if from == to || from.IsFinal() {
		return false
	}
	if to == MessageStatusBounced || to == MessageStatusComplained {
		return true
	}
	fromRank, okFrom := statusRank[from]
	toRank, okTo := statusRank[to]
	if !okFrom || !okTo {
		return false
	}
	return toRank > fromRank
}

type ApplyResult struct {
	PreviousStatus MessageStatus
	Status         MessageStatus
	Changed        bool
	// Suppressed is set when the event maps to a status the message may no
	// longer move to. The event is kept in the generic events history.
	Suppressed bool
}

type eventParty struct {
	IPAddress string `json:"ipAddress"`
	UserAgent string `json:"userAgent"`
	Link      string `json:"link"`
	URL       string `json:"url"`
	Timestamp string `json:"timestamp"`
}

type eventPayload struct {
	ID        string `json:"id"`
	EmailID   string `json:"email_id"`
	IPAddress string `json:"ipAddress"`
	UserAgent string `json:"userAgent"`
	URL       string `json:"url"`
	Bounce    *struct {
		Type    string `json:"type"`
		SubType string `json:"subType"`
		Reason  string `json:"reason"`
		Message string `json:"message"`
	} `json:"bounce"`
	Open  *eventParty `json:"open"`
	Click *eventParty `json:"click"`
}

// ApplyEvent folds one delivery event into msg. It is pure: the caller owns
// persistence and concurrency.
func ApplyEvent(msg *Message, event WebhookEvent) ApplyResult {
	result := ApplyResult{}
	if msg == nil {
		return result
	}
	result.PreviousStatus = msg.Status
	result.Status = msg.Status

	at := event.Timestamp()
	payload := eventPayload{}
	if len(event.Data) > 0 {
		_ = json.Unmarshal(event.Data, &payload)
	}
	meta := &msg.Metadata

	if target, ok := eventStatus[event.Type]; ok {
		switch {
		case msg.Status == target:
			stampEvent(meta, event.Type, at)
		case CanTransition(msg.Status, target):
			msg.Status = target
			result.Status = target
			result.Changed = true
			stampEvent(meta, event.Type, at)
		default:
			result.Suppressed = true
			meta.Events = append(meta.Events, GenericEvent{Type: event.Type, Timestamp: at, Data: cloneRaw(event.Data)})
		}
		if event.Type == EventEmailBounced && !result.Suppressed {
			applyBounce(meta, payload)
		}
	} else {
		switch event.Type {
		case EventEmailOpened:
			party := partyFrom(payload, payload.Open)
			meta.OpenEvents = append(meta.OpenEvents, OpenEvent{
				Timestamp: partyTime(party, at),
				IPAddress: party.IPAddress,
				UserAgent: party.UserAgent,
			})
		case EventEmailClicked:
			party := partyFrom(payload, payload.Click)
			url := party.Link
			if url == "" {
				url = party.URL
			}
			meta.ClickEvents = append(meta.ClickEvents, ClickEvent{
				Timestamp: partyTime(party, at),
				IPAddress: party.IPAddress,
				UserAgent: party.UserAgent,
				URL:       url,
			})
		default:
			meta.Events = append(meta.Events, GenericEvent{Type: event.Type, Timestamp: at, Data: cloneRaw(event.Data)})
		}
	}

	meta.LastEvent = &LastEvent{Type: event.Type, Timestamp: at}
	return result
}

func applyBounce(meta *MessageMetadata, payload eventPayload) {
	if meta.BounceType != "" && meta.BounceReason != "" {
		return
	}
	bounceType, bounceReason := "", ""
	if payload.Bounce != nil {
		bounceType = strings.TrimSpace(payload.Bounce.Type)
		bounceReason = strings.TrimSpace(payload.Bounce.Reason)
		if bounceReason == "" {
			bounceReason = strings.TrimSpace(payload.Bounce.Message)
		}
	}
	if bounceType == "" {
		bounceType = UnknownBounceValue
	}
	if bounceReason == "" {
		bounceReason = UnknownBounceValue
	}
	if meta.BounceType == "" {
		meta.BounceType = bounceType
	}
	if meta.BounceReason == "" {
		meta.BounceReason = bounceReason
	}
}

func eventTimestampField(meta *MessageMetadata, eventType string) **time.Time {
	switch eventType {
	case EventEmailSent:
		return &meta.SentAt
	case EventEmailDelivered:
		return &meta.DeliveredAt
	case EventEmailDeliveryDelayed:
		return &meta.DelayedAt
	case EventEmailComplained:
		return &meta.ComplainedAt
	case EventEmailBounced:
		return &meta.BouncedAt
	default:
		return nil
	}
}

// stampEvent records the first time of each status event. The provider's
// email.sent time replaces the local dispatch stamp once.
func stampEvent(meta *MessageMetadata, eventType string, at time.Time) {
	if eventType == EventEmailSent && meta.SentAt != nil && meta.DispatchedAt != nil && meta.SentAt.Equal(*meta.DispatchedAt) {
		value := at.UTC()
		meta.SentAt = &value
		return
	}
	setOnce(eventTimestampField(meta, eventType), at)
}

func setOnce(field **time.Time, at time.Time) {
	if field == nil || *field != nil {
		return
	}
	value := at.UTC()
	*field = &value
}

func partyFrom(payload eventPayload, nested *eventParty) eventParty {
	party := eventParty{}
	if nested != nil {
		party = *nested
	}
	if party.IPAddress == "" {
		party.IPAddress = payload.IPAddress
	}
	if party.UserAgent == "" {
		party.UserAgent = payload.UserAgent
	}
	if party.URL == "" {
		party.URL = payload.URL
	}
	return party
}

func partyTime(party eventParty, fallback time.Time) time.Time {
	if party.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, party.Timestamp); err == nil {
			return parsed.UTC()
		}
	}
	return fallback
}

type ProcessResult struct {
	Matched bool
	Message Message
	Apply   ApplyResult
}

// EventProcessor locates the message for an event and applies it through an
// atomic store update.
type EventProcessor struct {
	store MessageStore
}

func NewEventProcessor(store MessageStore) *EventProcessor {
	return &EventProcessor{store: store}
}

// Process returns Matched=false without error when no message carries the
// provider message id.
func (p *EventProcessor) Process(ctx context.Context, event WebhookEvent) (ProcessResult, error) {
	if p == nil || p.store == nil {
		return ProcessResult{}, errors.New("core: message store is required")
	}
	providerMessageID := strings.TrimSpace(event.ProviderMessageID)
	if providerMessageID == "" {
		return ProcessResult{}, MalformedPayloadError("Missing email ID in webhook data", map[string]any{"field": "data.id"})
	}

	found, err := p.store.FindByProviderMessageID(ctx, providerMessageID)
	if err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			return ProcessResult{Matched: false}, nil
		}
		return ProcessResult{}, PersistenceError("find message by provider id", err)
	}

	var applied ApplyResult
	updated, err := p.store.Update(ctx, found.ID, func(msg *Message) error {
		applied = ApplyEvent(msg, event)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			return ProcessResult{Matched: false}, nil
		}
		return ProcessResult{}, PersistenceError("apply delivery event", err)
	}
	return ProcessResult{Matched: true, Message: updated, Apply: applied}, nil
}

// DecodeWebhookEvent extracts type, data, and provider message id from a raw
// provider body.
func DecodeWebhookEvent(providerID string, body []byte, receivedAt time.Time) (WebhookEvent, error) {
	var envelope struct {
		Type      string          `json:"type"`
		CreatedAt string          `json:"created_at"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return WebhookEvent{}, MalformedPayloadError("Invalid webhook payload", map[string]any{"error": err.Error()})
	}
	data := strings.TrimSpace(string(envelope.Data))
	if strings.TrimSpace(envelope.Type) == "" || data == "" || data == "null" {
		return WebhookEvent{}, MalformedPayloadError("Invalid webhook payload", map[string]any{"field": "type,data"})
	}
	payload := eventPayload{}
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return WebhookEvent{}, MalformedPayloadError("Invalid webhook payload", map[string]any{"field": "data", "error": err.Error()})
	}
	id := strings.TrimSpace(payload.ID)
	if id == "" {
		id = strings.TrimSpace(payload.EmailID)
	}
	if id == "" {
		return WebhookEvent{}, MalformedPayloadError("Missing email ID in webhook data", map[string]any{"field": "data.id"})
	}

	event := WebhookEvent{
		ProviderID:        providerID,
		Type:              strings.TrimSpace(envelope.Type),
		ProviderMessageID: id,
		Data:              cloneRaw(envelope.Data),
		ReceivedAt:        receivedAt.UTC(),
	}
	if envelope.CreatedAt != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, envelope.CreatedAt); err == nil {
			event.OccurredAt = parsed.UTC()
		}
	}
	return event, nil
}
