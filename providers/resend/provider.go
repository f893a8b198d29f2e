package resend

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kdevda/go-mailflow/core"
	"github.com/kdevda/go-mailflow/transport"
)

const (
	ProviderID     = "resend"
	DefaultBaseURL = core.DefaultProviderBaseURL
	emailsPath     = "/emails"
)

type Config struct {
	BaseURL string
	// Timeout applies to the HTTP round trip only. The dispatcher carries its
	// own deadline through the context.
	Timeout time.Duration
}

type Provider struct {
	baseURL string
	timeout time.Duration
	adapter *transport.RESTAdapter
}

func New(cfg Config, adapter *transport.RESTAdapter) *Provider {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if adapter == nil {
		adapter = transport.NewRESTAdapter(nil)
	}
	return &Provider{baseURL: baseURL, timeout: cfg.Timeout, adapter: adapter}
}

func (p *Provider) ID() string {
	return ProviderID
}

func (p *Provider) BaseURL() string {
	if p == nil {
		return ""
	}
	return p.baseURL
}

type sendPayload struct {
	From        string              `json:"from"`
	To          []string            `json:"to"`
	Subject     string              `json:"subject"`
	HTML        string              `json:"html,omitempty"`
	Text        string              `json:"text,omitempty"`
	CC          []string            `json:"cc,omitempty"`
	BCC         []string            `json:"bcc,omitempty"`
	ReplyTo     []string            `json:"reply_to,omitempty"`
	Attachments []attachmentPayload `json:"attachments,omitempty"`
}

type attachmentPayload struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

type sendResponse struct {
	ID string `json:"id"`
}

func (p *Provider) Send(ctx context.Context, req core.ProviderSendRequest) (core.ProviderSendResponse, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return core.ProviderSendResponse{}, core.ProviderError(ProviderID, 0, "", ErrMissingAPIKey)
	}
	if len(req.To) == 0 {
		return core.ProviderSendResponse{}, core.ProviderError(ProviderID, 0, "", ErrMissingRecipients)
	}

	httpReq, err := transport.NewJSONRequest(http.MethodPost, p.baseURL+emailsPath, buildPayload(req))
	if err != nil {
		return core.ProviderSendResponse{}, core.ProviderError(ProviderID, 0, "", err)
	}
	httpReq.Headers["Authorization"] = "Bearer " + strings.TrimSpace(req.APIKey)
	httpReq.Timeout = p.timeout

	res, err := p.adapter.Do(ctx, httpReq)
	if err != nil {
		return core.ProviderSendResponse{}, core.ProviderError(ProviderID, 0, "", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return core.ProviderSendResponse{}, core.ProviderError(ProviderID, res.StatusCode, describeFailure(res), nil)
	}

	var decoded sendResponse
	if err := json.Unmarshal(res.Body, &decoded); err != nil {
		return core.ProviderSendResponse{}, core.ProviderError(ProviderID, res.StatusCode, "resend: decode response", err)
	}
	if strings.TrimSpace(decoded.ID) == "" {
		return core.ProviderSendResponse{}, core.ProviderError(ProviderID, res.StatusCode, "", ErrMissingMessageID)
	}
	return core.ProviderSendResponse{
		ProviderMessageID: decoded.ID,
		StatusCode:        res.StatusCode,
		Raw:               json.RawMessage(append([]byte(nil), res.Body...)),
	}, nil
}

func buildPayload(req core.ProviderSendRequest) sendPayload {
	payload := sendPayload{
		From:    req.From,
		To:      req.To,
		Subject: req.Subject,
		HTML:    req.HTML,
		Text:    req.Text,
		CC:      req.CC,
		BCC:     req.BCC,
		ReplyTo: req.ReplyTo,
	}
	if len(req.Attachments) > 0 {
		payload.Attachments = make([]attachmentPayload, 0, len(req.Attachments))
		for _, attachment := range req.Attachments {
			payload.Attachments = append(payload.Attachments, attachmentPayload{
				Filename: attachment.Filename,
				Path:     attachment.Path,
			})
		}
	}
	return payload
}

// describeFailure keeps the provider body verbatim so callers see exactly
// what Resend reported.
func describeFailure(res transport.Response) string {
	body := strings.TrimSpace(string(res.Body))
	if body == "" {
		return http.StatusText(res.StatusCode)
	}
	return body
}
