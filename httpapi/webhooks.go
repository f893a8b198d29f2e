package httpapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kdevda/go-mailflow/core"
)

type webhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Webhook hands the raw body to the provider router untouched; signatures
// are computed over the exact bytes received.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	providerID := strings.TrimSpace(chi.URLParam(r, "provider"))
	body, err := io.ReadAll(io.LimitReader(r.Body, h.opts.MaxWebhookBodyBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, webhookResponse{Error: "Unable to read request body"})
		return
	}

	result, err := h.opts.Webhooks.Handle(r.Context(), core.InboundRequest{
		ProviderID: providerID,
		Headers:    flattenHeaders(r.Header),
		Body:       body,
		Metadata: map[string]any{
			"remote_addr": r.RemoteAddr,
			"path":        r.URL.Path,
		},
	})
	status := result.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	if err != nil && status == http.StatusOK {
		status = errorStatus(core.ToServiceError(err).Code)
	}

	if result.Error != "" || status >= http.StatusBadRequest {
		message := result.Error
		if message == "" && err != nil {
			message = core.ToServiceError(err).Message
		}
		writeJSON(w, status, webhookResponse{Error: message})
		return
	}
	writeJSON(w, status, webhookResponse{Success: result.Accepted, Message: result.Message})
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			continue
		}
		flat[key] = values[0]
	}
	return flat
}
