package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kdevda/go-mailflow/core"
)

type sendEmailRequest struct {
	From        string            `json:"from"`
	To          addressList       `json:"to"`
	CC          addressList       `json:"cc"`
	BCC         addressList       `json:"bcc"`
	ReplyTo     addressList       `json:"replyTo"`
	Subject     string            `json:"subject"`
	Body        string            `json:"body"`
	Text        string            `json:"text"`
	Attachments []core.Attachment `json:"attachments"`
}

// addressList accepts a single address or an array of addresses.
type addressList []string

func (l *addressList) UnmarshalJSON(raw []byte) error {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			*l = nil
			return nil
		}
		*l = addressList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return errors.New("address must be a string or an array of strings")
	}
	*l = many
	return nil
}

func (req sendEmailRequest) draft() core.MessageDraft {
	return core.MessageDraft{
		From:        req.From,
		To:          req.To,
		CC:          req.CC,
		BCC:         req.BCC,
		ReplyTo:     req.ReplyTo,
		Subject:     req.Subject,
		Body:        req.Body,
		Text:        req.Text,
		Attachments: req.Attachments,
	}
}

type MessageView struct {
	ID                string               `json:"id"`
	From              string               `json:"from"`
	To                []string             `json:"to"`
	CC                []string             `json:"cc,omitempty"`
	BCC               []string             `json:"bcc,omitempty"`
	ReplyTo           []string             `json:"replyTo,omitempty"`
	Subject           string               `json:"subject"`
	Status            core.MessageStatus   `json:"status"`
	ProviderMessageID string               `json:"providerMessageId,omitempty"`
	Attachments       []core.Attachment    `json:"attachments,omitempty"`
	Metadata          core.MessageMetadata `json:"metadata"`
	CreatedAt         time.Time            `json:"createdAt"`
	UpdatedAt         time.Time            `json:"updatedAt"`
}

func NewMessageView(msg core.Message) MessageView {
	return MessageView{
		ID:                msg.ID,
		From:              msg.From,
		To:                msg.To,
		CC:                msg.CC,
		BCC:               msg.BCC,
		ReplyTo:           msg.ReplyTo,
		Subject:           msg.Subject,
		Status:            msg.Status,
		ProviderMessageID: msg.ProviderMessageID(),
		Attachments:       msg.Attachments,
		Metadata:          msg.Metadata,
		CreatedAt:         msg.CreatedAt,
		UpdatedAt:         msg.UpdatedAt,
	}
}

type sendEmailResponse struct {
	Success           bool            `json:"success"`
	Message           *MessageView    `json:"message,omitempty"`
	ProviderMessageID string          `json:"providerMessageId,omitempty"`
	Persisted         bool            `json:"persisted"`
	Error             string          `json:"error,omitempty"`
	ErrorCode         string          `json:"errorCode,omitempty"`
	MessageID         string          `json:"messageId,omitempty"`
	ProviderResponse  json.RawMessage `json:"providerResponse,omitempty"`
}

type errorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// SendEmail handles POST /api/emails. A failed send still reports the
// message id and persistence flag so callers can tell "nothing happened"
// apart from "sent but untracked".
func (h *Handler) SendEmail(w http.ResponseWriter, r *http.Request) {
	var req sendEmailRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.opts.MaxSendBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:     "Invalid request body: " + err.Error(),
			ErrorCode: core.MailflowErrorBadInput,
		})
		return
	}

	result, err := h.opts.Mailer.SendEmail(r.Context(), req.draft())
	if err != nil {
		rich := core.ToServiceError(err)
		response := sendEmailResponse{
			Persisted:        result.Persisted,
			Error:            rich.Message,
			ErrorCode:        rich.TextCode,
			MessageID:        result.Message.ID,
			ProviderResponse: result.ProviderResponse,
		}
		if result.Error != "" {
			response.Error = result.Error
		}
		writeJSON(w, errorStatus(rich.Code), response)
		return
	}

	view := NewMessageView(result.Message)
	writeJSON(w, http.StatusOK, sendEmailResponse{
		Success:           true,
		Message:           &view,
		ProviderMessageID: result.ProviderMessageID,
		Persisted:         result.Persisted,
	})
}

// GetEmail handles GET /api/emails/{id}.
func (h *Handler) GetEmail(w http.ResponseWriter, r *http.Request) {
	msg, err := h.opts.Mailer.GetMessage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		rich := core.ToServiceError(err)
		writeJSON(w, errorStatus(rich.Code), errorResponse{Error: rich.Message, ErrorCode: rich.TextCode})
		return
	}
	writeJSON(w, http.StatusOK, NewMessageView(msg))
}

func errorStatus(code int) int {
	if code < http.StatusBadRequest || code > 599 {
		return http.StatusInternalServerError
	}
	return code
}
