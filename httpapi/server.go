package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/kdevda/go-mailflow/core"
)

const (
	WebhookPath = "/api/webhooks/{provider}"
	EmailsPath  = "/api/emails"
)

// Mailer is the application surface used by the email routes.
type Mailer interface {
	SendEmail(ctx context.Context, draft core.MessageDraft) (core.SendResult, error)
	GetMessage(ctx context.Context, id string) (core.Message, error)
}

type HealthCheck func(ctx context.Context) error

type Options struct {
	Webhooks core.WebhookHandler
	Mailer   Mailer
	Metrics  http.Handler
	Health   HealthCheck
	Logger   core.Logger
	// MaxWebhookBodyBytes bounds the read; the webhook handler owns the
	// oversized-payload response.
	MaxWebhookBodyBytes int64
	MaxSendBodyBytes    int64
	RequestTimeout      time.Duration
}

type Handler struct {
	opts   Options
	logger core.Logger
}

func NewHandler(opts Options) *Handler {
	if opts.MaxWebhookBodyBytes <= 0 {
		opts.MaxWebhookBodyBytes = core.DefaultMaxWebhookBodyBytes
	}
	if opts.MaxSendBodyBytes <= 0 {
		opts.MaxSendBodyBytes = 10 << 20
	}
	logger := opts.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	return &Handler{opts: opts, logger: logger}
}

// NewRouter builds a chi router with every route mounted.
func NewRouter(opts Options) chi.Router {
	h := NewHandler(opts)
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if h.opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(h.opts.RequestTimeout))
	}
	r.Use(h.requestLogger)
	h.Routes(r)
	return r
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.Healthz)
	if h.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.opts.Metrics)
	}
	if h.opts.Webhooks != nil {
		r.Post(WebhookPath, h.Webhook)
	}
	if h.opts.Mailer != nil {
		r.Route(EmailsPath, func(r chi.Router) {
			r.Post("/", h.SendEmail)
			r.Get("/{id}", h.GetEmail)
		})
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.opts.Health != nil {
		if err := h.opts.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.WithContext(r.Context()).Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(startedAt).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
