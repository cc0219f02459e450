package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"ghostpass/internal/disclosure"
	"ghostpass/internal/disclosure/view"
	dErrors "ghostpass/pkg/domain-errors"
	"ghostpass/pkg/platform/httputil"
	"ghostpass/pkg/requestcontext"
	"ghostpass/pkg/validation"
)

// Service defines the browser view operations exposed over HTTP.
type Service interface {
	Open(ctx context.Context, payload string) (*view.Session, error)
	Render(ctx context.Context, viewToken string) (*view.Rendered, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/views", h.handleOpen)
	r.Get("/v1/views/{viewToken}", h.handleRender)
}

type openRequest struct {
	Token string `json:"token" validate:"required,max=2048"`
}

func (r *openRequest) Normalize() {
	r.Token = strings.TrimSpace(r.Token)
}

func (r *openRequest) Validate() error {
	return validation.Validate(r)
}

type openResponse struct {
	ViewToken string    `json:"view_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type renderResponse struct {
	Status        string                      `json:"status"`
	Profile       *disclosure.RedactedProfile `json:"profile,omitempty"`
	ViewExpiresAt *time.Time                  `json:"view_expires_at,omitempty"`
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeAndPrepare[openRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}
	session, err := h.service.Open(ctx, req.Token)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeAuditWriteFailure) || dErrors.HasCode(err, dErrors.CodeUnavailable) {
			h.logger.ErrorContext(ctx, "failed to open view",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, openResponse{
		ViewToken: session.Token,
		ExpiresAt: session.ExpiresAt,
	})
}

func (h *Handler) handleRender(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rendered, err := h.service.Render(ctx, chi.URLParam(r, "viewToken"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res := renderResponse{Status: string(rendered.Status), Profile: rendered.Profile}
	if !rendered.ExpiresAt.IsZero() {
		res.ViewExpiresAt = &rendered.ExpiresAt
	}
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, res)
}
