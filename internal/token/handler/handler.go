package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"ghostpass/internal/token/models"
	"ghostpass/internal/token/service"
	id "ghostpass/pkg/domain"
	dErrors "ghostpass/pkg/domain-errors"
	"ghostpass/pkg/platform/httputil"
	"ghostpass/pkg/platform/middleware/admin"
	"ghostpass/pkg/requestcontext"
	"ghostpass/pkg/validation"
)

// Service defines the token operations exposed over HTTP.
type Service interface {
	Mint(ctx context.Context, req service.MintRequest) (*service.MintResult, error)
	Revoke(ctx context.Context, subject id.SubjectID) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/tokens", h.handleMint)
}

func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/subjects/{subjectID}/revoke", h.handleRevoke)
}

type bundleRequest struct {
	Identity   bool `json:"identity"`
	Payment    bool `json:"payment"`
	Health     bool `json:"health"`
	IDDocument bool `json:"id_document"`
}

type mintRequest struct {
	SubjectID  string        `json:"subject_id" validate:"required,uuid"`
	Bundle     bundleRequest `json:"bundle"`
	Mode       string        `json:"mode" validate:"omitempty,oneof=standard incognito_master"`
	VenueID    string        `json:"venue_id" validate:"omitempty,uuid"`
	Consumable *bool         `json:"consumable"`
}

func (r *mintRequest) Normalize() {
	r.SubjectID = strings.TrimSpace(r.SubjectID)
	r.VenueID = strings.TrimSpace(r.VenueID)
	r.Mode = strings.ToLower(strings.TrimSpace(r.Mode))
	if r.Mode == "" {
		r.Mode = string(models.ModeStandard)
	}
}

func (r *mintRequest) Validate() error {
	return validation.Validate(r)
}

func (r *mintRequest) toService() (service.MintRequest, error) {
	subject, err := id.ParseSubjectID(r.SubjectID)
	if err != nil {
		return service.MintRequest{}, err
	}
	req := service.MintRequest{
		SubjectID: subject,
		Bundle: models.Bundle{
			Identity:   r.Bundle.Identity,
			Payment:    r.Bundle.Payment,
			Health:     r.Bundle.Health,
			IDDocument: r.Bundle.IDDocument,
		},
		Mode:       models.Mode(r.Mode),
		Consumable: r.Consumable,
	}
	if r.VenueID != "" {
		venue, err := id.ParseVenueID(r.VenueID)
		if err != nil {
			return service.MintRequest{}, err
		}
		req.VenueID = &venue
	}
	return req, nil
}

type mintResponse struct {
	Payload    string     `json:"payload"`
	Nonce      string     `json:"nonce"`
	Mode       string     `json:"mode"`
	Locked     bool       `json:"locked"`
	Consumable bool       `json:"consumable"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	RotateAt   *time.Time `json:"rotate_at,omitempty"`
}

func (h *Handler) handleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[mintRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}
	mintReq, err := req.toService()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.Mint(ctx, mintReq)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeInsufficientContext) {
			h.logger.ErrorContext(ctx, "failed to mint token",
				"request_id", requestID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	tok := res.Token
	httputil.WriteJSON(w, http.StatusCreated, mintResponse{
		Payload:    res.Payload,
		Nonce:      tok.Nonce.String(),
		Mode:       string(tok.Mode),
		Locked:     tok.Locked,
		Consumable: tok.Consumable,
		IssuedAt:   tok.IssuedAt,
		ExpiresAt:  tok.ExpiresAt,
		RotateAt:   res.RotateAt,
	})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, err := id.ParseSubjectID(chi.URLParam(r, "subjectID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Revoke(ctx, subject); err != nil {
		h.logger.ErrorContext(ctx, "failed to revoke tokens",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "tokens revoked",
		"request_id", requestcontext.RequestID(ctx),
		"actor_id", admin.ActorID(ctx),
	)
	w.WriteHeader(http.StatusNoContent)
}
