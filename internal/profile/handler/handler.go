package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"ghostpass/internal/profile/models"
	id "ghostpass/pkg/domain"
	"ghostpass/pkg/platform/httputil"
	"ghostpass/pkg/platform/middleware/admin"
	"ghostpass/pkg/requestcontext"
	"ghostpass/pkg/validation"
)

// Service provisions bearer profiles.
type Service interface {
	Save(ctx context.Context, p *models.Profile, c *models.ConsentFlags) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// RegisterAdmin mounts the provisioning hook used by the external profile owner.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Put("/admin/profiles/{subjectID}", h.handlePutProfile)
}

type consentRequest struct {
	Identity      bool `json:"identity"`
	SocialHandles bool `json:"social_handles"`
	IDDocument    bool `json:"id_document"`
	Payment       bool `json:"payment"`
	Health        bool `json:"health"`
}

type putProfileRequest struct {
	DisplayName      string         `json:"display_name" validate:"required,notblank,max=120"`
	MemberID         string         `json:"member_id" validate:"max=64"`
	Badges           []string       `json:"badges" validate:"max=16,dive,notblank"`
	SocialHandles    []string       `json:"social_handles" validate:"max=8,dive,notblank"`
	IDDocumentRef    string         `json:"id_document_ref" validate:"max=256"`
	PaymentLast4     string         `json:"payment_last4" validate:"omitempty,len=4,numeric"`
	BarTabEnabled    bool           `json:"bar_tab_enabled"`
	HealthStatus     string         `json:"health_status" validate:"omitempty,oneof=verified pending none"`
	HealthVerifiedAt *time.Time     `json:"health_verified_at"`
	Consent          consentRequest `json:"consent"`
}

func (r *putProfileRequest) Normalize() {
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	r.MemberID = strings.TrimSpace(r.MemberID)
	r.HealthStatus = strings.ToLower(strings.TrimSpace(r.HealthStatus))
}

func (r *putProfileRequest) Validate() error {
	return validation.Validate(r)
}

func (h *Handler) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	subject, err := id.ParseSubjectID(chi.URLParam(r, "subjectID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[putProfileRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}

	profile := &models.Profile{
		SubjectID:        subject,
		DisplayName:      req.DisplayName,
		MemberID:         req.MemberID,
		Badges:           req.Badges,
		SocialHandles:    req.SocialHandles,
		IDDocumentRef:    req.IDDocumentRef,
		PaymentLast4:     req.PaymentLast4,
		BarTabEnabled:    req.BarTabEnabled,
		HealthStatus:     models.HealthStatus(req.HealthStatus),
		HealthVerifiedAt: req.HealthVerifiedAt,
	}
	consent := &models.ConsentFlags{
		Identity:      req.Consent.Identity,
		SocialHandles: req.Consent.SocialHandles,
		IDDocument:    req.Consent.IDDocument,
		Payment:       req.Consent.Payment,
		Health:        req.Consent.Health,
	}
	if err := h.service.Save(ctx, profile, consent); err != nil {
		h.logger.ErrorContext(ctx, "failed to save profile",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "profile provisioned",
		"request_id", requestID,
		"actor_id", admin.ActorID(ctx),
	)
	w.WriteHeader(http.StatusNoContent)
}
