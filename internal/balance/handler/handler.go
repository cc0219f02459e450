package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"ghostpass/internal/balance/models"
	"ghostpass/internal/balance/service"
	id "ghostpass/pkg/domain"
	dErrors "ghostpass/pkg/domain-errors"
	"ghostpass/pkg/platform/httputil"
	"ghostpass/pkg/platform/middleware/admin"
	"ghostpass/pkg/requestcontext"
)

const heartbeatInterval = 15 * time.Second

// Service defines the balance operations exposed over HTTP.
type Service interface {
	Get(ctx context.Context, subject id.SubjectID) (*models.Gate, error)
	SetBalance(ctx context.Context, req service.SetBalanceRequest) (*models.Gate, error)
	Subscribe(ctx context.Context, subject id.SubjectID) (<-chan models.Change, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// RegisterAdmin mounts the collaborator write hook. The caller wraps r with
// the admin token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Put("/admin/balances/{subjectID}", h.handleSetBalance)
}

// RegisterStream mounts the bearer display's change stream.
func (h *Handler) RegisterStream(r chi.Router) {
	r.Get("/v1/subjects/{subjectID}/balance/events", h.handleStream)
}

type setBalanceRequest struct {
	Balance       *decimal.Decimal `json:"balance" validate:"required"`
	LockThreshold *decimal.Decimal `json:"lock_threshold,omitempty"`
}

func (r *setBalanceRequest) Validate() error {
	if r.Balance == nil {
		return dErrors.New(dErrors.CodeValidation, "balance is required")
	}
	return nil
}

type gateResponse struct {
	SubjectID     string    `json:"subject_id"`
	Balance       string    `json:"balance"`
	LockThreshold string    `json:"lock_threshold"`
	Locked        bool      `json:"locked"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toGateResponse(g *models.Gate) gateResponse {
	return gateResponse{
		SubjectID:     g.SubjectID.String(),
		Balance:       g.Balance.StringFixed(2),
		LockThreshold: g.LockThreshold.StringFixed(2),
		Locked:        g.IsLocked(),
		UpdatedAt:     g.UpdatedAt,
	}
}

func (h *Handler) handleSetBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	subject, err := id.ParseSubjectID(chi.URLParam(r, "subjectID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[setBalanceRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}

	gate, err := h.service.SetBalance(ctx, service.SetBalanceRequest{
		SubjectID:     subject,
		Balance:       *req.Balance,
		LockThreshold: req.LockThreshold,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to set balance",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "balance updated",
		"request_id", requestID,
		"actor_id", admin.ActorID(ctx),
		"locked", gate.IsLocked(),
	)
	httputil.WriteJSON(w, http.StatusOK, toGateResponse(gate))
}

// handleStream writes one SSE "balance" event per gate change. The current
// gate, if any, is sent first so a fresh display does not wait for a write.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subject, err := id.ParseSubjectID(chi.URLParam(r, "subjectID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "streaming unsupported"))
		return
	}

	changes, err := h.service.Subscribe(ctx, subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if gate, err := h.service.Get(ctx, subject); err == nil {
		h.writeEvent(ctx, w, models.ChangeFor(gate))
	}
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprint(w, ": keepalive\n\n") //nolint:errcheck // client gone is handled by ctx
			flusher.Flush()
		case change, open := <-changes:
			if !open {
				return
			}
			h.writeEvent(ctx, w, change)
			flusher.Flush()
		}
	}
}

func (h *Handler) writeEvent(ctx context.Context, w http.ResponseWriter, change models.Change) {
	data, err := json.Marshal(change)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to marshal balance change", "error", err)
		return
	}
	_, _ = fmt.Fprintf(w, "event: balance\ndata: %s\n\n", data) //nolint:errcheck // client gone is handled by ctx
}
