package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"ghostpass/internal/disclosure"
	"ghostpass/internal/terminal"
	"ghostpass/internal/verify"
	id "ghostpass/pkg/domain"
	dErrors "ghostpass/pkg/domain-errors"
	"ghostpass/pkg/platform/httputil"
	"ghostpass/pkg/requestcontext"
	"ghostpass/pkg/validation"
)

// Service defines the door terminal operations exposed over HTTP.
type Service interface {
	Scan(ctx context.Context, req verify.Request) (*verify.Result, error)
	Dismiss(station id.StationID) error
	State(station id.StationID) (terminal.State, *verify.Result)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/scan", h.handleScan)
	r.Get("/v1/stations/{stationID}/terminal", h.handleState)
	r.Post("/v1/stations/{stationID}/terminal/dismiss", h.handleDismiss)
}

type scanRequest struct {
	Token      string `json:"token" validate:"max=2048"`
	StationID  string `json:"station_id" validate:"required,max=64"`
	OperatorID string `json:"operator_id" validate:"required,max=64"`
}

func (r *scanRequest) Normalize() {
	r.Token = strings.TrimSpace(r.Token)
	r.StationID = strings.TrimSpace(r.StationID)
	r.OperatorID = strings.TrimSpace(r.OperatorID)
}

func (r *scanRequest) Validate() error {
	return validation.Validate(r)
}

type scanResponse struct {
	Decision  string                      `json:"decision"`
	Reason    string                      `json:"reason"`
	Profile   *disclosure.RedactedProfile `json:"profile,omitempty"`
	Message   string                      `json:"message"`
	Nonce     string                      `json:"nonce,omitempty"`
	ScannedAt *time.Time                  `json:"scanned_at,omitempty"`
}

func toResponse(res *verify.Result) scanResponse {
	out := scanResponse{
		Decision: string(res.Decision),
		Reason:   string(res.Reason),
		Profile:  res.Profile,
		Message:  res.Message,
	}
	if res.Nonce != nil {
		out.Nonce = res.Nonce.String()
	}
	if !res.ScannedAt.IsZero() {
		at := res.ScannedAt
		out.ScannedAt = &at
	}
	return out
}

type stateResponse struct {
	State  string        `json:"state"`
	Result *scanResponse `json:"result,omitempty"`
}

// handleScan answers 200 for every decided scan, NO included. An empty token
// still reaches the engine so the attempt is audited as MALFORMED.
func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[scanRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}
	station, err := id.ParseStationID(req.StationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	operator, err := id.ParseOperatorID(req.OperatorID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if caller := requestcontext.Station(ctx); caller != "" && caller != station {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "terminal is not authorized for this station"))
		return
	}

	res, err := h.service.Scan(ctx, verify.Request{TokenBytes: req.Token, StationID: station, OperatorID: operator})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNoContext) {
			httputil.WriteJSON(w, http.StatusConflict, scanResponse{
				Decision: string(verify.DecisionNo),
				Reason:   terminal.ReasonNoContext,
				Message:  "No operator on shift at this station. Start a shift before scanning.",
			})
			return
		}
		h.logger.ErrorContext(ctx, "scan failed",
			"request_id", requestcontext.RequestID(ctx),
			"station_id", station,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(res))
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	station, err := id.ParseStationID(chi.URLParam(r, "stationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	state, last := h.service.State(station)
	out := stateResponse{State: string(state)}
	if last != nil {
		res := toResponse(last)
		out.Result = &res
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleDismiss(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	station, err := id.ParseStationID(chi.URLParam(r, "stationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if caller := requestcontext.Station(ctx); caller != "" && caller != station {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "terminal is not authorized for this station"))
		return
	}
	if err := h.service.Dismiss(station); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "terminal is mid-scan"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
