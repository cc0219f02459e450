package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"ghostpass/internal/shift/models"
	id "ghostpass/pkg/domain"
	dErrors "ghostpass/pkg/domain-errors"
	"ghostpass/pkg/platform/httputil"
	"ghostpass/pkg/requestcontext"
	"ghostpass/pkg/validation"
)

// Service defines the shift operations exposed to door terminals.
type Service interface {
	StartShift(ctx context.Context, station id.StationID, operator id.OperatorID) (*models.Shift, error)
	SwitchStation(ctx context.Context, from, to id.StationID, operator id.OperatorID) (*models.Shift, error)
	EndShift(ctx context.Context, station id.StationID) (*models.Shift, error)
	ActiveShift(ctx context.Context, station id.StationID) (*models.Shift, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/shifts/start", h.handleStart)
	r.Post("/v1/shifts/switch", h.handleSwitch)
	r.Post("/v1/shifts/end", h.handleEnd)
	r.Get("/v1/stations/{stationID}/shift", h.handleActive)
}

type startRequest struct {
	StationID  string `json:"station_id" validate:"required,max=64"`
	OperatorID string `json:"operator_id" validate:"required,max=64"`
}

func (r *startRequest) Normalize() {
	r.StationID = strings.TrimSpace(r.StationID)
	r.OperatorID = strings.TrimSpace(r.OperatorID)
}

func (r *startRequest) Validate() error {
	return validation.Validate(r)
}

type switchRequest struct {
	FromStationID string `json:"from_station_id" validate:"required,max=64"`
	ToStationID   string `json:"to_station_id" validate:"required,max=64"`
	OperatorID    string `json:"operator_id" validate:"required,max=64"`
}

func (r *switchRequest) Normalize() {
	r.FromStationID = strings.TrimSpace(r.FromStationID)
	r.ToStationID = strings.TrimSpace(r.ToStationID)
	r.OperatorID = strings.TrimSpace(r.OperatorID)
}

func (r *switchRequest) Validate() error {
	return validation.Validate(r)
}

type endRequest struct {
	StationID string `json:"station_id" validate:"required,max=64"`
}

func (r *endRequest) Normalize() {
	r.StationID = strings.TrimSpace(r.StationID)
}

func (r *endRequest) Validate() error {
	return validation.Validate(r)
}

type shiftResponse struct {
	ShiftID    string     `json:"shift_id"`
	StationID  string     `json:"station_id"`
	OperatorID string     `json:"operator_id"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

func toResponse(sh *models.Shift) shiftResponse {
	return shiftResponse{
		ShiftID:    sh.ID.String(),
		StationID:  sh.StationID.String(),
		OperatorID: sh.OperatorID.String(),
		StartedAt:  sh.StartedAt,
		EndedAt:    sh.EndedAt,
	}
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[startRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}
	station, operator, err := parseContext(req.StationID, req.OperatorID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := authorizeStation(ctx, station); err != nil {
		httputil.WriteError(w, err)
		return
	}

	sh, err := h.service.StartShift(ctx, station, operator)
	if err != nil {
		h.logFailure(ctx, "failed to start shift", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(sh))
}

func (h *Handler) handleSwitch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[switchRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}
	from, operator, err := parseContext(req.FromStationID, req.OperatorID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	to, err := id.ParseStationID(req.ToStationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	// The switch is requested from the terminal the operator is moving to.
	if err := authorizeStation(ctx, to); err != nil {
		httputil.WriteError(w, err)
		return
	}

	sh, err := h.service.SwitchStation(ctx, from, to, operator)
	if err != nil {
		h.logFailure(ctx, "failed to switch station", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(sh))
}

func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[endRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}
	station, err := id.ParseStationID(req.StationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := authorizeStation(ctx, station); err != nil {
		httputil.WriteError(w, err)
		return
	}

	sh, err := h.service.EndShift(ctx, station)
	if err != nil {
		h.logFailure(ctx, "failed to end shift", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(sh))
}

func (h *Handler) handleActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	station, err := id.ParseStationID(chi.URLParam(r, "stationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sh, err := h.service.ActiveShift(ctx, station)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(sh))
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeConflict, dErrors.CodeNotFound, dErrors.CodeForbidden, dErrors.CodeBadRequest:
		return
	}
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}

func parseContext(rawStation, rawOperator string) (id.StationID, id.OperatorID, error) {
	station, err := id.ParseStationID(rawStation)
	if err != nil {
		return "", "", err
	}
	operator, err := id.ParseOperatorID(rawOperator)
	if err != nil {
		return "", "", err
	}
	return station, operator, nil
}

// authorizeStation rejects terminals acting on a station other than their
// own. Requests without an authenticated station pass (key checks disabled).
func authorizeStation(ctx context.Context, station id.StationID) error {
	caller := requestcontext.Station(ctx)
	if caller == "" || caller == station {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "terminal is not authorized for this station")
}
