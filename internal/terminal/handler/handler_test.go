package handler

//go:generate mockgen -source=handler.go -destination=mocks/handler_mock.go -package=mocks Service

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"ghostpass/internal/disclosure"
	"ghostpass/internal/terminal"
	"ghostpass/internal/terminal/handler/mocks"
	"ghostpass/internal/verify"
	id "ghostpass/pkg/domain"
	dErrors "ghostpass/pkg/domain-errors"
	"ghostpass/pkg/requestcontext"
)

type HandlerSuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	mockService *mocks.MockService
	router      chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockService = mocks.NewMockService(s.ctrl)
	h := New(s.mockService, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *HandlerSuite) post(path, body string, station id.StationID) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if station != "" {
		req = req.WithContext(requestcontext.WithStation(req.Context(), station))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) TestScanGood() {
	nonce := id.NewNonce()
	s.mockService.EXPECT().Scan(gomock.Any(), verify.Request{TokenBytes: "GP1.abc", StationID: "S1", OperatorID: "O1"}).
		Return(&verify.Result{
			Decision: verify.DecisionGood,
			Reason:   verify.ReasonOK,
			Message:  "Admit",
			Nonce:    &nonce,
			Profile: &disclosure.RedactedProfile{
				Payment: &disclosure.PaymentView{Method: "•••• 4242"},
			},
			ScannedAt: time.Date(2026, 5, 1, 22, 0, 0, 0, time.UTC),
		}, nil)

	rec := s.post("/v1/scan", `{"token":"GP1.abc","station_id":"S1","operator_id":"O1"}`, "S1")
	s.Require().Equal(http.StatusOK, rec.Code)

	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("GOOD", body["decision"])
	s.Equal("OK", body["reason"])
	s.Equal("Admit", body["message"])
	s.Equal(nonce.String(), body["nonce"])
	payment := body["profile"].(map[string]any)["payment"].(map[string]any)
	s.Equal("•••• 4242", payment["method"])
}

func (s *HandlerSuite) TestScanNoIsStill200() {
	s.mockService.EXPECT().Scan(gomock.Any(), gomock.Any()).
		Return(&verify.Result{Decision: verify.DecisionNo, Reason: verify.ReasonUsed, Message: "Pass already used."}, nil)

	rec := s.post("/v1/scan", `{"token":"GP1.abc","station_id":"S1","operator_id":"O1"}`, "")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"reason":"USED"`)
	s.NotContains(rec.Body.String(), "profile")
}

func (s *HandlerSuite) TestScanNoContext() {
	s.mockService.EXPECT().Scan(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeNoContext, "station has no active shift"))

	rec := s.post("/v1/scan", `{"token":"GP1.abc","station_id":"S1","operator_id":"O1"}`, "")
	s.Require().Equal(http.StatusConflict, rec.Code)

	var body scanResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("NO", body.Decision)
	s.Equal("NO_CONTEXT", body.Reason)
	s.NotEmpty(body.Message)
}

func (s *HandlerSuite) TestScanRequiresStationAndOperator() {
	rec := s.post("/v1/scan", `{"token":"GP1.abc"}`, "")
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestScanFromAnotherStationsTerminal() {
	rec := s.post("/v1/scan", `{"token":"GP1.abc","station_id":"S1","operator_id":"O1"}`, "S2")
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *HandlerSuite) TestTerminalState() {
	s.mockService.EXPECT().State(id.StationID("S1")).
		Return(terminal.StateResult, &verify.Result{Decision: verify.DecisionReview, Reason: verify.ReasonHealthRequired})

	req := httptest.NewRequest(http.MethodGet, "/v1/stations/S1/terminal", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `"state":"result"`)
	s.Contains(rec.Body.String(), `"decision":"REVIEW"`)
}

func (s *HandlerSuite) TestDismiss() {
	s.mockService.EXPECT().Dismiss(id.StationID("S1")).Return(nil)

	rec := s.post("/v1/stations/S1/terminal/dismiss", "", "S1")
	s.Equal(http.StatusNoContent, rec.Code)
}
