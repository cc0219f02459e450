package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"ghostpass/internal/platform/config"
	"ghostpass/pkg/platform/middleware/admin"
)

type AppSuite struct {
	suite.Suite
	app     *app
	subject string
}

func TestAppSuite(t *testing.T) {
	suite.Run(t, new(AppSuite))
}

func (s *AppSuite) SetupTest() {
	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "KAFKA_BROKERS",
		"GHOSTPASS_POLICY_FILE", "GHOSTPASS_STATION_KEYS_FILE"} {
		s.T().Setenv(key, "")
	}
	s.T().Setenv("GHOSTPASS_ENV", "development")
	s.T().Setenv("GHOSTPASS_ADMIN_TOKEN", "admin-secret")

	cfg, err := config.Load()
	s.Require().NoError(err)

	s.app, err = buildApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)
	s.T().Cleanup(s.app.close)

	s.subject = uuid.NewString()
}

func (s *AppSuite) call(method, path string, body any, adminCall bool) (*httptest.ResponseRecorder, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if adminCall {
		req.Header.Set(admin.HeaderToken, "admin-secret")
	}
	rec := httptest.NewRecorder()
	s.app.router.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out) //nolint:errcheck // some responses are empty
	}
	return rec, out
}

func (s *AppSuite) seedSubject(balance string) {
	rec, _ := s.call(http.MethodPut, "/admin/balances/"+s.subject, map[string]any{"balance": balance}, true)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = s.call(http.MethodPut, "/admin/profiles/"+s.subject, map[string]any{
		"display_name":  "Ana",
		"payment_last4": "4242",
		"consent":       map[string]any{"identity": true, "payment": true},
	}, true)
	s.Require().Equal(http.StatusNoContent, rec.Code, rec.Body.String())
}

func (s *AppSuite) startShift(station, operator string) {
	rec, _ := s.call(http.MethodPost, "/v1/shifts/start", map[string]any{
		"station_id": station, "operator_id": operator,
	}, false)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *AppSuite) mint(mode string) string {
	rec, out := s.call(http.MethodPost, "/v1/tokens", map[string]any{
		"subject_id": s.subject,
		"mode":       mode,
		"bundle":     map[string]any{"identity": true},
	}, false)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	payload, ok := out["payload"].(string)
	s.Require().True(ok)
	return payload
}

func (s *AppSuite) scan(token, station, operator string) (*httptest.ResponseRecorder, map[string]any) {
	return s.call(http.MethodPost, "/v1/scan", map[string]any{
		"token": token, "station_id": station, "operator_id": operator,
	}, false)
}

func (s *AppSuite) TestDoorFlowAdmitsOnceThenRejectsReplay() {
	s.seedSubject("20.00")
	s.startShift("S1", "O1")
	token := s.mint("standard")

	rec, out := s.scan(token, "S1", "O1")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal("GOOD", out["decision"])
	s.Equal("OK", out["reason"])
	profile, ok := out["profile"].(map[string]any)
	s.Require().True(ok)
	s.Equal("Ana", profile["identity"].(map[string]any)["display_name"])

	rec, _ = s.call(http.MethodPost, "/v1/stations/S1/terminal/dismiss", nil, false)
	s.Require().Equal(http.StatusNoContent, rec.Code)

	_, out = s.scan(token, "S1", "O1")
	s.Equal("NO", out["decision"])
	s.Equal("USED", out["reason"])
}

func (s *AppSuite) TestScanWithoutShiftHasNoContext() {
	s.seedSubject("20.00")
	token := s.mint("standard")

	rec, out := s.scan(token, "S9", "O1")
	s.Equal(http.StatusConflict, rec.Code)
	s.Equal("NO_CONTEXT", out["reason"])
}

func (s *AppSuite) TestLockedBalanceBlocksEntryAndLocksView() {
	s.seedSubject("1.00")
	s.startShift("S1", "O1")
	token := s.mint("incognito_master")

	_, out := s.scan(token, "S1", "O1")
	s.Equal("NO", out["decision"])
	s.Equal("LOCKED", out["reason"])

	rec, out := s.call(http.MethodPost, "/v1/views", map[string]any{"token": token}, false)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	viewToken, ok := out["view_token"].(string)
	s.Require().True(ok)

	rec, out = s.call(http.MethodGet, "/v1/views/"+viewToken, nil, false)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("locked", out["status"])
	s.Nil(out["profile"])
}

func (s *AppSuite) TestRevokedTokenIsRejected() {
	s.seedSubject("20.00")
	s.startShift("S1", "O1")
	token := s.mint("standard")

	rec, _ := s.call(http.MethodPost, "/admin/subjects/"+s.subject+"/revoke", nil, true)
	s.Require().Equal(http.StatusNoContent, rec.Code, rec.Body.String())

	_, out := s.scan(token, "S1", "O1")
	s.Equal("NO", out["decision"])
	s.Equal("MALFORMED", out["reason"])
}

func (s *AppSuite) TestReadinessWithoutBackends() {
	rec, out := s.call(http.MethodGet, "/health/ready", nil, false)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("ready", out["status"])
}
