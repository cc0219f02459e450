package handler

//go:generate mockgen -source=handler.go -destination=mocks/handler_mock.go -package=mocks Service

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"ghostpass/internal/profile/handler/mocks"
	"ghostpass/internal/profile/models"
)

type HandlerSuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	mockService *mocks.MockService
	router      http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockService = mocks.NewMockService(s.ctrl)
	r := chi.NewRouter()
	New(s.mockService, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))).RegisterAdmin(r)
	s.router = r
}

func (s *HandlerSuite) put(body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPut, "/admin/profiles/"+uuid.NewString(), strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) TestPutProfile() {
	s.mockService.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p *models.Profile, c *models.ConsentFlags) error {
			s.Equal("Ana", p.DisplayName)
			s.Equal(models.HealthVerified, p.HealthStatus)
			s.True(c.Payment)
			s.False(c.SocialHandles)
			return nil
		})

	rec := s.put(`{"display_name":" Ana ","payment_last4":"4242","health_status":"Verified","consent":{"payment":true}}`)
	s.Equal(http.StatusNoContent, rec.Code)
}

func (s *HandlerSuite) TestPutProfileRejectsFullCardNumber() {
	rec := s.put(`{"display_name":"Ana","payment_last4":"4242424242424242"}`)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(rec.Body.String(), "payment_last4")
}

func (s *HandlerSuite) TestPutProfileRequiresDisplayName() {
	rec := s.put(`{"display_name":"   "}`)
	s.Equal(http.StatusBadRequest, rec.Code)
}
