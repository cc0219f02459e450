package admin

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var actor string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor = ActorID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	send := func(expected, token string) int {
		req := httptest.NewRequest(http.MethodPut, "/admin/balances/x", nil)
		req.Header.Set(HeaderToken, token)
		req.Header.Set(HeaderActorID, "wallet-service")
		rec := httptest.NewRecorder()
		RequireToken(expected, logger)(next).ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, send("s3cret", "s3cret"))
	assert.Equal(t, "wallet-service", actor)
	assert.Equal(t, http.StatusUnauthorized, send("s3cret", "guess"))
	assert.Equal(t, http.StatusUnauthorized, send("", ""), "empty expected token disables the route")
}
