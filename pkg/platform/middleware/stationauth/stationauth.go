// Package stationauth authenticates door terminals. Each terminal presents its
// station ID and a provisioned key; keys are stored only as bcrypt hashes.
package stationauth

import (
	"log/slog"
	"net/http"

	id "ghostpass/pkg/domain"
	dErrors "ghostpass/pkg/domain-errors"
	"ghostpass/pkg/platform/httputil"
	"ghostpass/pkg/requestcontext"
	"ghostpass/pkg/secrets"
)

const (
	HeaderStationID  = "X-Station-ID"
	HeaderStationKey = "X-Station-Key"
)

// KeyHashes maps station IDs to bcrypt hashes of their terminal keys.
type KeyHashes map[id.StationID]string

// Middleware rejects requests whose station headers do not match a
// provisioned key. A nil or empty key set disables the check (local dev).
func Middleware(keys KeyHashes, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if len(keys) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			station, err := id.ParseStationID(r.Header.Get(HeaderStationID))
			if err != nil {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "station credentials required"))
				return
			}
			hash, ok := keys[station]
			if !ok || secrets.Verify(r.Header.Get(HeaderStationKey), hash) != nil {
				logger.WarnContext(ctx, "station authentication failed",
					"station_id", station,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid station credentials"))
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithStation(ctx, station)))
		})
	}
}
