// Package httptransport assembles the public HTTP surface from the module handlers.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ghostpass/pkg/platform/middleware/admin"
	"ghostpass/pkg/platform/middleware/metadata"
	"ghostpass/pkg/platform/middleware/request"
	"ghostpass/pkg/platform/middleware/requesttime"
	"ghostpass/pkg/platform/middleware/stationauth"
)

const maxBodyBytes = 16 << 10

// PublicRoutes are mounted without terminal or admin authentication.
type PublicRoutes interface {
	Register(r chi.Router)
}

// StreamRoutes serve long-lived responses and skip the JSON content-type check.
type StreamRoutes interface {
	RegisterStream(r chi.Router)
}

// AdminRoutes are mounted behind the admin token.
type AdminRoutes interface {
	RegisterAdmin(r chi.Router)
}

type TokenRoutes interface {
	PublicRoutes
	AdminRoutes
}

type BalanceRoutes interface {
	StreamRoutes
	AdminRoutes
}

// Deps carries everything the router mounts. Nil fields are skipped.
type Deps struct {
	Tokens    TokenRoutes
	Views     PublicRoutes
	Balances  BalanceRoutes
	Profiles  AdminRoutes
	Shifts    PublicRoutes
	Terminals PublicRoutes
	Health    PublicRoutes

	StationKeys stationauth.KeyHashes
	AdminToken  string
	Proxies     *metadata.Middleware
	Metrics     *request.Metrics
	Clock       func() time.Time
}

// NewRouter wires all endpoints with the shared middleware stack.
func NewRouter(deps Deps, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(request.Logger(logger))
	if deps.Metrics != nil {
		r.Use(request.LatencyMiddleware(deps.Metrics))
	}
	r.Use(request.BodyLimit(maxBodyBytes))
	if deps.Clock != nil {
		r.Use(requesttime.MiddlewareWithClock(deps.Clock))
	} else {
		r.Use(requesttime.Middleware)
	}
	if deps.Proxies != nil {
		r.Use(deps.Proxies.Handler)
	}

	if deps.Health != nil {
		deps.Health.Register(r)
	}
	r.Handle("/metrics", promhttp.Handler())

	if deps.Balances != nil {
		deps.Balances.RegisterStream(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(request.ContentTypeJSON)

		if deps.Tokens != nil {
			deps.Tokens.Register(r)
		}
		if deps.Views != nil {
			deps.Views.Register(r)
		}

		r.Group(func(r chi.Router) {
			r.Use(stationauth.Middleware(deps.StationKeys, logger))
			if deps.Shifts != nil {
				deps.Shifts.Register(r)
			}
			if deps.Terminals != nil {
				deps.Terminals.Register(r)
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(admin.RequireToken(deps.AdminToken, logger))
			if deps.Tokens != nil {
				deps.Tokens.RegisterAdmin(r)
			}
			if deps.Balances != nil {
				deps.Balances.RegisterAdmin(r)
			}
			if deps.Profiles != nil {
				deps.Profiles.RegisterAdmin(r)
			}
		})
	})

	return r
}
