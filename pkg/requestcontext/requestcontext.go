// Package requestcontext carries request-scoped values (request ID, request
// time, client metadata, authenticated station) through context.Context.
package requestcontext

import (
	"context"
	"time"

	id "ghostpass/pkg/domain"
)

type (
	requestIDKey struct{}
	timeKey      struct{}
	clientKey    struct{}
	stationKey   struct{}
)

type clientMetadata struct {
	ip        string
	userAgent string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the correlation ID or "" outside of HTTP requests.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// WithTime pins "now" for everything downstream. Used by the request-time
// middleware, workers, and tests that need a deterministic clock.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, timeKey{}, t)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(timeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithClientMetadata(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientKey{}, clientMetadata{ip: ip, userAgent: userAgent})
}

func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientKey{}).(clientMetadata)
	return v.ip
}

func UserAgent(ctx context.Context) string {
	v, _ := ctx.Value(clientKey{}).(clientMetadata)
	return v.userAgent
}

// WithStation records the terminal authenticated by the station-key middleware.
func WithStation(ctx context.Context, station id.StationID) context.Context {
	return context.WithValue(ctx, stationKey{}, station)
}

// Station returns the authenticated terminal, or "" when none.
func Station(ctx context.Context) id.StationID {
	v, _ := ctx.Value(stationKey{}).(id.StationID)
	return v
}
