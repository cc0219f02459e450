// Package tracer is a small tracing facade over OpenTelemetry so domain
// packages depend on an interface rather than the otel API.
//
// Implementations:
//   - NoopTracer: tests and deployments without a collector
//   - OTelTracer: OpenTelemetry adapter
package tracer

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/zeebo/blake3"
)

// Span represents an active trace span. End must be called exactly once.
type Span interface {
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
//
//	ctx, span := t.Start(ctx, tracer.SpanVerify, tracer.String(tracer.AttrStationID, station))
//	defer span.End(nil)
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashSubject returns a short BLAKE3 digest of a subject ID so traces can be
// correlated without carrying the identifier itself.
func HashSubject(subject string) string {
	if subject == "" {
		return ""
	}
	sum := blake3.Sum256([]byte(subject))
	return hex.EncodeToString(sum[:8])
}

// Span names.
const (
	SpanVerify        = "verify.scan"
	SpanVerifyDecode  = "verify.decode"
	SpanVerifyConsume = "verify.consume"
	SpanVerifyProfile = "verify.profile"
	SpanVerifyAudit   = "verify.audit"
	SpanMint          = "token.mint"
)

// Attribute keys.
const (
	AttrStationID  = "station.id"
	AttrOperatorID = "operator.id"
	AttrSubject    = "subject.hash"
	AttrDecision   = "scan.decision"
	AttrReason     = "scan.reason"
	AttrConsumable = "token.consumable"
	AttrMode       = "token.mode"
	AttrLocked     = "token.locked"
)
