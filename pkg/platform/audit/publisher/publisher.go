// Package publisher appends audit events synchronously. An event is only
// reported as written once the store has accepted it; callers that must fail
// closed rely on that.
package publisher

import (
	"context"
	"database/sql/driver"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	id "ghostpass/pkg/domain"
	dErrors "ghostpass/pkg/domain-errors"
	audit "ghostpass/pkg/platform/audit"
	"ghostpass/pkg/platform/audit/metrics"
	"ghostpass/pkg/platform/sentinel"
)

// Sink receives a copy of every appended event. Export must not block.
type Sink interface {
	Export(event audit.Event)
}

type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	sinks   []Sink

	maxAttempts int
	backoff     time.Duration
	now         func() time.Time

	mu            sync.Mutex
	lastByStation map[id.StationID]time.Time
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithRetry sets the total number of append attempts and the base backoff,
// doubled after each failed attempt.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(p *Publisher) {
		if attempts > 0 {
			p.maxAttempts = attempts
		}
		if backoff >= 0 {
			p.backoff = backoff
		}
	}
}

// WithSink adds a best-effort exporter fed after each successful append.
func WithSink(sink Sink) Option {
	return func(p *Publisher) {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:         store,
		logger:        slog.Default(),
		maxAttempts:   3,
		backoff:       20 * time.Millisecond,
		now:           time.Now,
		lastByStation: make(map[id.StationID]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit stamps and appends an event. Transient store errors are retried; when
// attempts run out the error carries CodeAuditWriteFailure.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Category == "" {
		event.Category = event.Action.Category()
	}
	event.Timestamp = p.stamp(event.StationID, event.Timestamp)

	start := time.Now()
	err := p.appendWithRetry(ctx, event)
	if p.metrics != nil {
		p.metrics.AppendDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if p.metrics != nil {
			p.metrics.AppendFailures.Inc()
		}
		p.logger.ErrorContext(ctx, "audit append failed",
			"error", err,
			"action", event.Action,
			"station_id", event.StationID,
			"request_id", event.RequestID,
		)
		return dErrors.Wrap(err, dErrors.CodeAuditWriteFailure, "audit append failed")
	}

	if p.metrics != nil {
		p.metrics.EventsAppended.WithLabelValues(string(event.Category), string(event.Action)).Inc()
	}
	for _, sink := range p.sinks {
		sink.Export(event)
	}
	return nil
}

func (p *Publisher) ListByStation(ctx context.Context, station id.StationID, limit int) ([]audit.Event, error) {
	return p.store.ListByStation(ctx, station, limit)
}

func (p *Publisher) appendWithRetry(ctx context.Context, event audit.Event) error {
	var lastErr error
	for attempt := range p.maxAttempts {
		err := p.store.Append(ctx, event)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTransient(err) || attempt == p.maxAttempts-1 {
			break
		}
		if p.metrics != nil {
			p.metrics.AppendRetries.Inc()
		}
		p.logger.WarnContext(ctx, "retrying audit append",
			"error", err,
			"attempt", attempt+1,
			"station_id", event.StationID,
		)

		select {
		case <-ctx.Done():
			return errors.Join(lastErr, ctx.Err())
		case <-time.After(p.backoff * time.Duration(1<<attempt)):
		}
	}
	return lastErr
}

// stamp returns a timestamp strictly after the last one issued for station.
// Postgres stores microseconds, so ties are broken at that resolution.
func (p *Publisher) stamp(station id.StationID, ts time.Time) time.Time {
	if ts.IsZero() {
		ts = p.now()
	}
	ts = ts.UTC().Truncate(time.Microsecond)
	if station == "" {
		return ts
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.lastByStation[station]; ok && !ts.After(last) {
		ts = last.Add(time.Microsecond)
		if p.metrics != nil {
			p.metrics.TimestampClamps.Inc()
		}
	}
	p.lastByStation[station] = ts
	return ts
}

func isTransient(err error) bool {
	if errors.Is(err, sentinel.ErrUnavailable) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
