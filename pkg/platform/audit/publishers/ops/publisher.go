// Package ops exports audit events to the operational log topic as
// shift-event contract messages. Export is fire-and-forget: the durable
// record is the audit store, so a Kafka outage only drops the mirror copy.
package ops

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	audit "ghostpass/pkg/platform/audit"
	"ghostpass/pkg/platform/circuit"
)

// Producer is satisfied by the platform Kafka producer.
type Producer interface {
	ProduceRecord(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// ShiftEvent is the wire contract consumed by the operational log.
type ShiftEvent struct {
	EventType     string            `json:"event_type"`
	StationID     string            `json:"station_id"`
	OperatorID    string            `json:"operator_id"`
	FromStationID string            `json:"from_station_id,omitempty"`
	ToStationID   string            `json:"to_station_id,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Publisher queues events and produces them from a single worker goroutine.
type Publisher struct {
	producer       Producer
	topic          string
	logger         *slog.Logger
	metrics        *Metrics
	breaker        *circuit.Breaker
	produceTimeout time.Duration

	queue chan audit.Event
	wg    sync.WaitGroup
	once  sync.Once
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(p *Publisher) {
		p.breaker = b
	}
}

func WithBufferSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.queue = make(chan audit.Event, n)
		}
	}
}

func WithProduceTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.produceTimeout = d
		}
	}
}

// New starts the export worker. Call Close to drain it.
func New(producer Producer, topic string, opts ...Option) *Publisher {
	p := &Publisher{
		producer:       producer,
		topic:          topic,
		logger:         slog.Default(),
		breaker:        circuit.New("ops-export"),
		produceTimeout: 5 * time.Second,
		queue:          make(chan audit.Event, 1024),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(1)
	go p.run()
	return p
}

// Export enqueues an event without blocking. Events are dropped when the
// queue is full. View events are not part of the ops contract.
func (p *Publisher) Export(event audit.Event) {
	if event.Category == audit.CategoryView {
		return
	}
	select {
	case p.queue <- event:
	default:
		p.dropped("queue_full")
	}
}

// Close stops accepting events and waits for queued ones to be produced.
func (p *Publisher) Close() {
	p.once.Do(func() {
		close(p.queue)
		p.wg.Wait()
	})
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for event := range p.queue {
		p.produce(event)
	}
}

func (p *Publisher) produce(event audit.Event) {
	if !p.breaker.Allow() {
		p.dropped("circuit_open")
		return
	}

	value, err := json.Marshal(ToShiftEvent(event))
	if err != nil {
		p.dropped("encode")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.produceTimeout)
	defer cancel()
	err = p.producer.ProduceRecord(ctx, p.topic, []byte(event.StationID), value, map[string]string{
		"event_id":   event.ID.String(),
		"event_type": string(event.Action),
	})
	if err != nil {
		open := p.breaker.RecordFailure()
		if p.metrics != nil {
			p.metrics.SetCircuitOpen(open)
		}
		p.logger.Warn("ops export failed",
			"error", err,
			"event_type", event.Action,
			"station_id", event.StationID,
		)
		p.dropped("produce")
		return
	}

	p.breaker.RecordSuccess()
	if p.metrics != nil {
		p.metrics.Exported.Inc()
		p.metrics.SetCircuitOpen(false)
	}
}

func (p *Publisher) dropped(reason string) {
	if p.metrics != nil {
		p.metrics.Dropped.WithLabelValues(reason).Inc()
	}
}

// ToShiftEvent maps an audit event onto the operational contract. Scan
// decisions travel in metadata.
func ToShiftEvent(event audit.Event) ShiftEvent {
	meta := make(map[string]string, len(event.Metadata)+3)
	for k, v := range event.Metadata {
		meta[k] = v
	}
	if event.Decision != "" {
		meta["decision"] = event.Decision
	}
	if event.Reason != "" {
		meta["reason"] = event.Reason
	}
	if event.TokenNonce != nil {
		meta["token_nonce"] = event.TokenNonce.String()
	}
	if len(meta) == 0 {
		meta = nil
	}

	return ShiftEvent{
		EventType:     string(event.Action),
		StationID:     event.StationID.String(),
		OperatorID:    event.OperatorID.String(),
		FromStationID: event.FromStationID.String(),
		ToStationID:   event.ToStationID.String(),
		OccurredAt:    event.Timestamp,
		Metadata:      meta,
	}
}
