package rotation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	balancemodels "ghostpass/internal/balance/models"
	"ghostpass/internal/token/metrics"
	"ghostpass/internal/token/models"
	"ghostpass/internal/token/service"
	id "ghostpass/pkg/domain"
)

type Minter interface {
	Mint(ctx context.Context, req service.MintRequest) (*service.MintResult, error)
}

// Subscriber streams balance changes for one subject.
type Subscriber interface {
	Subscribe(ctx context.Context, subject id.SubjectID) (<-chan balancemodels.Change, error)
}

// Frame is what the display renders. Payload is empty while nothing valid
// can be shown.
type Frame struct {
	State     State
	Payload   string
	Locked    bool
	Mode      models.Mode
	ExpiresAt time.Time
}

type Display struct {
	minter     Minter
	subscriber Subscriber
	request    service.MintRequest
	retryAfter time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	mu      sync.RWMutex
	state   State
	current *service.MintResult
	frames  chan Frame
}

type Option func(*Display)

func WithSubscriber(sub Subscriber) Option {
	return func(d *Display) {
		d.subscriber = sub
	}
}

func WithRetryAfter(wait time.Duration) Option {
	return func(d *Display) {
		d.retryAfter = wait
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Display) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Display) {
		d.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Display) {
		d.now = now
	}
}

func NewDisplay(minter Minter, req service.MintRequest, opts ...Option) *Display {
	d := &Display{
		minter:     minter,
		request:    req,
		retryAfter: time.Second,
		logger:     slog.Default(),
		now:        time.Now,
		state:      StateIdle,
		frames:     make(chan Frame, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Frames delivers the latest frame after every state change. A slow reader
// only ever misses intermediate frames.
func (d *Display) Frames() <-chan Frame {
	return d.frames
}

// Current returns the frame the display would render now.
func (d *Display) Current() Frame {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.frameLocked()
}

// Run drives the display until ctx is done.
func (d *Display) Run(ctx context.Context) error {
	var changes <-chan balancemodels.Change
	if d.subscriber != nil {
		ch, err := d.subscriber.Subscribe(ctx, d.request.SubjectID)
		if err != nil {
			// Scheduled rotation still re-reads the gate.
			d.logger.WarnContext(ctx, "balance notifications unavailable", "error", err)
		} else {
			changes = ch
		}
	}

	d.fire(ctx, EventStart)
	d.mint(ctx, "start")

	for {
		rotate, expire := d.timers()
		select {
		case <-ctx.Done():
			d.fire(ctx, EventStop)
			close(d.frames)
			return nil
		case <-rotate:
			d.fire(ctx, EventRotateDue)
			d.mint(ctx, "schedule")
		case <-expire:
			d.fire(ctx, EventExpired)
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if d.Current().Mode == models.ModeIncognitoMaster && d.State() == StateShowing {
				// Master tokens are fixed at issuance.
				continue
			}
			d.fire(ctx, EventBalanceChanged)
			d.mint(ctx, "balance")
		}
	}
}

func (d *Display) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *Display) mint(ctx context.Context, trigger string) {
	res, err := d.minter.Mint(ctx, d.request)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		d.logger.WarnContext(ctx, "display re-mint failed", "error", err, "trigger", trigger)
		d.fire(ctx, EventMintFailed)
		return
	}
	if d.metrics != nil {
		d.metrics.IncRotation(trigger)
	}
	d.mu.Lock()
	d.current = res
	d.mu.Unlock()
	d.fire(ctx, EventMinted)
}

// timers returns channels for the next rotation and the current token's
// expiry. Nil channels never fire.
func (d *Display) timers() (rotate, expire <-chan time.Time) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	now := d.now()
	switch d.state {
	case StateShowing:
		if d.current.RotateAt != nil {
			rotate = time.After(d.current.RotateAt.Sub(now))
		}
		expire = time.After(d.current.Token.ExpiresAt.Sub(now) + time.Millisecond)
	case StateRetrying:
		rotate = time.After(d.retryAfter)
		if d.current != nil && !d.current.Token.IsExpired(now) {
			expire = time.After(d.current.Token.ExpiresAt.Sub(now) + time.Millisecond)
		}
	case StateExpired:
		if d.request.Mode == models.ModeStandard {
			rotate = time.After(d.retryAfter)
		}
	}
	return rotate, expire
}

func (d *Display) fire(ctx context.Context, e Event) {
	d.mu.Lock()
	next, err := Transition(d.state, e)
	if err != nil {
		d.mu.Unlock()
		d.logger.ErrorContext(ctx, "display transition rejected", "error", err)
		return
	}
	d.state = next
	if next == StateExpired || (next == StateRetrying && d.current != nil && d.current.Token.IsExpired(d.now())) {
		d.current = nil
	}
	frame := d.frameLocked()
	d.mu.Unlock()

	if next == StateStopped {
		return
	}
	select {
	case <-d.frames:
	default:
	}
	d.frames <- frame
}

func (d *Display) frameLocked() Frame {
	f := Frame{State: d.state}
	if d.current != nil {
		f.Payload = d.current.Payload
		f.Locked = d.current.Token.Locked
		f.Mode = d.current.Token.Mode
		f.ExpiresAt = d.current.Token.ExpiresAt
	}
	return f
}
