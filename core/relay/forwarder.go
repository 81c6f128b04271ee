package relay

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/coachpo/foghorn/core/message"
	"github.com/coachpo/foghorn/errs"
	"github.com/coachpo/foghorn/internal/diag"
)

// ForwarderConfig tunes the worker-side forwarding queue.
type ForwarderConfig struct {
	// App identifies the originating application in forwarded envelopes.
	App string
	// QueueSize bounds the pending envelope queue.
	QueueSize int
	// ReportInterval throttles operator-facing failure logging.
	ReportInterval time.Duration
}

func (c ForwarderConfig) normalize() ForwarderConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.ReportInterval <= 0 {
		c.ReportInterval = time.Second
	}
	return c
}

// Forwarder ships log calls from a worker process to the master. Forwarding
// is fire-and-forget: callers never block on transport health and never see
// delivery errors.
type Forwarder struct {
	cfg       ForwarderConfig
	transport Transport

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	queue  chan Envelope
	closed bool

	done chan struct{}
	once sync.Once

	reports *rate.Limiter

	forwardedCounter metric.Int64Counter
	droppedCounter   metric.Int64Counter
}

// NewForwarder constructs a forwarder and starts its sender loop.
func NewForwarder(cfg ForwarderConfig, transport Transport) (*Forwarder, error) {
	if transport == nil {
		return nil, errs.New("relay/forwarder", errs.CodeInvalidConfig, errs.WithMessage("transport required"))
	}
	cfg = cfg.normalize()
	ctx, cancel := context.WithCancel(context.Background())
	f := new(Forwarder)
	f.cfg = cfg
	f.transport = transport
	f.ctx = ctx
	f.cancel = cancel
	f.queue = make(chan Envelope, cfg.QueueSize)
	f.done = make(chan struct{})
	f.reports = rate.NewLimiter(rate.Every(cfg.ReportInterval), 1)

	meter := otel.Meter("foghorn/relay")
	f.forwardedCounter, _ = meter.Int64Counter("foghorn.relay.forwarded",
		metric.WithDescription("Number of log calls forwarded to the master"),
		metric.WithUnit("{message}"))
	f.droppedCounter, _ = meter.Int64Counter("foghorn.relay.dropped",
		metric.WithDescription("Number of log calls dropped before forwarding"),
		metric.WithUnit("{message}"))

	go f.run()
	return f, nil
}

// Forward enqueues one log call for delivery to the master. When the queue
// is saturated or the forwarder is closed, the call is dropped and counted;
// the caller is never blocked.
func (f *Forwarder) Forward(msg message.Message, opts message.Options) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		f.drop("forwarder closed")
		return
	}
	select {
	case f.queue <- NewEnvelope(f.cfg.App, msg, opts):
	default:
		f.drop("queue full")
	}
}

// Close stops intake and drains pending envelopes. Once the context expires
// the in-flight send is cancelled and the remainder abandoned.
func (f *Forwarder) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.once.Do(func() { close(f.queue) })

	select {
	case <-f.done:
		f.cancel()
		return nil
	case <-ctx.Done():
		f.cancel()
		return errs.New("relay/forwarder", errs.CodeTimeout, errs.WithMessage("abandoned pending envelopes at deadline"))
	}
}

func (f *Forwarder) run() {
	defer close(f.done)
	for env := range f.queue {
		payload, err := env.Encode()
		if err != nil {
			f.report(err)
			continue
		}
		if err := f.transport.Send(f.ctx, payload); err != nil {
			f.report(err)
			continue
		}
		if f.forwardedCounter != nil {
			f.forwardedCounter.Add(f.ctx, 1, metric.WithAttributes(
				attribute.String("level", env.Level.String())))
		}
	}
}

func (f *Forwarder) drop(reason string) {
	if f.droppedCounter != nil {
		f.droppedCounter.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("reason", reason)))
	}
	if f.reports.Allow() {
		diag.Log().Info("relay dropped log call", diag.Field{Key: "reason", Value: reason})
	}
}

func (f *Forwarder) report(err error) {
	if f.droppedCounter != nil {
		f.droppedCounter.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("reason", "send_failed")))
	}
	if f.reports.Allow() {
		diag.Log().Error("relay send failed", diag.Field{Key: "error", Value: err})
	}
}
