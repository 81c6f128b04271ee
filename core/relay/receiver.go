package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/coachpo/foghorn/core/message"
	"github.com/coachpo/foghorn/errs"
	"github.com/coachpo/foghorn/internal/diag"
)

// Handler consumes a forwarded log call on the master side.
type Handler func(ctx context.Context, msg message.Message, opts message.Options)

// Receiver subscribes to a transport on the master and replays every
// well-formed envelope into the handler. Foreign payloads are counted and
// skipped.
type Receiver struct {
	transport Transport
	handler   Handler

	ctx    context.Context
	cancel context.CancelFunc

	started atomic.Bool
	done    chan struct{}
	once    sync.Once

	reports *rate.Limiter

	receivedCounter metric.Int64Counter
	rejectedCounter metric.Int64Counter
}

// NewReceiver constructs a receiver bound to the transport and handler.
func NewReceiver(transport Transport, handler Handler) (*Receiver, error) {
	if transport == nil {
		return nil, errs.New("relay/receiver", errs.CodeInvalidConfig, errs.WithMessage("transport required"))
	}
	if handler == nil {
		return nil, errs.New("relay/receiver", errs.CodeInvalidConfig, errs.WithMessage("handler required"))
	}
	r := new(Receiver)
	r.transport = transport
	r.handler = handler
	r.done = make(chan struct{})
	r.reports = rate.NewLimiter(rate.Every(time.Second), 1)

	meter := otel.Meter("foghorn/relay")
	r.receivedCounter, _ = meter.Int64Counter("foghorn.relay.received",
		metric.WithDescription("Number of forwarded log calls accepted by the master"),
		metric.WithUnit("{message}"))
	r.rejectedCounter, _ = meter.Int64Counter("foghorn.relay.rejected",
		metric.WithDescription("Number of transport payloads rejected by the master"),
		metric.WithUnit("{payload}"))

	return r, nil
}

// Start subscribes to the transport and begins replaying envelopes.
func (r *Receiver) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !r.started.CompareAndSwap(false, true) {
		return errs.New("relay/receiver", errs.CodeInvalidConfig, errs.WithMessage("receiver already started"))
	}
	rctx, cancel := context.WithCancel(ctx)
	r.ctx = rctx
	r.cancel = cancel

	ch, err := r.transport.Receive(rctx)
	if err != nil {
		cancel()
		return err
	}
	go r.run(ch)
	return nil
}

// Close stops the receiver and waits for its loop to exit or the context to
// expire.
func (r *Receiver) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !r.started.Load() {
		return nil
	}
	r.once.Do(func() { r.cancel() })
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return errs.New("relay/receiver", errs.CodeTimeout, errs.WithMessage("receiver loop did not stop before deadline"))
	}
}

func (r *Receiver) run(ch <-chan []byte) {
	defer close(r.done)
	for payload := range ch {
		env, err := DecodeEnvelope(payload)
		if err != nil {
			if r.rejectedCounter != nil {
				r.rejectedCounter.Add(r.ctx, 1)
			}
			if r.reports.Allow() {
				diag.Log().Error("relay rejected payload", diag.Field{Key: "error", Value: err})
			}
			continue
		}
		if r.receivedCounter != nil {
			r.receivedCounter.Add(r.ctx, 1, metric.WithAttributes(
				attribute.String("level", env.Level.String())))
		}
		r.handler(r.ctx, env.Message(), env.Options)
	}
}
