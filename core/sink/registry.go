package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	concpool "github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/coachpo/foghorn/core/message"
	"github.com/coachpo/foghorn/core/silence"
	"github.com/coachpo/foghorn/errs"
	"github.com/coachpo/foghorn/internal/diag"
)

// RegistryConfig tunes the per-sink delivery queues.
type RegistryConfig struct {
	// QueueSize bounds each sink's pending message queue.
	QueueSize int
	// FailureReportInterval throttles operator-facing failure logging.
	FailureReportInterval time.Duration
}

func (c RegistryConfig) normalize() RegistryConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.FailureReportInterval <= 0 {
		c.FailureReportInterval = time.Second
	}
	return c
}

// Registry owns the registered sinks. Every sink gets a dedicated writer
// goroutine fed by a bounded queue, so one stalled destination cannot block
// the others and each sink observes messages in dispatch order.
type Registry struct {
	cfg RegistryConfig

	mu     sync.RWMutex
	lanes  map[message.SinkKind]*lane
	closed bool

	closeOnce sync.Once
	closeErr  error

	reports *rate.Limiter

	writtenCounter metric.Int64Counter
	droppedCounter metric.Int64Counter
	errorCounter   metric.Int64Counter
	sinkGauge      metric.Int64UpDownCounter
}

type lane struct {
	sink   Sink
	queue  chan item
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// item wraps a queued message. Failure reports are tagged so a sink that
// cannot write its own report does not generate another one.
type item struct {
	msg    message.Message
	report bool
}

// NewRegistry constructs an empty sink registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	cfg = cfg.normalize()
	r := new(Registry)
	r.cfg = cfg
	r.lanes = make(map[message.SinkKind]*lane)
	r.reports = rate.NewLimiter(rate.Every(cfg.FailureReportInterval), 1)

	meter := otel.Meter("foghorn/sink")
	r.writtenCounter, _ = meter.Int64Counter("foghorn.sink.written",
		metric.WithDescription("Number of messages written per sink"),
		metric.WithUnit("{message}"))
	r.droppedCounter, _ = meter.Int64Counter("foghorn.sink.dropped",
		metric.WithDescription("Number of messages dropped due to sink backpressure"),
		metric.WithUnit("{message}"))
	r.errorCounter, _ = meter.Int64Counter("foghorn.sink.delivery.errors",
		metric.WithDescription("Number of sink delivery failures"),
		metric.WithUnit("{error}"))
	r.sinkGauge, _ = meter.Int64UpDownCounter("foghorn.sink.registered",
		metric.WithDescription("Number of registered sinks"),
		metric.WithUnit("{sink}"))

	return r
}

// Register adds a sink and starts its writer. At most one sink per kind may
// be registered.
func (r *Registry) Register(s Sink) error {
	if s == nil {
		return errs.New("sink/registry", errs.CodeInvalidConfig, errs.WithMessage("sink must not be nil"))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errs.New("sink/registry", errs.CodeClosed, errs.WithMessage("registry finalized"))
	}
	kind := s.Kind()
	if _, ok := r.lanes[kind]; ok {
		return errs.New("sink/registry", errs.CodeInvalidConfig,
			errs.WithSink(kind.String()),
			errs.WithMessage("sink kind already registered"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := new(lane)
	l.sink = s
	l.queue = make(chan item, r.cfg.QueueSize)
	l.ctx = ctx
	l.cancel = cancel
	l.done = make(chan struct{})
	r.lanes[kind] = l

	go r.drain(l)

	if r.sinkGauge != nil {
		r.sinkGauge.Add(ctx, 1, metric.WithAttributes(attribute.String("sink", kind.String())))
	}
	return nil
}

// Availability reports which sink families currently hold a registered sink.
func (r *Registry) Availability() silence.Availability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var avail silence.Availability
	for kind := range r.lanes {
		switch kind {
		case message.KindConsole:
			avail.Console = true
		case message.KindFile:
			avail.File = true
		case message.KindRemote:
			avail.Remote = true
		}
	}
	return avail
}

// Dispatch enqueues the message to every sink admitted by the decision.
// Enqueueing never blocks: when a sink's queue is full the oldest pending
// message is dropped to make room, mirroring terminal scrollback behavior.
func (r *Registry) Dispatch(ctx context.Context, msg message.Message, decision silence.Decision) error {
	if ctx == nil {
		ctx = context.Background()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return errs.New("sink/registry", errs.CodeClosed, errs.WithMessage("registry finalized"))
	}
	for kind, l := range r.lanes {
		if decision.Allows(kind) {
			r.enqueue(ctx, l, item{msg: msg})
		}
	}
	return nil
}

// FlushAndCloseAll stops intake, drains every queue, then flushes and closes
// each sink. The context bounds the whole sequence: once it expires,
// still-busy writers are cancelled and their remaining output abandoned, so
// an abandoned sink may observe Close while its final Write is still in
// flight. The first call captures the outcome; later calls return the same
// result.
func (r *Registry) FlushAndCloseAll(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	r.closeOnce.Do(func() {
		r.closeErr = r.flushAndClose(ctx)
	})
	return r.closeErr
}

func (r *Registry) flushAndClose(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	lanes := make([]*lane, 0, len(r.lanes))
	for _, l := range r.lanes {
		lanes = append(lanes, l)
	}
	r.mu.Unlock()

	for _, l := range lanes {
		l.once.Do(func() { close(l.queue) })
	}

	timedOut := false
	for _, l := range lanes {
		select {
		case <-l.done:
		case <-ctx.Done():
			l.cancel()
			timedOut = true
		}
	}

	p := concpool.New().WithErrors()
	for _, l := range lanes {
		l := l
		p.Go(func() error {
			if err := l.sink.Flush(ctx); err != nil {
				r.recordError(l.sink.Kind())
				return errs.DeliveryFailed(l.sink.Kind().String(), err)
			}
			if err := l.sink.Close(ctx); err != nil {
				r.recordError(l.sink.Kind())
				return errs.DeliveryFailed(l.sink.Kind().String(), err)
			}
			return nil
		})
	}

	// A sink whose Flush or Close ignores the context must not stall
	// shutdown: wait for the pool only until the deadline, then walk away.
	waitCh := make(chan error, 1)
	go func() { waitCh <- p.Wait() }()

	var flushErr error
	select {
	case flushErr = <-waitCh:
	case <-ctx.Done():
		timedOut = true
	}

	for _, l := range lanes {
		l.cancel()
	}

	if r.sinkGauge != nil {
		for _, l := range lanes {
			r.sinkGauge.Add(context.Background(), -1, metric.WithAttributes(
				attribute.String("sink", l.sink.Kind().String())))
		}
	}

	if timedOut {
		return errs.New("sink/registry", errs.CodeTimeout,
			errs.WithMessage("flush deadline exceeded; remaining sinks abandoned"),
			errs.WithCause(flushErr))
	}
	return flushErr
}

// drain is the per-sink writer loop. It owns all Write calls for its sink.
func (r *Registry) drain(l *lane) {
	defer close(l.done)
	for it := range l.queue {
		r.write(l, it)
	}
}

func (r *Registry) write(l *lane, it item) {
	defer func() {
		if rec := recover(); rec != nil {
			r.recordError(l.sink.Kind())
			if !it.report {
				r.reportFailure(l.sink.Kind(), fmt.Errorf("sink panic: %v", rec))
			}
		}
	}()
	if err := l.sink.Write(l.ctx, it.msg); err != nil {
		r.recordError(l.sink.Kind())
		// The write failure of a report itself stays silent; re-reporting
		// would ping-pong between a failing console and a failing file.
		if !it.report {
			r.reportFailure(l.sink.Kind(), err)
		}
		return
	}
	if r.writtenCounter != nil {
		r.writtenCounter.Add(l.ctx, 1, metric.WithAttributes(
			attribute.String("sink", l.sink.Kind().String()),
			attribute.String("level", it.msg.Level.String())))
	}
}

func (r *Registry) enqueue(ctx context.Context, l *lane, it item) {
	select {
	case l.queue <- it:
		return
	default:
	}

	select {
	case <-l.queue:
		if r.droppedCounter != nil {
			r.droppedCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("sink", l.sink.Kind().String())))
		}
		if r.reports.Allow() {
			diag.Log().Info("sink queue full; dropped oldest message",
				diag.Field{Key: "sink", Value: l.sink.Kind().String()})
		}
	default:
	}

	select {
	case l.queue <- it:
	default:
		if r.droppedCounter != nil {
			r.droppedCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("sink", l.sink.Kind().String())))
		}
	}
}

func (r *Registry) recordError(kind message.SinkKind) {
	if r.errorCounter != nil {
		r.errorCounter.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("sink", kind.String())))
	}
}

// reportFailure surfaces a delivery failure through the console sink, or the
// file sink when the console is absent or is itself the failing one. With no
// eligible sink the failure is dropped after counting. Throttled so one dead
// destination cannot flood the survivors.
func (r *Registry) reportFailure(kind message.SinkKind, err error) {
	if !r.reports.Allow() {
		return
	}
	report := item{
		msg: message.Message{
			Level: message.LevelWarning,
			Text:  fmt.Sprintf("unable to deliver to %s sink: %v", kind, err),
			At:    time.Now(),
		},
		report: true,
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	if l, ok := r.lanes[message.KindConsole]; ok && kind != message.KindConsole {
		r.enqueue(context.Background(), l, report)
		return
	}
	if l, ok := r.lanes[message.KindFile]; ok && kind != message.KindFile {
		r.enqueue(context.Background(), l, report)
	}
}
