// Package router is the single entry point for log calls. It gates debug
// verbosity, resolves the per-call silencing decision, and hands the message
// either to the local sink registry or to the cluster forwarder, depending on
// the process role.
package router

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/foghorn/core/message"
	"github.com/coachpo/foghorn/core/relay"
	"github.com/coachpo/foghorn/core/silence"
	"github.com/coachpo/foghorn/core/sink"
)

// Forwarder ships a log call to the cluster master. Satisfied by
// relay.Forwarder.
type Forwarder interface {
	Forward(msg message.Message, opts message.Options)
}

// Config assembles a router for one logger instance.
type Config struct {
	// Role decides whether calls are written locally or forwarded.
	Role relay.Role
	// Policy is the configuration-derived silencing policy.
	Policy silence.Policy
	// DebugThreshold is the initial debug rank ceiling; 0 drops all debug.
	DebugThreshold int
	// Fallback receives the level-tagged line emitted when no sink is
	// configured. Defaults to stdout.
	Fallback io.Writer
}

// Router routes one log call per Notify invocation. All methods are safe for
// concurrent use; Notify never blocks on sink or transport I/O.
type Router struct {
	role     relay.Role
	policy   silence.Policy
	registry *sink.Registry
	fwd      Forwarder
	fallback io.Writer

	debugThreshold atomic.Int64

	routedCounter    metric.Int64Counter
	debugDropCounter metric.Int64Counter
}

// New constructs a router. Workers pass a forwarder and a nil registry;
// masters and standalone processes pass a registry and a nil forwarder.
func New(cfg Config, registry *sink.Registry, fwd Forwarder) *Router {
	r := new(Router)
	r.role = cfg.Role
	r.policy = cfg.Policy
	r.registry = registry
	r.fwd = fwd
	r.fallback = cfg.Fallback
	if r.fallback == nil {
		r.fallback = os.Stdout
	}
	if cfg.DebugThreshold > 0 {
		r.debugThreshold.Store(int64(cfg.DebugThreshold))
	}

	meter := otel.Meter("foghorn/router")
	r.routedCounter, _ = meter.Int64Counter("foghorn.router.routed",
		metric.WithDescription("Number of log calls routed"),
		metric.WithUnit("{message}"))
	r.debugDropCounter, _ = meter.Int64Counter("foghorn.router.debug.dropped",
		metric.WithDescription("Number of debug calls dropped below the threshold"),
		metric.WithUnit("{message}"))
	return r
}

// SetDebugThreshold replaces the debug rank ceiling. Negative values clamp
// to 0.
func (r *Router) SetDebugThreshold(n int) {
	if n < 0 {
		n = 0
	}
	r.debugThreshold.Store(int64(n))
}

// DebugThreshold reports the current debug rank ceiling.
func (r *Router) DebugThreshold() int {
	return int(r.debugThreshold.Load())
}

// Notify routes one log call. Delivery trouble never reaches the caller and
// the call never blocks on a sink; the only observable effects are sink
// writes (or a forwarded envelope on workers).
func (r *Router) Notify(ctx context.Context, msg message.Message, opts message.Options) {
	if ctx == nil {
		ctx = context.Background()
	}
	if msg.At.IsZero() {
		msg.At = time.Now()
	}

	// Debug gating precedes everything: a below-threshold call touches no
	// sink and is not forwarded.
	if msg.Level == message.LevelDebug {
		rank := int64(msg.DebugRank)
		if rank <= 0 || rank > r.debugThreshold.Load() {
			if r.debugDropCounter != nil {
				r.debugDropCounter.Add(ctx, 1)
			}
			return
		}
	}

	if r.routedCounter != nil {
		r.routedCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("level", msg.Level.String()),
			attribute.String("role", r.role.String())))
	}

	if r.role == relay.RoleWorker {
		if r.fwd != nil {
			r.fwd.Forward(msg, opts)
		}
		return
	}

	avail := silence.Availability{}
	if r.registry != nil {
		avail = r.registry.Availability()
	}
	if !avail.Any() {
		r.fallbackLine(msg, opts)
		return
	}

	decision := r.policy.Resolve(msg.Level, opts, avail)
	if !decision.Any() {
		return
	}
	_ = r.registry.Dispatch(ctx, msg, decision)
}

// fallbackLine keeps a sink-less process observable: one level-tagged line on
// the fallback stream unless the call itself asked the console to stay
// quiet.
func (r *Router) fallbackLine(msg message.Message, opts message.Options) {
	if opts.NoConsole {
		return
	}
	if exclusive, ok := opts.Exclusive(); ok && exclusive != message.KindConsole {
		return
	}
	fmt.Fprintf(r.fallback, "[%s] %s\n", msg.Level, msg.Text)
}
