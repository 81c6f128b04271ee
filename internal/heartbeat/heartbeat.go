// Package heartbeat periodically re-registers the process with an external
// health registry and deregisters it on shutdown.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"

	"github.com/coachpo/foghorn/errs"
	"github.com/coachpo/foghorn/internal/diag"
)

// Config wires the registrar to its external registry.
type Config struct {
	// Register announces the process; called once at start and on every
	// tick.
	Register func(ctx context.Context) error
	// Deregister withdraws the process; called once at stop. Failures are
	// swallowed.
	Deregister func(ctx context.Context) error
	// Interval paces re-registration; defaults to 30s.
	Interval time.Duration
}

// Registrar drives the registration tick loop.
type Registrar struct {
	cfg Config

	ctx    context.Context
	cancel context.CancelFunc

	wg       conc.WaitGroup
	started  bool
	stopOnce sync.Once
	mu       sync.Mutex

	reports *rate.Limiter
}

// New builds a registrar. Register is required; Deregister is optional.
func New(cfg Config) (*Registrar, error) {
	if cfg.Register == nil {
		return nil, errs.New("heartbeat", errs.CodeInvalidConfig, errs.WithMessage("register function required"))
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registrar{
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		reports: rate.NewLimiter(rate.Every(time.Minute), 1),
	}, nil
}

// Start registers immediately and begins the tick loop. Registration
// failures do not stop the loop; the next tick retries.
func (r *Registrar) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	r.wg.Go(func() {
		r.register()
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				r.register()
			}
		}
	})
}

// Stop ends the tick loop and best-effort deregisters. Deregistration
// failures are swallowed: shutdown never stalls on the registry.
func (r *Registrar) Stop(ctx context.Context) {
	r.stopOnce.Do(func() {
		r.cancel()
		r.wg.Wait()
		if r.cfg.Deregister == nil {
			return
		}
		if ctx == nil {
			ctx = context.Background()
		}
		if err := r.cfg.Deregister(ctx); err != nil {
			diag.Log().Error("heartbeat deregister failed", diag.Field{Key: "error", Value: err})
		}
	})
}

func (r *Registrar) register() {
	if err := r.cfg.Register(r.ctx); err != nil && r.reports.Allow() {
		diag.Log().Error("heartbeat register failed", diag.Field{Key: "error", Value: err})
	}
}
