// Package logger assembles the Foghorn logging facility: validated
// configuration in, a caller-owned Logger instance out. The instance routes
// every log call through the silencing policy to the configured sinks, or
// forwards it to the cluster master when the process is a worker, and drives
// the flush-complete shutdown sequence.
package logger

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coachpo/foghorn/config"
	"github.com/coachpo/foghorn/core/message"
	"github.com/coachpo/foghorn/core/relay"
	"github.com/coachpo/foghorn/core/router"
	"github.com/coachpo/foghorn/core/silence"
	"github.com/coachpo/foghorn/core/sink"
	"github.com/coachpo/foghorn/internal/heartbeat"
	"github.com/coachpo/foghorn/internal/platform"
	"github.com/coachpo/foghorn/internal/sinks/console"
	"github.com/coachpo/foghorn/internal/sinks/logfile"
	"github.com/coachpo/foghorn/internal/sinks/remote"
)

// Logger is one initialized logging instance. Multiple independent instances
// can coexist; each owns its sinks, transport, and lifecycle. All logging
// methods are safe for concurrent use and never block on sink I/O; Finalize
// is the only blocking operation.
type Logger struct {
	settings config.Settings
	role     relay.Role

	registry      *sink.Registry
	router        *router.Router
	forwarder     *relay.Forwarder
	receiver      *relay.Receiver
	transport     relay.Transport
	ownsTransport bool
	heartbeat     *heartbeat.Registrar

	flushTimeout time.Duration

	finalizeOnce sync.Once
	finalized    atomic.Bool
}

// Option customizes instance construction, mainly for tests and embedded
// deployments.
type Option func(*buildOptions)

type buildOptions struct {
	transport      relay.Transport
	consoleWriter  io.Writer
	fallbackWriter io.Writer
	heartbeat      *heartbeat.Registrar
}

// WithTransport substitutes the cluster transport. Cluster masters and
// workers sharing a process (or a test) can exchange envelopes over a
// relay.MemoryTransport instead of websockets.
func WithTransport(t relay.Transport) Option {
	return func(o *buildOptions) { o.transport = t }
}

// WithConsoleWriter redirects the console sink's stream.
func WithConsoleWriter(w io.Writer) Option {
	return func(o *buildOptions) { o.consoleWriter = w }
}

// WithFallbackWriter redirects the line emitted when no sink is configured.
func WithFallbackWriter(w io.Writer) Option {
	return func(o *buildOptions) { o.fallbackWriter = w }
}

// WithHeartbeat attaches a process-health registrar whose lifecycle follows
// the logger's: started on New, stopped and deregistered on Finalize.
func WithHeartbeat(r *heartbeat.Registrar) Option {
	return func(o *buildOptions) { o.heartbeat = r }
}

// New validates the settings and assembles a logger instance. Construction
// is atomic: on any failure every partially built sink and transport is torn
// down and the returned instance is nil.
func New(ctx context.Context, settings config.Settings, opts ...Option) (*Logger, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	settings = settings.Normalised()
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	var build buildOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&build)
		}
	}

	role := relay.RoleNone
	if settings.Cluster != nil {
		parsed, err := relay.ParseRole(settings.Cluster.Role)
		if err != nil {
			return nil, err
		}
		role = parsed
	}

	l := &Logger{
		settings:     settings,
		role:         role,
		heartbeat:    build.heartbeat,
		flushTimeout: settings.FlushTimeout.Std(),
	}

	if role == relay.RoleWorker {
		if err := l.buildWorker(build); err != nil {
			return nil, err
		}
	} else {
		if err := l.buildMaster(ctx, build); err != nil {
			return nil, err
		}
	}

	if l.heartbeat != nil {
		l.heartbeat.Start()
	}
	return l, nil
}

func (l *Logger) buildWorker(build buildOptions) error {
	transport := build.transport
	if transport == nil {
		dialer, err := relay.DialSocket(relay.SocketConfig{URL: l.settings.Cluster.MasterURL})
		if err != nil {
			return err
		}
		transport = dialer
		l.ownsTransport = true
	}
	fwd, err := relay.NewForwarder(relay.ForwarderConfig{
		App:       l.settings.AppName,
		QueueSize: l.settings.QueueSize,
	}, transport)
	if err != nil {
		if l.ownsTransport {
			_ = transport.Close()
		}
		return err
	}
	l.transport = transport
	l.forwarder = fwd
	l.router = router.New(router.Config{
		Role:           relay.RoleWorker,
		DebugThreshold: l.settings.DebugLevel,
		Fallback:       build.fallbackWriter,
	}, nil, fwd)
	return nil
}

func (l *Logger) buildMaster(ctx context.Context, build buildOptions) error {
	registry := sink.NewRegistry(sink.RegistryConfig{QueueSize: l.settings.QueueSize})
	teardown := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = registry.FlushAndCloseAll(closeCtx)
	}

	if !l.settings.DisableConsole {
		if err := registry.Register(console.New(build.consoleWriter)); err != nil {
			teardown()
			return err
		}
	}
	if fl := l.settings.FileLog; fl != nil {
		dir := fl.Dir
		if dir == "" {
			resolved, err := platform.DefaultLogDir(l.settings.AppName)
			if err != nil {
				teardown()
				return err
			}
			dir = resolved
		}
		fileSink, err := logfile.New(logfile.Config{
			Dir:        dir,
			AppName:    l.settings.AppName,
			DaysToKeep: fl.RetentionDays(),
		})
		if err != nil {
			teardown()
			return err
		}
		if err := registry.Register(fileSink); err != nil {
			teardown()
			return err
		}
	}
	sendInfoRemote := false
	if sl := l.settings.SysLog; sl != nil {
		sendInfoRemote = sl.SendInfoNotifications
		remoteSink, err := remote.New(remote.Config{
			Host:     sl.Host,
			Port:     sl.Port,
			Network:  string(sl.Transport),
			Protocol: string(sl.Protocol),
			AppName:  l.settings.AppName,
		})
		if err != nil {
			teardown()
			return err
		}
		if err := registry.Register(remoteSink); err != nil {
			teardown()
			return err
		}
	}

	l.registry = registry
	l.router = router.New(router.Config{
		Role:           l.role,
		Policy: silence.Policy{
			DisableConsole:   l.settings.DisableConsole,
			SendInfoToRemote: sendInfoRemote,
		},
		DebugThreshold: l.settings.DebugLevel,
		Fallback:       build.fallbackWriter,
	}, registry, nil)

	if l.role == relay.RoleMaster {
		transport := build.transport
		if transport == nil {
			listener, err := relay.ListenSocket(relay.SocketConfig{ListenAddr: l.settings.Cluster.Listen})
			if err != nil {
				teardown()
				return err
			}
			transport = listener
			l.ownsTransport = true
		}
		receiver, err := relay.NewReceiver(transport, func(ctx context.Context, msg message.Message, opts message.Options) {
			l.router.Notify(ctx, msg, opts)
		})
		if err != nil {
			if build.transport == nil {
				_ = transport.Close()
			}
			teardown()
			return err
		}
		if err := receiver.Start(ctx); err != nil {
			if build.transport == nil {
				_ = transport.Close()
			}
			teardown()
			return err
		}
		l.transport = transport
		l.receiver = receiver
	}
	return nil
}

// Role reports the process position the instance resolved at construction.
func (l *Logger) Role() relay.Role { return l.role }

// Settings returns the validated settings the instance was built from.
func (l *Logger) Settings() config.Settings { return l.settings }

// SetDebugLevel replaces the debug rank ceiling at runtime. Negative values
// clamp to 0.
func (l *Logger) SetDebugLevel(n int) {
	l.router.SetDebugThreshold(n)
}

// DebugLevel reports the current debug rank ceiling.
func (l *Logger) DebugLevel() int {
	return l.router.DebugThreshold()
}

// Notify routes one log call. Delivery trouble never reaches the caller.
func (l *Logger) Notify(ctx context.Context, level message.Level, text string, opts ...message.Options) {
	if l.isFinalized() {
		return
	}
	msg := message.Message{Level: level, Text: text, At: time.Now()}
	l.router.Notify(ctx, msg, mergeOptions(opts))
}

// Error logs at error level.
func (l *Logger) Error(text string, opts ...message.Options) {
	l.Notify(context.Background(), message.LevelError, text, opts...)
}

// Warning logs at warning level.
func (l *Logger) Warning(text string, opts ...message.Options) {
	l.Notify(context.Background(), message.LevelWarning, text, opts...)
}

// Info logs at info level.
func (l *Logger) Info(text string, opts ...message.Options) {
	l.Notify(context.Background(), message.LevelInfo, text, opts...)
}

// Debug logs at debug level with the given rank. The call is dropped unless
// 0 < rank <= the configured debug level.
func (l *Logger) Debug(rank int, text string, opts ...message.Options) {
	if l.isFinalized() {
		return
	}
	msg := message.Message{Level: message.LevelDebug, Text: text, DebugRank: rank, At: time.Now()}
	l.router.Notify(context.Background(), msg, mergeOptions(opts))
}

// Finalize drains and closes every sink, stops the cluster machinery and the
// heartbeat, and permanently retires the instance. It is idempotent: the
// first call runs the sequence and returns the captured flush error, if any;
// later calls return nil immediately. The flush wait is bounded by the
// configured flush timeout, so a stuck sink is abandoned instead of stalling
// shutdown.
func (l *Logger) Finalize(ctx context.Context) error {
	var err error
	ran := false
	l.finalizeOnce.Do(func() {
		ran = true
		err = l.finalize(ctx)
	})
	if !ran {
		return nil
	}
	return err
}

func (l *Logger) finalize(ctx context.Context) error {
	l.finalized.Store(true)
	if ctx == nil {
		ctx = context.Background()
	}

	if l.heartbeat != nil {
		l.heartbeat.Stop(ctx)
	}

	boundCtx, cancel := context.WithTimeout(ctx, l.flushTimeout)
	defer cancel()

	if l.receiver != nil {
		_ = l.receiver.Close(boundCtx)
	}
	if l.forwarder != nil {
		_ = l.forwarder.Close(boundCtx)
	}
	if l.transport != nil && l.ownsTransport {
		_ = l.transport.Close()
	}

	var flushErr error
	if l.registry != nil {
		flushErr = l.registry.FlushAndCloseAll(boundCtx)
	}
	return flushErr
}

func (l *Logger) isFinalized() bool {
	return l.finalized.Load()
}

// mergeOptions folds the variadic per-call options into one value. Flags
// combine with OR; the silencing policy applies its usual only* precedence
// afterwards.
func mergeOptions(opts []message.Options) message.Options {
	var merged message.Options
	for _, o := range opts {
		merged.NoConsole = merged.NoConsole || o.NoConsole
		merged.NoFile = merged.NoFile || o.NoFile
		merged.NoRemote = merged.NoRemote || o.NoRemote
		merged.OnlyConsole = merged.OnlyConsole || o.OnlyConsole
		merged.OnlyFile = merged.OnlyFile || o.OnlyFile
		merged.OnlyRemote = merged.OnlyRemote || o.OnlyRemote
	}
	return merged
}
