package relay

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"

	"github.com/coachpo/foghorn/errs"
	"github.com/coachpo/foghorn/internal/diag"
)

// SocketConfig configures the websocket relay endpoints. A worker populates
// URL; a master populates ListenAddr.
type SocketConfig struct {
	// URL is the master's relay endpoint, e.g. ws://10.0.0.1:7519/relay.
	URL string
	// ListenAddr is the address the master binds, e.g. :7519.
	ListenAddr string
	// DialTimeout bounds the wait for the first connection. The dialer keeps
	// reconnecting in the background after the wait expires.
	DialTimeout time.Duration
	// WriteTimeout bounds each envelope write.
	WriteTimeout time.Duration
	// BufferSize bounds the master-side consumer queue.
	BufferSize int
}

func (c SocketConfig) normalize() SocketConfig {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
	return c
}

// SocketDialer is the worker-side transport: a single outbound websocket
// connection maintained by a reconnect loop with exponential backoff.
// Envelopes produced while disconnected are refused, which the forwarder
// translates into counted drops.
type SocketDialer struct {
	cfg SocketConfig

	ctx    context.Context
	cancel context.CancelFunc

	connMu sync.RWMutex
	conn   *websocket.Conn

	ready     chan struct{}
	readyOnce sync.Once
	closeOnce sync.Once
}

// DialSocket starts the connection loop toward the master relay endpoint and
// waits up to DialTimeout for the first connection. A master that is not up
// yet is not an error: the dialer is returned anyway and keeps retrying in
// the background.
func DialSocket(cfg SocketConfig) (*SocketDialer, error) {
	cfg = cfg.normalize()
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errs.New("relay/socket", errs.CodeInvalidConfig,
			errs.WithField("cluster.masterURL"),
			errs.WithMessage("master relay URL required"))
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := new(SocketDialer)
	d.cfg = cfg
	d.ctx = ctx
	d.cancel = cancel
	d.ready = make(chan struct{})

	go d.connect()

	select {
	case <-d.ready:
	case <-time.After(cfg.DialTimeout):
		diag.Log().Info("relay master not reachable yet; retrying in background",
			diag.Field{Key: "url", Value: cfg.URL})
	}
	return d, nil
}

// connect maintains the websocket connection with automatic reconnection and
// exponential backoff.
func (d *SocketDialer) connect() {
	backoffCfg := backoff.NewExponentialBackOff()

	for {
		select {
		case <-d.ctx.Done():
			return
		default:
		}

		conn, resp, err := websocket.Dial(d.ctx, d.cfg.URL, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			sleep := backoffCfg.NextBackOff()
			select {
			case <-d.ctx.Done():
				return
			case <-time.After(sleep):
				continue
			}
		}

		d.connMu.Lock()
		d.conn = conn
		d.connMu.Unlock()
		d.readyOnce.Do(func() { close(d.ready) })
		backoffCfg.Reset()

		// The dialer never expects inbound traffic; CloseRead keeps the
		// connection's control frames serviced and reports its loss.
		readCtx := conn.CloseRead(d.ctx)
		<-readCtx.Done()

		d.connMu.Lock()
		d.conn = nil
		d.connMu.Unlock()

		if d.ctx.Err() != nil {
			return
		}
		sleep := backoffCfg.NextBackOff()
		select {
		case <-d.ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

// Send writes one envelope over the current connection. A disconnected
// dialer refuses the payload instead of queueing it.
func (d *SocketDialer) Send(ctx context.Context, payload []byte) error {
	if ctx == nil {
		ctx = context.Background()
	}
	d.connMu.RLock()
	conn := d.conn
	d.connMu.RUnlock()
	if conn == nil {
		return errs.New("relay/socket", errs.CodeUnavailable, errs.WithMessage("master connection down"))
	}

	writeCtx, cancel := context.WithTimeout(ctx, d.cfg.WriteTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, payload); err != nil {
		// Force the reconnect loop to notice the broken connection.
		_ = conn.Close(websocket.StatusInternalError, "write failed")
		return errs.New("relay/socket", errs.CodeDelivery,
			errs.WithMessage("envelope write failed"),
			errs.WithCause(err))
	}
	return nil
}

// Receive is not supported on the dialer; workers only send.
func (d *SocketDialer) Receive(context.Context) (<-chan []byte, error) {
	return nil, errs.New("relay/socket", errs.CodeInvalidConfig, errs.WithMessage("dialer transport is send-only"))
}

// Close stops the reconnect loop and drops the connection.
func (d *SocketDialer) Close() error {
	d.closeOnce.Do(func() {
		d.cancel()
		d.connMu.Lock()
		if d.conn != nil {
			_ = d.conn.Close(websocket.StatusNormalClosure, "shutdown")
			d.conn = nil
		}
		d.connMu.Unlock()
	})
	return nil
}

// SocketListener is the master-side transport: an HTTP server accepting
// worker websocket connections and fanning their payloads into the consumer
// channel registered through Receive.
type SocketListener struct {
	cfg SocketConfig

	ctx    context.Context
	cancel context.CancelFunc

	server   *http.Server
	listener net.Listener
	fan      *MemoryTransport

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// ListenSocket binds the relay listener and starts accepting worker
// connections. Binding failures surface immediately.
func ListenSocket(cfg SocketConfig) (*SocketListener, error) {
	cfg = cfg.normalize()
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return nil, errs.New("relay/socket", errs.CodeInvalidConfig,
			errs.WithField("cluster.listen"),
			errs.WithMessage("listen address required"))
	}
	netListener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, errs.New("relay/socket", errs.CodeUnavailable,
			errs.WithField("cluster.listen"),
			errs.WithMessage("bind relay listener"),
			errs.WithCause(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := new(SocketListener)
	l.cfg = cfg
	l.ctx = ctx
	l.cancel = cancel
	l.listener = netListener
	l.fan = NewMemoryTransport(MemoryConfig{BufferSize: cfg.BufferSize})

	mux := http.NewServeMux()
	mux.HandleFunc("/relay", l.handleWorker)
	l.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.server.Serve(netListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			diag.Log().Error("relay listener stopped", diag.Field{Key: "error", Value: err})
		}
	}()
	return l, nil
}

// Addr reports the bound listener address, useful when listening on :0.
func (l *SocketListener) Addr() string {
	return l.listener.Addr().String()
}

func (l *SocketListener) handleWorker(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "shutdown") }()

	for {
		_, payload, err := conn.Read(l.ctx)
		if err != nil {
			return
		}
		// Consumer backpressure drops the payload; forwarding is
		// at-most-once end to end.
		_ = l.fan.Send(l.ctx, payload)
	}
}

// Send is not supported on the listener; the master only receives.
func (l *SocketListener) Send(context.Context, []byte) error {
	return errs.New("relay/socket", errs.CodeInvalidConfig, errs.WithMessage("listener transport is receive-only"))
}

// Receive registers the master-side consumer for forwarded payloads.
func (l *SocketListener) Receive(ctx context.Context) (<-chan []byte, error) {
	return l.fan.Receive(ctx)
}

// Close stops accepting connections, terminates worker sessions, and closes
// consumer channels.
func (l *SocketListener) Close() error {
	l.closeOnce.Do(func() {
		l.cancel()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.server.Shutdown(shutdownCtx)
		l.wg.Wait()
		_ = l.fan.Close()
	})
	return nil
}
