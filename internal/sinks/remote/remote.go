// Package remote implements the syslog-style network sink.
package remote

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/coachpo/foghorn/core/message"
	"github.com/coachpo/foghorn/errs"
)

// facilityUser is the syslog "user-level" facility the sink emits under.
const facilityUser = 1

// Config addresses the remote collector.
type Config struct {
	// Host and Port locate the collector.
	Host string
	Port int
	// Network selects udp, tcp, or tls.
	Network string
	// Protocol selects bsd or 5424 framing.
	Protocol string
	// AppName tags every frame.
	AppName string
	// Hostname overrides the local hostname in frames; defaults to
	// os.Hostname.
	Hostname string
	// DialTimeout bounds each connection attempt.
	DialTimeout time.Duration
	// TLSConfig customizes the tls transport; nil uses defaults.
	TLSConfig *tls.Config
}

func (c Config) normalize() (Config, error) {
	c.Host = strings.TrimSpace(c.Host)
	c.AppName = strings.TrimSpace(c.AppName)
	if c.Host == "" || c.Port < 1 || c.Port > 65535 || c.AppName == "" {
		return c, errs.New("sink/syslog", errs.CodeInvalidConfig,
			errs.WithMessage("host, port, and application name required"))
	}
	switch c.Network {
	case "udp", "tcp", "tls":
	default:
		return c, errs.New("sink/syslog", errs.CodeInvalidConfig,
			errs.WithField("sysLog.transport"),
			errs.WithMessage("transport must be udp, tcp, or tls"))
	}
	switch c.Protocol {
	case "", "bsd":
		c.Protocol = "bsd"
	case "5424":
	default:
		return c, errs.New("sink/syslog", errs.CodeInvalidConfig,
			errs.WithField("sysLog.protocol"),
			errs.WithMessage("protocol must be bsd or 5424"))
	}
	if c.Hostname == "" {
		if h, err := os.Hostname(); err == nil {
			c.Hostname = h
		} else {
			c.Hostname = "localhost"
		}
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	return c, nil
}

// Sink frames messages in syslog style and writes them over a lazily
// maintained connection. A lost connection is redialed on the next write,
// paced by exponential backoff; writes attempted inside the backoff window
// fail fast so the registry can isolate them.
type Sink struct {
	cfg  Config
	addr string
	pid  int

	mu          sync.Mutex
	conn        net.Conn
	retry       *backoff.ExponentialBackOff
	nextAttempt time.Time
	closed      bool
}

// New validates the collector address and builds the sink. The first
// connection is made lazily on the first write, so an unreachable collector
// does not fail initialization.
func New(cfg Config) (*Sink, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	return &Sink{
		cfg:   cfg,
		addr:  net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		pid:   os.Getpid(),
		retry: backoff.NewExponentialBackOff(),
	}, nil
}

// Kind tags the sink as the remote family.
func (s *Sink) Kind() message.SinkKind { return message.KindRemote }

// Write frames and sends one message. Failures surface to the registry and
// never block beyond the dial timeout.
func (s *Sink) Write(_ context.Context, msg message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errs.New("sink/syslog", errs.CodeClosed, errs.WithMessage("sink closed"))
	}
	if err := s.ensureConnLocked(); err != nil {
		return err
	}
	if _, err := s.conn.Write(s.frame(msg)); err != nil {
		_ = s.conn.Close()
		s.conn = nil
		s.nextAttempt = time.Now().Add(s.retry.NextBackOff())
		return errs.DeliveryFailed(s.Kind().String(), err)
	}
	return nil
}

// Flush is a no-op; frames are written through.
func (s *Sink) Flush(context.Context) error { return nil }

// Close drops the collector connection.
func (s *Sink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

func (s *Sink) ensureConnLocked() error {
	if s.conn != nil {
		return nil
	}
	if time.Now().Before(s.nextAttempt) {
		return errs.New("sink/syslog", errs.CodeUnavailable,
			errs.WithSink(s.Kind().String()),
			errs.WithMessage("collector unreachable, retry pending"))
	}

	var conn net.Conn
	var err error
	switch s.cfg.Network {
	case "tls":
		dialer := &net.Dialer{Timeout: s.cfg.DialTimeout}
		conn, err = tls.DialWithDialer(dialer, "tcp", s.addr, s.cfg.TLSConfig)
	default:
		conn, err = net.DialTimeout(s.cfg.Network, s.addr, s.cfg.DialTimeout)
	}
	if err != nil {
		s.nextAttempt = time.Now().Add(s.retry.NextBackOff())
		return errs.New("sink/syslog", errs.CodeUnavailable,
			errs.WithSink(s.Kind().String()),
			errs.WithMessage("dial collector"),
			errs.WithCause(err))
	}
	s.conn = conn
	s.retry.Reset()
	s.nextAttempt = time.Time{}
	return nil
}

// frame renders one syslog packet. Stream transports get newline framing;
// datagrams are sent bare.
func (s *Sink) frame(msg message.Message) []byte {
	at := msg.At
	if at.IsZero() {
		at = time.Now()
	}
	pri := facilityUser*8 + msg.Level.Severity()

	var line string
	switch s.cfg.Protocol {
	case "5424":
		line = fmt.Sprintf("<%d>1 %s %s %s %d - - %s",
			pri, at.Format(time.RFC3339), s.cfg.Hostname, s.cfg.AppName, s.pid, msg.Text)
	default:
		line = fmt.Sprintf("<%d>%s %s %s[%d]: %s",
			pri, at.Format(time.Stamp), s.cfg.Hostname, s.cfg.AppName, s.pid, msg.Text)
	}
	if s.cfg.Network != "udp" {
		line += "\n"
	}
	return []byte(line)
}
