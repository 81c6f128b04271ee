package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/coachpo/foghorn/errs"
)

// MemoryConfig configures the in-memory transport buffer sizing.
type MemoryConfig struct {
	BufferSize int
}

func (c MemoryConfig) normalize() MemoryConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = 64
	}
	return c
}

// MemoryTransport provides an in-process transport backed by bounded
// channels. It serves single-binary clusters and tests.
type MemoryTransport struct {
	cfg MemoryConfig

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	consumers []*consumer
	once      sync.Once
}

type consumer struct {
	ctx    context.Context
	cancel context.CancelFunc
	ch     chan []byte
	once   sync.Once
}

// NewMemoryTransport constructs a memory-backed transport.
func NewMemoryTransport(cfg MemoryConfig) *MemoryTransport {
	cfg = cfg.normalize()
	ctx, cancel := context.WithCancel(context.Background())
	t := new(MemoryTransport)
	t.cfg = cfg
	t.ctx = ctx
	t.cancel = cancel
	return t
}

// Send delivers the payload to every active consumer without waiting for a
// reply. Consumers with full queues miss the payload; Send errors only when
// nobody received it.
func (t *MemoryTransport) Send(ctx context.Context, payload []byte) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(payload) == 0 {
		return errs.New("relay/memory", errs.CodeDelivery, errs.WithMessage("payload required"))
	}

	t.mu.RLock()
	consumers := append([]*consumer(nil), t.consumers...)
	t.mu.RUnlock()
	if len(consumers) == 0 {
		return errs.New("relay/memory", errs.CodeUnavailable, errs.WithMessage("no receivers attached"))
	}

	delivered := 0
	for _, con := range consumers {
		if con == nil || con.ctx.Err() != nil {
			continue
		}
		if err := t.enqueue(ctx, con, payload); err == nil {
			delivered++
		}
	}
	if delivered == 0 {
		return errs.New("relay/memory", errs.CodeUnavailable, errs.WithMessage("no active receivers accepted the payload"))
	}
	return nil
}

// Receive registers a transport consumer backed by a bounded queue.
func (t *MemoryTransport) Receive(ctx context.Context) (<-chan []byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if t.ctx.Err() != nil {
		return nil, errs.New("relay/memory", errs.CodeClosed, errs.WithMessage("transport closed"))
	}
	ctx, cancel := context.WithCancel(ctx)
	con := new(consumer)
	con.ctx = ctx
	con.cancel = cancel
	con.ch = make(chan []byte, t.cfg.BufferSize)

	t.mu.Lock()
	t.consumers = append(t.consumers, con)
	t.mu.Unlock()

	go t.observe(con)
	return con.ch, nil
}

// Close shuts down the transport and closes every consumer channel.
func (t *MemoryTransport) Close() error {
	t.once.Do(func() {
		t.cancel()
		t.mu.Lock()
		for _, con := range t.consumers {
			if con != nil {
				con.close()
			}
		}
		t.consumers = nil
		t.mu.Unlock()
	})
	return nil
}

func (t *MemoryTransport) observe(con *consumer) {
	<-con.ctx.Done()
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, candidate := range t.consumers {
		if candidate == con {
			t.consumers = append(t.consumers[:i], t.consumers[i+1:]...)
			break
		}
	}
	con.close()
}

func (t *MemoryTransport) enqueue(ctx context.Context, con *consumer, payload []byte) (err error) {
	defer func() {
		// The send can race a consumer closing its channel; the payload is
		// lost and must not be counted as delivered.
		if r := recover(); r != nil {
			err = errs.New("relay/memory", errs.CodeUnavailable, errs.WithMessage("receiver closed"))
		}
	}()
	select {
	case <-t.ctx.Done():
		return errs.New("relay/memory", errs.CodeClosed, errs.WithMessage("transport closed"))
	case <-ctx.Done():
		return fmt.Errorf("enqueue context: %w", ctx.Err())
	case <-con.ctx.Done():
		return errs.New("relay/memory", errs.CodeUnavailable, errs.WithMessage("receiver closed"))
	case con.ch <- payload:
		return nil
	default:
		return errs.New("relay/memory", errs.CodeUnavailable, errs.WithMessage("receiver queue full"))
	}
}

func (c *consumer) close() {
	c.once.Do(func() {
		c.cancel()
		close(c.ch)
	})
}
