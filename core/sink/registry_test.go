package sink

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coachpo/foghorn/core/message"
	"github.com/coachpo/foghorn/core/silence"
	"github.com/coachpo/foghorn/errs"
)

// stubSink records writes and can be made to fail or stall on demand.
type stubSink struct {
	kind message.SinkKind

	mu      sync.Mutex
	writes  []message.Message
	flushes int
	closes  int

	writeErr   error
	started    chan struct{}
	release    chan struct{}
	closeBlock chan struct{}
}

func newStubSink(kind message.SinkKind) *stubSink {
	return &stubSink{kind: kind}
}

func (s *stubSink) Kind() message.SinkKind { return s.kind }

func (s *stubSink) Write(ctx context.Context, msg message.Message) error {
	if s.started != nil {
		select {
		case s.started <- struct{}{}:
		default:
		}
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		err := s.writeErr
		s.writeErr = nil
		return err
	}
	s.writes = append(s.writes, msg)
	return nil
}

func (s *stubSink) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func (s *stubSink) Close(context.Context) error {
	if s.closeBlock != nil {
		<-s.closeBlock
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *stubSink) snapshot() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]message.Message, len(s.writes))
	copy(out, s.writes)
	return out
}

func waitForWrites(t *testing.T, s *stubSink, want int) []message.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		got := s.snapshot()
		if len(got) >= want {
			return got
		}
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for %d writes, got %d", want, len(got))
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func allowAll() silence.Decision {
	return silence.Decision{Console: true, File: true, Remote: true}
}

func TestRegistryRegisterAndAvailability(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	defer func() { _ = r.FlushAndCloseAll(context.Background()) }()

	if avail := r.Availability(); avail.Any() {
		t.Fatalf("expected empty availability, got %+v", avail)
	}

	if err := r.Register(newStubSink(message.KindConsole)); err != nil {
		t.Fatalf("Register(console) error = %v", err)
	}
	if err := r.Register(newStubSink(message.KindFile)); err != nil {
		t.Fatalf("Register(file) error = %v", err)
	}

	avail := r.Availability()
	if !avail.Console || !avail.File || avail.Remote {
		t.Fatalf("unexpected availability: %+v", avail)
	}
}

func TestRegistryRejectsDuplicateKind(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	defer func() { _ = r.FlushAndCloseAll(context.Background()) }()

	if err := r.Register(newStubSink(message.KindFile)); err != nil {
		t.Fatalf("first Register error = %v", err)
	}
	err := r.Register(newStubSink(message.KindFile))
	if err == nil {
		t.Fatal("expected error registering the file kind twice")
	}
	if errs.CodeOf(err) != errs.CodeInvalidConfig {
		t.Fatalf("expected invalid_config code, got %v", err)
	}
}

func TestRegistryDispatchHonorsDecision(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	defer func() { _ = r.FlushAndCloseAll(context.Background()) }()

	console := newStubSink(message.KindConsole)
	file := newStubSink(message.KindFile)
	if err := r.Register(console); err != nil {
		t.Fatalf("Register(console) error = %v", err)
	}
	if err := r.Register(file); err != nil {
		t.Fatalf("Register(file) error = %v", err)
	}

	msg := message.Message{Level: message.LevelInfo, Text: "file only", At: time.Now()}
	if err := r.Dispatch(context.Background(), msg, silence.Decision{File: true}); err != nil {
		t.Fatalf("Dispatch error = %v", err)
	}

	got := waitForWrites(t, file, 1)
	if got[0].Text != "file only" {
		t.Fatalf("unexpected file write: %+v", got[0])
	}
	if writes := console.snapshot(); len(writes) != 0 {
		t.Fatalf("console should not have received anything, got %d writes", len(writes))
	}
}

func TestRegistryPreservesPerSinkOrder(t *testing.T) {
	r := NewRegistry(RegistryConfig{QueueSize: 64})
	defer func() { _ = r.FlushAndCloseAll(context.Background()) }()

	file := newStubSink(message.KindFile)
	if err := r.Register(file); err != nil {
		t.Fatalf("Register error = %v", err)
	}

	texts := []string{"first", "second", "third", "fourth"}
	for _, text := range texts {
		msg := message.Message{Level: message.LevelInfo, Text: text, At: time.Now()}
		if err := r.Dispatch(context.Background(), msg, allowAll()); err != nil {
			t.Fatalf("Dispatch(%s) error = %v", text, err)
		}
	}

	got := waitForWrites(t, file, len(texts))
	for i, text := range texts {
		if got[i].Text != text {
			t.Fatalf("write %d = %q, want %q", i, got[i].Text, text)
		}
	}
}

func TestRegistryDropsOldestWhenSaturated(t *testing.T) {
	r := NewRegistry(RegistryConfig{QueueSize: 1})
	file := newStubSink(message.KindFile)
	file.started = make(chan struct{}, 1)
	file.release = make(chan struct{})
	if err := r.Register(file); err != nil {
		t.Fatalf("Register error = %v", err)
	}

	dispatch := func(text string) {
		msg := message.Message{Level: message.LevelInfo, Text: text, At: time.Now()}
		if err := r.Dispatch(context.Background(), msg, allowAll()); err != nil {
			t.Fatalf("Dispatch(%s) error = %v", text, err)
		}
	}

	dispatch("in-flight")
	select {
	case <-file.started:
	case <-time.After(time.Second):
		t.Fatal("writer never picked up the first message")
	}

	dispatch("evicted")
	dispatch("kept")

	close(file.release)

	got := waitForWrites(t, file, 2)
	if got[0].Text != "in-flight" || got[1].Text != "kept" {
		t.Fatalf("expected oldest queued message to be evicted, got %+v", got)
	}

	if err := r.FlushAndCloseAll(context.Background()); err != nil {
		t.Fatalf("FlushAndCloseAll error = %v", err)
	}
}

func TestRegistryFlushAndCloseAllDrainsThenCloses(t *testing.T) {
	r := NewRegistry(RegistryConfig{QueueSize: 16})
	file := newStubSink(message.KindFile)
	if err := r.Register(file); err != nil {
		t.Fatalf("Register error = %v", err)
	}

	for i := 0; i < 5; i++ {
		msg := message.Message{Level: message.LevelInfo, Text: "pending", At: time.Now()}
		if err := r.Dispatch(context.Background(), msg, allowAll()); err != nil {
			t.Fatalf("Dispatch error = %v", err)
		}
	}

	if err := r.FlushAndCloseAll(context.Background()); err != nil {
		t.Fatalf("FlushAndCloseAll error = %v", err)
	}

	file.mu.Lock()
	writes, flushes, closes := len(file.writes), file.flushes, file.closes
	file.mu.Unlock()
	if writes != 5 {
		t.Fatalf("expected all queued messages written before close, got %d", writes)
	}
	if flushes != 1 || closes != 1 {
		t.Fatalf("expected one flush and one close, got flushes=%d closes=%d", flushes, closes)
	}

	// Second call must return the captured result without touching the sink.
	if err := r.FlushAndCloseAll(context.Background()); err != nil {
		t.Fatalf("second FlushAndCloseAll error = %v", err)
	}
	file.mu.Lock()
	closes = file.closes
	file.mu.Unlock()
	if closes != 1 {
		t.Fatalf("expected close to run once, got %d", closes)
	}
}

func TestRegistryFlushAndCloseAllAbandonsStuckSink(t *testing.T) {
	r := NewRegistry(RegistryConfig{QueueSize: 4})
	file := newStubSink(message.KindFile)
	file.started = make(chan struct{}, 1)
	file.release = make(chan struct{})
	if err := r.Register(file); err != nil {
		t.Fatalf("Register error = %v", err)
	}

	msg := message.Message{Level: message.LevelInfo, Text: "stuck", At: time.Now()}
	if err := r.Dispatch(context.Background(), msg, allowAll()); err != nil {
		t.Fatalf("Dispatch error = %v", err)
	}
	select {
	case <-file.started:
	case <-time.After(time.Second):
		t.Fatal("writer never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.FlushAndCloseAll(ctx) }()

	select {
	case err := <-done:
		if errs.CodeOf(err) != errs.CodeTimeout {
			t.Fatalf("expected timeout code from abandoned flush, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("FlushAndCloseAll did not resolve")
	}
}

func TestRegistryFlushAndCloseAllAbandonsStuckClose(t *testing.T) {
	r := NewRegistry(RegistryConfig{QueueSize: 4})
	file := newStubSink(message.KindFile)
	file.closeBlock = make(chan struct{})
	defer close(file.closeBlock)
	if err := r.Register(file); err != nil {
		t.Fatalf("Register error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.FlushAndCloseAll(ctx) }()

	select {
	case err := <-done:
		if errs.CodeOf(err) != errs.CodeTimeout {
			t.Fatalf("expected timeout code from stuck close, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("FlushAndCloseAll did not resolve while a close was stuck")
	}
}

func TestRegistryDispatchAfterCloseReturnsClosed(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	if err := r.Register(newStubSink(message.KindConsole)); err != nil {
		t.Fatalf("Register error = %v", err)
	}
	if err := r.FlushAndCloseAll(context.Background()); err != nil {
		t.Fatalf("FlushAndCloseAll error = %v", err)
	}

	msg := message.Message{Level: message.LevelError, Text: "late", At: time.Now()}
	err := r.Dispatch(context.Background(), msg, allowAll())
	if errs.CodeOf(err) != errs.CodeClosed {
		t.Fatalf("expected closed code, got %v", err)
	}
	if err := r.Register(newStubSink(message.KindFile)); errs.CodeOf(err) != errs.CodeClosed {
		t.Fatalf("expected closed code from late Register, got %v", err)
	}
}

func TestRegistryWriteFailureDoesNotStopLane(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	defer func() { _ = r.FlushAndCloseAll(context.Background()) }()

	file := newStubSink(message.KindFile)
	file.writeErr = errors.New("disk full")
	if err := r.Register(file); err != nil {
		t.Fatalf("Register error = %v", err)
	}

	for _, text := range []string{"fails", "lands"} {
		msg := message.Message{Level: message.LevelWarning, Text: text, At: time.Now()}
		if err := r.Dispatch(context.Background(), msg, allowAll()); err != nil {
			t.Fatalf("Dispatch(%s) error = %v", text, err)
		}
	}

	got := waitForWrites(t, file, 1)
	if got[0].Text != "lands" {
		t.Fatalf("expected the second message to land after the failure, got %+v", got)
	}
}

func TestRegistryReportsDeliveryFailureThroughConsole(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	defer func() { _ = r.FlushAndCloseAll(context.Background()) }()

	console := newStubSink(message.KindConsole)
	file := newStubSink(message.KindFile)
	file.writeErr = errors.New("disk full")
	if err := r.Register(console); err != nil {
		t.Fatalf("Register(console) error = %v", err)
	}
	if err := r.Register(file); err != nil {
		t.Fatalf("Register(file) error = %v", err)
	}

	msg := message.Message{Level: message.LevelInfo, Text: "doomed", At: time.Now()}
	if err := r.Dispatch(context.Background(), msg, silence.Decision{File: true}); err != nil {
		t.Fatalf("Dispatch error = %v", err)
	}

	got := waitForWrites(t, console, 1)
	if got[0].Level != message.LevelWarning {
		t.Fatalf("report level = %v, want warning", got[0].Level)
	}
	if !strings.Contains(got[0].Text, "unable to deliver to file sink") {
		t.Fatalf("unexpected report text: %q", got[0].Text)
	}
}

func TestRegistryFailingConsoleDoesNotReportToItself(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	defer func() { _ = r.FlushAndCloseAll(context.Background()) }()

	console := newStubSink(message.KindConsole)
	console.writeErr = errors.New("broken pipe")
	if err := r.Register(console); err != nil {
		t.Fatalf("Register error = %v", err)
	}

	for _, text := range []string{"fails", "lands"} {
		msg := message.Message{Level: message.LevelError, Text: text, At: time.Now()}
		if err := r.Dispatch(context.Background(), msg, allowAll()); err != nil {
			t.Fatalf("Dispatch(%s) error = %v", text, err)
		}
	}

	got := waitForWrites(t, console, 1)
	if got[0].Text != "lands" {
		t.Fatalf("expected only the surviving message, got %+v", got)
	}
}

func TestRegistryConfigNormalize(t *testing.T) {
	cfg := RegistryConfig{QueueSize: 0, FailureReportInterval: 0}
	normalized := cfg.normalize()
	if normalized.QueueSize <= 0 {
		t.Error("expected positive queue size after normalization")
	}
	if normalized.FailureReportInterval <= 0 {
		t.Error("expected positive failure report interval after normalization")
	}
}
