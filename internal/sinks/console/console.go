// Package console implements the terminal sink.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/coachpo/foghorn/core/message"
)

// Sink writes level-tagged lines to a terminal stream. No color, no
// buffering: every Write reaches the stream before returning.
type Sink struct {
	mu sync.Mutex
	w  io.Writer
}

// New builds a console sink. A nil writer selects stdout.
func New(w io.Writer) *Sink {
	if w == nil {
		w = os.Stdout
	}
	return &Sink{w: w}
}

// Kind tags the sink as the console family.
func (s *Sink) Kind() message.SinkKind { return message.KindConsole }

// Write emits one line: timestamp, level tag, text.
func (s *Sink) Write(_ context.Context, msg message.Message) error {
	at := msg.At
	if at.IsZero() {
		at = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "%s [%s] %s\n", at.Format(time.RFC3339), msg.Level, msg.Text)
	return err
}

// Flush is a no-op; writes are unbuffered.
func (s *Sink) Flush(context.Context) error { return nil }

// Close is a no-op; the sink does not own the stream.
func (s *Sink) Close(context.Context) error { return nil }
