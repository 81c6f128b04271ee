// Package sink defines the sink collaborator contract and the registry that
// owns every registered sink.
package sink

import (
	"context"

	"github.com/coachpo/foghorn/core/message"
)

// Sink is the contract every log destination implements. The set of sink
// families is closed: each implementation tags itself with one of the fixed
// message.SinkKind values and the registry holds at most one sink per kind.
type Sink interface {
	// Kind tags the sink for routing and failure reporting.
	Kind() message.SinkKind
	// Write delivers one message. The registry serializes calls per sink, so
	// implementations never see concurrent writes.
	Write(ctx context.Context, msg message.Message) error
	// Flush forces buffered output to its destination.
	Flush(ctx context.Context) error
	// Close releases the sink's resources. Close implies a final flush.
	Close(ctx context.Context) error
}
