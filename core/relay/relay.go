// Package relay carries log calls from cluster worker processes to the
// master process that owns the sinks.
package relay

import (
	"context"
	"strings"

	"github.com/coachpo/foghorn/errs"
)

// Role identifies the process position within a cluster.
type Role int

const (
	// RoleNone marks a standalone process that owns its sinks directly.
	RoleNone Role = iota
	// RoleMaster marks the process that owns the sinks and receives
	// forwarded log calls.
	RoleMaster
	// RoleWorker marks a process that forwards every log call to the master
	// instead of writing locally.
	RoleWorker
)

// String returns the symbolic name for the role.
func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleMaster:
		return "master"
	case RoleWorker:
		return "worker"
	default:
		return "unknown"
	}
}

// ParseRole maps a configuration string onto a Role. The empty string maps
// to RoleNone.
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return RoleNone, nil
	case "master":
		return RoleMaster, nil
	case "worker":
		return RoleWorker, nil
	default:
		return RoleNone, errs.New("relay/role", errs.CodeInvalidConfig,
			errs.WithField("cluster.role"),
			errs.WithMessage("role must be master or worker"))
	}
}

// Transport moves encoded envelopes between processes. Implementations are
// interchangeable: the in-memory transport serves single-binary clusters and
// tests, the websocket transport serves real multi-process deployments.
type Transport interface {
	// Send publishes one encoded envelope. Send never blocks indefinitely;
	// it honors the context and reports backpressure as an error.
	Send(ctx context.Context, payload []byte) error
	// Receive registers a consumer and returns its payload channel. The
	// channel closes when the context ends or the transport shuts down.
	Receive(ctx context.Context) (<-chan []byte, error)
	// Close releases the transport. Payload channels close as a result.
	Close() error
}
