package message

// SinkKind identifies one of the fixed sink families a message can reach.
type SinkKind int

const (
	// KindConsole represents the process stdout/stderr sink.
	KindConsole SinkKind = iota
	// KindFile represents the rotating on-disk sink.
	KindFile
	// KindRemote represents the remote syslog sink.
	KindRemote
)

// String returns the symbolic name for the sink kind.
func (k SinkKind) String() string {
	switch k {
	case KindConsole:
		return "console"
	case KindFile:
		return "file"
	case KindRemote:
		return "syslog"
	default:
		return "unknown"
	}
}
