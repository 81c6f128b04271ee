package message

// Level classifies log messages for sink routing and syslog mapping.
type Level int

const (
	// LevelError represents failures that require operator attention.
	LevelError Level = iota
	// LevelWarning represents recoverable anomalies.
	LevelWarning
	// LevelInfo represents routine operational notices.
	LevelInfo
	// LevelDebug represents diagnostic output gated by debug rank.
	LevelDebug
)

// Severity returns the RFC 5424 numerical severity for the level.
func (l Level) Severity() int {
	switch l {
	case LevelError:
		return 3
	case LevelWarning:
		return 4
	case LevelInfo:
		return 6
	case LevelDebug:
		return 7
	default:
		return 6
	}
}

// String returns the symbolic name for the level.
func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	default:
		return "unknown"
	}
}
