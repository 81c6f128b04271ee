// Package message defines the canonical log message structures shared across Foghorn.
package message

import "time"

// Message represents one log call travelling through the Foghorn pipeline.
// Messages are immutable once built; every sink observes the same value.
type Message struct {
	Level     Level
	Text      string
	DebugRank int
	At        time.Time
}

// Options carries the per-call silencing requests attached to a log call.
//
// The no* fields suppress individual destinations. The only* fields restrict
// delivery to a single destination; when several only* fields are set at
// once, console wins over file, and file wins over remote.
type Options struct {
	NoConsole bool `json:"no_console,omitempty" yaml:"noConsole"`
	NoFile    bool `json:"no_file,omitempty" yaml:"noFile"`
	NoRemote  bool `json:"no_remote,omitempty" yaml:"noSysLog"`

	OnlyConsole bool `json:"only_console,omitempty" yaml:"onlyConsole"`
	OnlyFile    bool `json:"only_file,omitempty" yaml:"onlyFile"`
	OnlyRemote  bool `json:"only_remote,omitempty" yaml:"onlySysLog"`
}

// Exclusive resolves the only* fields to a single destination. The boolean
// reports whether any only* field was set.
func (o Options) Exclusive() (SinkKind, bool) {
	switch {
	case o.OnlyConsole:
		return KindConsole, true
	case o.OnlyFile:
		return KindFile, true
	case o.OnlyRemote:
		return KindRemote, true
	default:
		return KindConsole, false
	}
}

// Zero reports whether no silencing request is present.
func (o Options) Zero() bool {
	return o == Options{}
}
