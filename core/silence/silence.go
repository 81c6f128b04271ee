// Package silence decides which sink families receive a given log call.
//
// The policy is pure: every call produces a fresh Decision value from the
// message level, the per-call options, and the sink availability snapshot.
// Nothing is retained between calls.
package silence

import "github.com/coachpo/foghorn/core/message"

// Availability captures which sink families are currently registered.
type Availability struct {
	Console bool
	File    bool
	Remote  bool
}

// Any reports whether at least one sink family is registered.
func (a Availability) Any() bool {
	return a.Console || a.File || a.Remote
}

// Decision reports, per sink family, whether the message should be delivered.
type Decision struct {
	Console bool
	File    bool
	Remote  bool
}

// Any reports whether at least one sink family receives the message.
func (d Decision) Any() bool {
	return d.Console || d.File || d.Remote
}

// Allows reports whether the decision admits the given sink kind.
func (d Decision) Allows(kind message.SinkKind) bool {
	switch kind {
	case message.KindConsole:
		return d.Console
	case message.KindFile:
		return d.File
	case message.KindRemote:
		return d.Remote
	default:
		return false
	}
}

// Policy holds the configuration-derived silencing rules.
type Policy struct {
	// DisableConsole suppresses the console family for every call.
	DisableConsole bool
	// SendInfoToRemote admits info-level messages to the remote family.
	// Errors and warnings are always remote-eligible; debug never is.
	SendInfoToRemote bool
}

// Resolve computes the delivery decision for one log call.
//
// Resolution proceeds in four steps: start from the availability snapshot,
// remove families the level is not eligible for, then either narrow to a
// single family when an only* option is present (no* options are ignored in
// that case) or drop families suppressed by no* options. Conflicting only*
// options resolve in favor of console, then file, then remote.
func (p Policy) Resolve(lvl message.Level, opts message.Options, avail Availability) Decision {
	d := Decision{
		Console: avail.Console && !p.DisableConsole,
		File:    avail.File,
		Remote:  avail.Remote && p.remoteEligible(lvl),
	}

	if exclusive, ok := opts.Exclusive(); ok {
		// An only* request wins outright; no* options are ignored for
		// the call.
		d.Console = d.Console && exclusive == message.KindConsole
		d.File = d.File && exclusive == message.KindFile
		d.Remote = d.Remote && exclusive == message.KindRemote
		return d
	}

	if opts.NoConsole {
		d.Console = false
	}
	if opts.NoFile {
		d.File = false
	}
	if opts.NoRemote {
		d.Remote = false
	}
	return d
}

func (p Policy) remoteEligible(lvl message.Level) bool {
	switch lvl {
	case message.LevelError, message.LevelWarning:
		return true
	case message.LevelInfo:
		return p.SendInfoToRemote
	case message.LevelDebug:
		return false
	default:
		return false
	}
}
