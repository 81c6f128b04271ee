package message

import "testing"

func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelError, "error"},
		{LevelWarning, "warning"},
		{LevelInfo, "info"},
		{LevelDebug, "debug"},
		{Level(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevelSeverity(t *testing.T) {
	tests := []struct {
		name  string
		level Level
		want  int
	}{
		{"error maps to err", LevelError, 3},
		{"warning maps to warning", LevelWarning, 4},
		{"info maps to informational", LevelInfo, 6},
		{"debug maps to debug", LevelDebug, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.level.Severity(); got != tt.want {
				t.Errorf("Level.Severity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSinkKindString(t *testing.T) {
	tests := []struct {
		kind SinkKind
		want string
	}{
		{KindConsole, "console"},
		{KindFile, "file"},
		{KindRemote, "syslog"},
		{SinkKind(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("SinkKind.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOptionsExclusivePrecedence(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		want    SinkKind
		wantSet bool
	}{
		{"none set", Options{}, KindConsole, false},
		{"only console", Options{OnlyConsole: true}, KindConsole, true},
		{"only file", Options{OnlyFile: true}, KindFile, true},
		{"only remote", Options{OnlyRemote: true}, KindRemote, true},
		{"console beats file", Options{OnlyConsole: true, OnlyFile: true}, KindConsole, true},
		{"console beats remote", Options{OnlyConsole: true, OnlyRemote: true}, KindConsole, true},
		{"file beats remote", Options{OnlyFile: true, OnlyRemote: true}, KindFile, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, set := tt.opts.Exclusive()
			if set != tt.wantSet {
				t.Fatalf("Options.Exclusive() set = %v, want %v", set, tt.wantSet)
			}
			if set && got != tt.want {
				t.Errorf("Options.Exclusive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOptionsZero(t *testing.T) {
	if !(Options{}).Zero() {
		t.Fatal("expected empty options to be zero")
	}
	if (Options{NoFile: true}).Zero() {
		t.Fatal("expected populated options to be non-zero")
	}
}
