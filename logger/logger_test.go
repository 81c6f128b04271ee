package logger

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coachpo/foghorn/config"
	"github.com/coachpo/foghorn/core/message"
	"github.com/coachpo/foghorn/errs"
)

func consoleOnly(t *testing.T) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := New(context.Background(), config.New("t"), WithConsoleWriter(&buf))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return l, &buf
}

func finalize(t *testing.T, l *Logger) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Finalize(ctx); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
}

func TestLevelHelpersWriteTaggedLines(t *testing.T) {
	l, buf := consoleOnly(t)
	l.Error("broke")
	l.Warning("wobbly")
	l.Info("fine")
	finalize(t, l)

	out := buf.String()
	for _, want := range []string{"[error] broke", "[warning] wobbly", "[info] fine"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestDebugGatedByLevel(t *testing.T) {
	l, buf := consoleOnly(t)
	l.Debug(1, "hidden")
	l.SetDebugLevel(2)
	l.Debug(2, "visible")
	l.Debug(3, "still hidden")
	finalize(t, l)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("gated debug leaked: %q", out)
	}
	if !strings.Contains(out, "[debug] visible") {
		t.Fatalf("admitted debug missing: %q", out)
	}
}

func TestSetDebugLevelClampsNegative(t *testing.T) {
	l, _ := consoleOnly(t)
	defer finalize(t, l)
	l.SetDebugLevel(-2)
	if got := l.DebugLevel(); got != 0 {
		t.Fatalf("DebugLevel() = %d, want 0", got)
	}
}

func TestInvalidSettingsFailAtomically(t *testing.T) {
	days := 40
	settings := config.New("t")
	settings.FileLog = &config.FileLogSettings{DaysToKeep: &days}

	l, err := New(context.Background(), settings)
	if errs.CodeOf(err) != errs.CodeInvalidConfig {
		t.Fatalf("expected invalid config, got %v", err)
	}
	if l != nil {
		t.Fatal("expected nil instance on failed construction")
	}
}

func TestDisabledConsoleNeverReceivesWrites(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	l, err := New(context.Background(),
		config.New("t", config.WithoutConsole(), config.WithFileLog(dir, 0)),
		WithConsoleWriter(&buf))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if l.Settings().DisableConsole != true {
		t.Fatal("settings lost the console toggle")
	}
	l.Error("quiet")
	finalize(t, l)

	if buf.Len() != 0 {
		t.Fatalf("disabled console received output: %q", buf.String())
	}
	data, err := os.ReadFile(filepath.Join(dir, "t.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "[error] quiet") {
		t.Fatalf("file sink missing the message: %q", string(data))
	}
}

func TestNotifyAfterFinalizeIsNoOp(t *testing.T) {
	l, buf := consoleOnly(t)
	finalize(t, l)
	l.Error("late")
	if strings.Contains(buf.String(), "late") {
		t.Fatalf("write after finalize: %q", buf.String())
	}
}

func TestFinalizeIdempotent(t *testing.T) {
	l, _ := consoleOnly(t)
	finalize(t, l)
	if err := l.Finalize(context.Background()); err != nil {
		t.Fatalf("second Finalize() error = %v", err)
	}
}

func TestInfoReachesRemoteOnlyWithOptIn(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	defer func() { _ = pc.Close() }()
	host, portStr, _ := net.SplitHostPort(pc.LocalAddr().String())
	port, _ := strconv.Atoi(portStr)

	l, err := New(context.Background(),
		config.New("t", config.WithoutConsole(), config.WithSysLog(host, port, config.TransportUDP, true)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.Info("hello")
	l.Debug(1, "hi") // debug level 0: dropped before any sink
	finalize(t, l)

	buf := make([]byte, 1024)
	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read datagram: %v", err)
	}
	if got := string(buf[:n]); !strings.Contains(got, "hello") {
		t.Fatalf("datagram = %q", got)
	}

	_ = pc.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if n, _, err := pc.ReadFrom(buf); err == nil {
		t.Fatalf("unexpected extra datagram: %q", string(buf[:n]))
	}
}

func TestInfoSilencedOnRemoteWithoutOptIn(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	defer func() { _ = pc.Close() }()
	host, portStr, _ := net.SplitHostPort(pc.LocalAddr().String())
	port, _ := strconv.Atoi(portStr)

	l, err := New(context.Background(),
		config.New("t", config.WithoutConsole(), config.WithSysLog(host, port, config.TransportUDP, false)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.Info("quiet")
	l.Error("loud")
	finalize(t, l)

	buf := make([]byte, 1024)
	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read datagram: %v", err)
	}
	got := string(buf[:n])
	if strings.Contains(got, "quiet") || !strings.Contains(got, "loud") {
		t.Fatalf("datagram = %q, want the error only", got)
	}
}

func TestOnlyConsoleSilencesOtherSinksForOneCall(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	l, err := New(context.Background(),
		config.New("t", config.WithFileLog(dir, 7)),
		WithConsoleWriter(&buf))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.Error("console only", message.Options{OnlyConsole: true})
	l.Error("everywhere")
	finalize(t, l)

	data := readLogFile(t, dir, "t")
	if strings.Contains(data, "console only") {
		t.Fatalf("onlyConsole leaked to file: %q", data)
	}
	if !strings.Contains(data, "everywhere") {
		t.Fatalf("subsequent call missing from file: %q", data)
	}
	if !strings.Contains(buf.String(), "console only") || !strings.Contains(buf.String(), "everywhere") {
		t.Fatalf("console output = %q", buf.String())
	}
}

func readLogFile(t *testing.T, dir, app string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, app+".log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(data)
}

func TestDefaultInstanceLifecycle(t *testing.T) {
	var fallback bytes.Buffer
	orig := defaultFallback
	defaultFallback = &fallback
	defer func() { defaultFallback = orig }()

	// No instance: helpers fall back to a console line.
	Error("orphaned")
	if got := fallback.String(); got != "[error] orphaned\n" {
		t.Fatalf("fallback = %q", got)
	}
	Error("muted", message.Options{NoConsole: true})
	if strings.Contains(fallback.String(), "muted") {
		t.Fatalf("noConsole fallback leaked: %q", fallback.String())
	}

	var buf bytes.Buffer
	if err := Init(context.Background(), config.New("t"), WithConsoleWriter(&buf)); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if Default() == nil {
		t.Fatal("Default() = nil after Init")
	}
	if err := Init(context.Background(), config.New("t")); errs.CodeOf(err) != errs.CodeInvalidConfig {
		t.Fatalf("expected second Init to be rejected, got %v", err)
	}

	Warning("routed")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := Finalize(ctx); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if !strings.Contains(buf.String(), "[warning] routed") {
		t.Fatalf("console output = %q", buf.String())
	}
	if Default() != nil {
		t.Fatal("Default() not cleared by Finalize")
	}
	if err := Finalize(context.Background()); err != nil {
		t.Fatalf("Finalize() with empty slot error = %v", err)
	}

	// Slot is clean: helpers fall back again.
	fallback.Reset()
	Info("orphaned again")
	if !strings.Contains(fallback.String(), "[info] orphaned again") {
		t.Fatalf("fallback after finalize = %q", fallback.String())
	}
}
