// Command foghorn runs the logging facility as a standalone process: a
// cluster master collecting forwarded log calls, a worker forwarding its
// own, or a plain standalone logger. Stdin lines of the form
// "level message..." are logged through the configured sinks.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/coachpo/foghorn/config"
	"github.com/coachpo/foghorn/core/message"
	"github.com/coachpo/foghorn/internal/diag"
	"github.com/coachpo/foghorn/lib/telemetry"
	"github.com/coachpo/foghorn/logger"
)

const (
	defaultConfigPath        = "config/foghorn.yaml"
	telemetryShutdownTimeout = 5 * time.Second
	finalizeTimeout          = 15 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the foghorn configuration file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stderr := log.New(os.Stderr, "foghorn ", log.LstdFlags)
	diag.SetLogger(stderrDiag{out: stderr})

	settings, loadedFromFile, err := config.LoadOrDefault(*configPath)
	if err != nil {
		stderr.Fatalf("load config: %v", err)
	}
	if !loadedFromFile {
		stderr.Printf("configuration file not found, using defaults and environment")
	}

	_, telemetryShutdown, err := telemetry.Init(ctx, settings.Telemetry)
	if err != nil {
		stderr.Fatalf("initialize telemetry: %v", err)
	}

	instance, err := logger.New(ctx, settings)
	if err != nil {
		stderr.Fatalf("initialize logger: %v", err)
	}
	stderr.Printf("logger initialized: app=%s role=%s", settings.AppName, instance.Role())

	runStdinLoop(ctx, instance)

	finalizeCtx, finalizeCancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer finalizeCancel()
	if err := instance.Finalize(finalizeCtx); err != nil {
		stderr.Printf("finalize: %v", err)
	}

	telemetryCtx, telemetryCancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer telemetryCancel()
	if err := telemetryShutdown(telemetryCtx); err != nil {
		stderr.Printf("telemetry shutdown: %v", err)
	}
	stderr.Printf("shutdown complete")
}

// stderrDiag surfaces the facility's internal diagnostics on stderr.
type stderrDiag struct {
	out *log.Logger
}

func (d stderrDiag) Info(msg string, fields ...diag.Field)  { d.out.Print(renderDiag(msg, fields)) }
func (d stderrDiag) Error(msg string, fields ...diag.Field) { d.out.Print(renderDiag(msg, fields)) }

func renderDiag(msg string, fields []diag.Field) string {
	var b strings.Builder
	b.WriteString(msg)
	for _, f := range fields {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	return b.String()
}

// runStdinLoop logs each stdin line until EOF or a shutdown signal. Lines
// are "level text...", with an optional numeric rank after a debug level.
func runStdinLoop(ctx context.Context, instance *logger.Logger) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			logLine(instance, line)
		}
	}
}

func logLine(instance *logger.Logger, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	fields := strings.SplitN(line, " ", 2)
	levelName := strings.ToLower(fields[0])
	text := ""
	if len(fields) > 1 {
		text = fields[1]
	}

	switch levelName {
	case "error":
		instance.Error(text)
	case "warn", "warning":
		instance.Warning(text)
	case "info":
		instance.Info(text)
	case "debug":
		rank := 1
		if rest := strings.SplitN(text, " ", 2); len(rest) > 0 {
			if n, err := strconv.Atoi(rest[0]); err == nil {
				rank = n
				if len(rest) > 1 {
					text = rest[1]
				} else {
					text = ""
				}
			}
		}
		instance.Debug(rank, text)
	default:
		// No level prefix: treat the whole line as info.
		instance.Notify(context.Background(), message.LevelInfo, line)
	}
}
