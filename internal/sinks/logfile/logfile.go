// Package logfile implements the rotating on-disk sink backed by lumberjack.
package logfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/coachpo/foghorn/core/message"
	"github.com/coachpo/foghorn/errs"
)

// Config sizes the rotating log file.
type Config struct {
	// Dir holds the log directory; created when absent.
	Dir string
	// AppName names the log file: <dir>/<appName>.log.
	AppName string
	// DaysToKeep bounds rotated file age; 0 keeps rotated files forever.
	DaysToKeep int
	// MaxSizeMB triggers rotation; defaults to 50.
	MaxSizeMB int
}

// Sink appends timestamped, level-tagged lines to a size-rotated file.
// Rotation and retention are delegated to lumberjack.
type Sink struct {
	out *lumberjack.Logger
}

// New prepares the log directory and builds the file sink.
func New(cfg Config) (*Sink, error) {
	dir := strings.TrimSpace(cfg.Dir)
	app := strings.TrimSpace(cfg.AppName)
	if dir == "" || app == "" {
		return nil, errs.New("sink/file", errs.CodeInvalidConfig,
			errs.WithMessage("log directory and application name required"))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.New("sink/file", errs.CodeInvalidConfig,
			errs.WithField("fileLog.dir"),
			errs.WithMessage("create log directory"),
			errs.WithCause(err))
	}
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}
	return &Sink{
		out: &lumberjack.Logger{
			Filename: filepath.Join(dir, app+".log"),
			MaxSize:  maxSize,
			MaxAge:   cfg.DaysToKeep,
			Compress: true,
		},
	}, nil
}

// Path reports the active log file location.
func (s *Sink) Path() string { return s.out.Filename }

// Kind tags the sink as the file family.
func (s *Sink) Kind() message.SinkKind { return message.KindFile }

// Write appends one line to the active log file, rotating when the size
// limit is reached.
func (s *Sink) Write(_ context.Context, msg message.Message) error {
	at := msg.At
	if at.IsZero() {
		at = time.Now()
	}
	line := fmt.Sprintf("%s [%s] %s\n", at.Format(time.RFC3339), msg.Level, msg.Text)
	if _, err := s.out.Write([]byte(line)); err != nil {
		return errs.DeliveryFailed(s.Kind().String(), err)
	}
	return nil
}

// Flush is a no-op: lumberjack writes through to the file.
func (s *Sink) Flush(context.Context) error { return nil }

// Close closes the active log file.
func (s *Sink) Close(context.Context) error {
	return s.out.Close()
}
