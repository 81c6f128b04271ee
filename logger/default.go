package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/coachpo/foghorn/config"
	"github.com/coachpo/foghorn/core/message"
	"github.com/coachpo/foghorn/errs"
)

// defaultInstance holds the process-wide logger slot. One initialize/finalize
// cycle may use the slot at a time; callers coordinate re-initialization.
var defaultInstance atomic.Pointer[Logger]

// defaultFallback receives level-tagged lines emitted by the package helpers
// when no default instance is initialized.
var defaultFallback io.Writer = os.Stdout

// Init builds the process-wide default logger. It fails when a default
// instance is already active; Finalize clears the slot.
func Init(ctx context.Context, settings config.Settings, opts ...Option) error {
	instance, err := New(ctx, settings, opts...)
	if err != nil {
		return err
	}
	if !defaultInstance.CompareAndSwap(nil, instance) {
		_ = instance.Finalize(ctx)
		return errs.New("logger", errs.CodeInvalidConfig,
			errs.WithMessage("default logger already initialized"))
	}
	return nil
}

// Default returns the active default logger, or nil when none is
// initialized.
func Default() *Logger {
	return defaultInstance.Load()
}

// Finalize retires the default logger and clears the slot so a later Init
// starts clean. Calling it with no active instance is a no-op.
func Finalize(ctx context.Context) error {
	instance := defaultInstance.Swap(nil)
	if instance == nil {
		return nil
	}
	return instance.Finalize(ctx)
}

// Notify routes one log call through the default instance. With no instance
// active it falls back to a level-tagged line on stdout, unless the per-call
// options silence the console.
func Notify(ctx context.Context, level message.Level, text string, opts ...message.Options) {
	if instance := defaultInstance.Load(); instance != nil {
		instance.Notify(ctx, level, text, opts...)
		return
	}
	if level == message.LevelDebug {
		return
	}
	fallbackLine(level, text, mergeOptions(opts))
}

// Error logs at error level through the default instance.
func Error(text string, opts ...message.Options) {
	Notify(context.Background(), message.LevelError, text, opts...)
}

// Warning logs at warning level through the default instance.
func Warning(text string, opts ...message.Options) {
	Notify(context.Background(), message.LevelWarning, text, opts...)
}

// Info logs at info level through the default instance.
func Info(text string, opts ...message.Options) {
	Notify(context.Background(), message.LevelInfo, text, opts...)
}

// Debug logs at debug level through the default instance. Without an active
// instance there is no debug threshold, so the call is dropped.
func Debug(rank int, text string, opts ...message.Options) {
	if instance := defaultInstance.Load(); instance != nil {
		instance.Debug(rank, text, opts...)
	}
}

// SetDebugLevel adjusts the default instance's debug rank ceiling; a no-op
// when no instance is active.
func SetDebugLevel(n int) {
	if instance := defaultInstance.Load(); instance != nil {
		instance.SetDebugLevel(n)
	}
}

func fallbackLine(level message.Level, text string, opts message.Options) {
	if opts.NoConsole {
		return
	}
	if exclusive, ok := opts.Exclusive(); ok && exclusive != message.KindConsole {
		return
	}
	fmt.Fprintf(defaultFallback, "[%s] %s\n", level, text)
}
