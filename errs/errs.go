// Package errs provides structured error types and helpers for Foghorn components.
package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Code identifies a logging-facility error category.
type Code string

const (
	// CodeInvalidConfig indicates configuration rejected before any sink was built.
	CodeInvalidConfig Code = "invalid_config"
	// CodeDelivery indicates a sink failed to write or flush a message.
	CodeDelivery Code = "delivery"
	// CodeUnavailable indicates a transport endpoint is temporarily unreachable.
	CodeUnavailable Code = "unavailable"
	// CodeClosed indicates an operation against an already finalized component.
	CodeClosed Code = "closed"
	// CodeTimeout indicates a bounded operation exceeded its deadline.
	CodeTimeout Code = "timeout"
)

// E captures structured error information produced across the Foghorn stack.
type E struct {
	Component   string
	Code        Code
	Field       string
	Sink        string
	Message     string
	Remediation string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the component and error code.
func New(component string, code Code, opts ...Option) *E {
	e := &E{
		Component:   strings.TrimSpace(component),
		Code:        code,
		Field:       "",
		Sink:        "",
		Message:     "",
		Remediation: "",
		cause:       nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithField records the configuration field that failed validation.
func WithField(field string) Option {
	trimmed := strings.TrimSpace(field)
	return func(e *E) {
		e.Field = trimmed
	}
}

// WithSink records the sink kind involved in a delivery failure.
func WithSink(sink string) Option {
	trimmed := strings.TrimSpace(sink)
	return func(e *E) {
		e.Sink = trimmed
	}
}

// WithRemediation attaches remediation guidance to the error.
func WithRemediation(remediation string) Option {
	trimmed := strings.TrimSpace(remediation)
	return func(e *E) {
		e.Remediation = trimmed
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	component := strings.TrimSpace(e.Component)
	if component == "" {
		component = "unknown"
	}
	parts = append(parts, "component="+component)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.Field != "" {
		parts = append(parts, "field="+e.Field)
	}
	if e.Sink != "" {
		parts = append(parts, "sink="+e.Sink)
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.Remediation != "" {
		parts = append(parts, "remediation="+strconv.Quote(e.Remediation))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// CodeOf extracts the error code from err, or an empty Code when err does not
// carry an envelope.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) && e != nil {
		return e.Code
	}
	return ""
}

// InvalidConfig returns a standardized configuration rejection for the field.
func InvalidConfig(field, msg string) *E {
	return New("config", CodeInvalidConfig, WithField(field), WithMessage(msg))
}

// DeliveryFailed returns a standardized delivery failure for the sink kind.
func DeliveryFailed(sink string, cause error) *E {
	return New("sink/"+strings.TrimSpace(sink), CodeDelivery, WithSink(sink), WithCause(cause))
}
