// Package rconerrors defines the typed error kinds the RCON core surfaces,
// following the same oops-wrapping style the teacher uses in
// internal/clickhouse/migrations.go for driver errors.
package rconerrors

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Kind is one of the typed error kinds from spec.md §7.
type Kind string

const (
	KindConnectionFailed   Kind = "CONNECTION_FAILED"
	KindAuthFailed         Kind = "AUTH_FAILED"
	KindTimeout            Kind = "TIMEOUT"
	KindInvalidResponse    Kind = "INVALID_RESPONSE"
	KindNotConnected       Kind = "NOT_CONNECTED"
	KindCommandFailed      Kind = "COMMAND_FAILED"
	KindInvalidCredentials Kind = "INVALID_CREDENTIALS"

	KindScheduleNotFound      Kind = "SCHEDULE_NOT_FOUND"
	KindScheduleAlreadyExists Kind = "SCHEDULE_ALREADY_EXISTS"
	KindInvalidCronExpression Kind = "INVALID_CRON_EXPRESSION"
	KindInvalidCommand        Kind = "INVALID_COMMAND"
	KindExecutionFailed       Kind = "EXECUTION_FAILED"
	KindServerNotAvailable    Kind = "SERVER_NOT_AVAILABLE"
	KindSchedulerNotStarted   Kind = "SCHEDULER_NOT_STARTED"
)

const codeTag = "rcon_error_kind"

// New builds a Kind-tagged error via oops, the same wrapping shape the
// teacher uses for its migration/driver errors.
func New(kind Kind, format string, args ...interface{}) error {
	return oops.
		With(codeTag, string(kind)).
		Errorf(format, args...)
}

// Wrap attaches a Kind to an existing error without discarding it.
func Wrap(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return oops.
		With(codeTag, string(kind)).
		Wrapf(err, format, args...)
}

// WrapUnknown wraps a non-error rejection value (e.g. a recovered panic or a
// value from an interface{} channel) as an error before it is logged, per
// spec.md §7's "every catch that touches an unknown value must wrap
// non-error values as an error before logging" rule.
func WrapUnknown(kind Kind, v interface{}) error {
	if err, ok := v.(error); ok {
		return Wrap(kind, err, "rcon error")
	}
	return New(kind, "rcon error: %v", v)
}

// KindOf extracts the Kind tag from an error produced by New/Wrap, if any.
func KindOf(err error) (Kind, bool) {
	var oopsErr oops.OopsError
	if errors.As(err, &oopsErr) {
		if raw, ok := oopsErr.Context()[codeTag]; ok {
			if kind, ok := raw.(string); ok {
				return Kind(kind), true
			}
		}
	}
	return "", false
}

// Is reports whether err was tagged with the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// ErrEmptyCommand is returned by both protocols for empty/whitespace-only
// commands, fast, without touching the wire.
var ErrEmptyCommand = fmt.Errorf("command cannot be empty")
