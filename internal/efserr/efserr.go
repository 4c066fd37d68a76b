// Package efserr defines the command-scoped error taxonomy shared by every
// EFS layer: crypto primitive, name map, path translator, file store, share
// registry and command surface.
package efserr

import (
	"fmt"

	goerrors "github.com/agilira/go-errors"
)

// Kind classifies an Error into one of a small set of categories every
// command handler can react to uniformly.
type Kind string

const (
	// BadInput covers illegal characters, missing operands and bad filenames.
	BadInput Kind = "bad_input"
	// NotFound covers missing files, directories or users.
	NotFound Kind = "not_found"
	// Forbidden covers jail violations.
	Forbidden Kind = "forbidden"
	// Duplicate covers name collisions and repeated shares.
	Duplicate Kind = "duplicate"
	// IntegrityFailure covers a failed AEAD tag verification.
	IntegrityFailure Kind = "integrity_failure"
	// IoFailure covers filesystem and metadata I/O errors.
	IoFailure Kind = "io_failure"
	// CryptoInit covers cipher context setup failures.
	CryptoInit Kind = "crypto_init"
)

// codes maps each Kind onto a go-errors ErrorCode, the way agilira-orpheus's
// pkg/orpheus/errors.go assigns an ORFxxxx code per error category.
var codes = map[Kind]goerrors.ErrorCode{
	BadInput:         "EFS1000",
	NotFound:         "EFS1001",
	Forbidden:        "EFS1002",
	Duplicate:        "EFS1003",
	IntegrityFailure: "EFS1004",
	IoFailure:        "EFS1005",
	CryptoInit:       "EFS1006",
}

// Error is the single error type every EFS command handler returns.
type Error struct {
	Kind    Kind
	Command string // the command being processed, e.g. "mkfile"
	Path    string // virtual or randomized path, if applicable
	inner   *goerrors.Error
}

// New creates a command-scoped error of the given kind.
func New(kind Kind, command, message string) *Error {
	inner := goerrors.New(codes[kind], message).
		WithContext("command", command).
		WithSeverity(severityFor(kind))
	return &Error{Kind: kind, Command: command, inner: inner}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, command, format string, args ...any) *Error {
	return New(kind, command, fmt.Sprintf(format, args...))
}

// Wrap attaches a kind and command to an underlying error.
func Wrap(kind Kind, command string, err error) *Error {
	if err == nil {
		return nil
	}
	inner := goerrors.New(codes[kind], err.Error()).
		WithContext("command", command).
		WithSeverity(severityFor(kind))
	return &Error{Kind: kind, Command: command, inner: inner}
}

func severityFor(kind Kind) string {
	switch kind {
	case IntegrityFailure, CryptoInit:
		return "critical"
	case IoFailure:
		return "error"
	default:
		return "warning"
	}
}

// WithPath records the virtual or randomized path the error concerns.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	e.inner.WithContext("path", path)
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Command, e.Path, e.inner.Error())
	}
	return fmt.Sprintf("%s: %s", e.Command, e.inner.Error())
}

// Unwrap exposes the underlying go-errors value for errors.As/Is chains.
func (e *Error) Unwrap() error {
	return e.inner
}

// UserMessage returns the short diagnostic the REPL prints at the prompt.
func (e *Error) UserMessage() string {
	return e.inner.Error()
}

// Fatal reports whether this kind represents an unrecoverable failure of
// the crypto layer rather than an ordinary user-facing rejection. The
// REPL does not exit on these: it prints them like any other command
// error and keeps running.
func (e *Error) Fatal() bool {
	return e.Kind == IntegrityFailure || e.Kind == CryptoInit
}

// Is reports whether err is an *Error of the given kind. Only a direct
// *Error matches; wrapped errors are not unwrapped.
func Is(err error, kind Kind) bool {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	} else {
		return false
	}
	return e.Kind == kind
}
