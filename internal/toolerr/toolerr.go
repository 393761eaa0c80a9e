// Copyright 2025 Joseph Cumines
//
// Package toolerr defines the single error type used across plugins.
//
// Every failure a plugin can hit is reduced to a Kind, which maps onto a gRPC
// status code. Downstream code (the response normalizer, the audit log, the
// JSON-RPC error path) inspects the Kind or the status code and never needs
// to look at the concrete error value again.
package toolerr

import (
	"context"
	"errors"
	"fmt"

	spb "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind classifies a tool error.
type Kind int

const (
	// KindSystem is any unexpected failure (the default).
	KindSystem Kind = iota
	// KindValidation indicates bad or missing caller parameters.
	KindValidation
	// KindCommandFailure indicates an external command ran and reported failure.
	KindCommandFailure
	// KindParseFailure indicates expected structured output could not be extracted.
	KindParseFailure
	// KindDependencyMissing indicates a required external binary is unavailable.
	KindDependencyMissing
	// KindNotFound indicates a referenced resource (e.g. a log session) does not exist.
	KindNotFound
	// KindTimeout indicates the command deadline elapsed.
	KindTimeout
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindCommandFailure:
		return "command_failure"
	case KindParseFailure:
		return "parse_failure"
	case KindDependencyMissing:
		return "dependency_missing"
	case KindNotFound:
		return "not_found"
	case KindTimeout:
		return "timeout"
	default:
		return "system"
	}
}

// Code maps the kind onto a gRPC status code.
func (k Kind) Code() codes.Code {
	switch k {
	case KindValidation:
		return codes.InvalidArgument
	case KindCommandFailure:
		return codes.Aborted
	case KindParseFailure:
		return codes.DataLoss
	case KindDependencyMissing:
		return codes.FailedPrecondition
	case KindNotFound:
		return codes.NotFound
	case KindTimeout:
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

// Error is a classified tool error.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Error struct {
	Kind        Kind
	Message     string
	Remediation string
	Cause       error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// GRPCStatus allows status.FromError / status.Code to understand tool errors.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Kind.Code(), e.Message)
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// Validationf creates a validation error with formatting.
func Validationf(format string, args ...any) *Error {
	return newf(KindValidation, format, args...)
}

// CommandFailure creates a command failure error.
func CommandFailure(message string) *Error {
	return &Error{Kind: KindCommandFailure, Message: message}
}

// CommandFailuref creates a command failure error with formatting.
func CommandFailuref(format string, args ...any) *Error {
	return newf(KindCommandFailure, format, args...)
}

// ParseFailure creates a parse failure error.
func ParseFailure(message string) *Error {
	return &Error{Kind: KindParseFailure, Message: message}
}

// ParseFailuref creates a parse failure error with formatting.
func ParseFailuref(format string, args ...any) *Error {
	return newf(KindParseFailure, format, args...)
}

// DependencyMissing creates an error for an unavailable external binary,
// carrying installation guidance.
func DependencyMissing(message, remediation string) *Error {
	return &Error{Kind: KindDependencyMissing, Message: message, Remediation: remediation}
}

// NotFound creates a not found error.
func NotFound(what, name string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found: %s", what, name)}
}

// System wraps an unexpected error.
func System(err error) *Error {
	return &Error{Kind: KindSystem, Message: err.Error(), Cause: err}
}

// Wrap wraps err as the given kind, prefixing message.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf("%s: %v", message, err), Cause: err}
}

// KindOf returns the kind of err, defaulting to KindSystem.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindSystem
}

// From normalizes any value (typically recovered from a panic, or returned
// from a handler) into an *Error. Non-error values are stringified.
func From(v any) *Error {
	switch x := v.(type) {
	case nil:
		return nil
	case *Error:
		return x
	case error:
		var te *Error
		if errors.As(x, &te) {
			return te
		}
		if errors.Is(x, context.DeadlineExceeded) {
			return &Error{Kind: KindTimeout, Message: "command timed out: " + x.Error(), Cause: x}
		}
		return System(x)
	case string:
		return &Error{Kind: KindSystem, Message: x}
	default:
		return &Error{Kind: KindSystem, Message: fmt.Sprint(x)}
	}
}

// Proto converts err into a google.rpc.Status message.
func Proto(err error) *spb.Status {
	if err == nil {
		return status.New(codes.OK, "").Proto()
	}
	return From(err).GRPCStatus().Proto()
}

// Format renders err for a tool response, with a suggestion keyed off the
// status code. Validation and not-found errors are returned verbatim, since
// their messages are already addressed to the caller.
func Format(err error, tool string) string {
	if err == nil {
		return ""
	}
	te := From(err)

	switch te.Kind {
	case KindValidation, KindNotFound:
		return te.Message
	case KindDependencyMissing:
		if te.Remediation != "" {
			return te.Message + "\n" + te.Remediation
		}
		return te.Message
	}

	code := te.Kind.Code()
	suggestion := ""
	switch code {
	case codes.DeadlineExceeded:
		suggestion = "The command did not finish in time. Increase XCODEBUILD_MCP_COMMAND_TIMEOUT or simplify the request"
	case codes.DataLoss:
		suggestion = "The tool output could not be parsed. Make sure the project has been built and the tool versions are supported"
	case codes.Aborted:
		suggestion = "The external command reported failure. Check the output above for details"
	}

	result := fmt.Sprintf("Error in %s: %s", tool, te.Message)
	if te.Remediation != "" {
		result += "\n" + te.Remediation
	} else if suggestion != "" {
		result += "\nSuggestion: " + suggestion
	}
	return result
}
