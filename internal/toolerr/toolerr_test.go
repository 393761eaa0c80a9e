// Copyright 2025 Joseph Cumines
//
// Tool error unit tests

package toolerr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestKind_Code(t *testing.T) {
	tests := []struct {
		kind Kind
		want codes.Code
	}{
		{KindSystem, codes.Internal},
		{KindValidation, codes.InvalidArgument},
		{KindCommandFailure, codes.Aborted},
		{KindParseFailure, codes.DataLoss},
		{KindDependencyMissing, codes.FailedPrecondition},
		{KindNotFound, codes.NotFound},
		{KindTimeout, codes.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := tt.kind.Code(); got != tt.want {
				t.Errorf("Code() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_StatusFromError(t *testing.T) {
	err := fmt.Errorf("outer: %w", NotFound("Log capture session", "abc"))

	st, ok := status.FromError(err)
	if !ok {
		t.Fatal("status.FromError did not find a status")
	}
	if st.Code() != codes.NotFound {
		t.Errorf("code = %v", st.Code())
	}
	if KindOf(err) != KindNotFound {
		t.Errorf("KindOf = %v", KindOf(err))
	}
}

func TestFrom(t *testing.T) {
	if got := From(nil); got != nil {
		t.Errorf("From(nil) = %v", got)
	}

	tests := []struct {
		name    string
		in      any
		kind    Kind
		message string
	}{
		{"raw string", "boom", KindSystem, "boom"},
		{"arbitrary value", 42, KindSystem, "42"},
		{"deadline", context.DeadlineExceeded, KindTimeout, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := From(tt.in)
			if te.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", te.Kind, tt.kind)
			}
			if tt.message != "" && te.Message != tt.message {
				t.Errorf("Message = %q, want %q", te.Message, tt.message)
			}
		})
	}

	t.Run("plain error", func(t *testing.T) {
		cause := errors.New("spawn failed")
		te := From(cause)
		if te.Kind != KindSystem || !errors.Is(te, cause) {
			t.Errorf("From(plain) = %+v", te)
		}
	})

	t.Run("wrapped tool error is unwrapped", func(t *testing.T) {
		inner := Validation("bad")
		if te := From(fmt.Errorf("ctx: %w", inner)); te != inner {
			t.Errorf("From(wrapped) = %p, want %p", te, inner)
		}
	})
}

func TestProto(t *testing.T) {
	p := Proto(ParseFailure("bad json"))
	if p.GetCode() != int32(codes.DataLoss) || p.GetMessage() != "bad json" {
		t.Errorf("Proto = %v", p)
	}
	if got := Proto(nil).GetCode(); got != int32(codes.OK) {
		t.Errorf("Proto(nil) code = %d", got)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		err  error
		tool string
		want string
	}{
		{"nil", nil, "x", ""},
		{"validation", Validation("missing"), "build_device", "missing"},
		{"remediation", DependencyMissing("axe not found", "Install it"), "tap", "axe not found\nInstall it"},
		{"plain", errors.New("kaboom"), "build_device", "Error in build_device: kaboom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.err, tt.tool); got != tt.want {
				t.Errorf("Format = %q, want %q", got, tt.want)
			}
		})
	}

	if got := Format(ParseFailure("unexpected shape"), "list_sims"); !strings.Contains(got, "Suggestion:") {
		t.Errorf("Format(parse failure) = %q, want a suggestion", got)
	}
}
