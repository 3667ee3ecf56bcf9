package framed

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestKind_String(t *testing.T) {
	cases := map[Kind]string{
		KindIO:       "io",
		KindEncoding: "encoding",
		KindDecoding: "decoding",
		KindReset:    "reset",
		Kind(99):     "unknown",
	}

	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}

func TestError_Message(t *testing.T) {
	err := &Error{Kind: KindIO, Op: "receive", Err: io.ErrClosedPipe}

	msg := err.Error()
	for _, part := range []string{"framed", "receive", "io", io.ErrClosedPipe.Error()} {
		if !strings.Contains(msg, part) {
			t.Errorf("error message %q missing %q", msg, part)
		}
	}
}

func TestError_Unwrap(t *testing.T) {
	err := &Error{Kind: KindReset, Op: "receive", Err: ErrReset}

	if !errors.Is(err, ErrReset) {
		t.Error("errors.Is failed to see through *Error")
	}

	var connErr *Error
	if !errors.As(error(err), &connErr) {
		t.Error("errors.As failed for *Error")
	}
	if connErr.Kind != KindReset {
		t.Errorf("Kind = %v, want KindReset", connErr.Kind)
	}
}
