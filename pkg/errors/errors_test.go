package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"
)

func TestErrorIncludesInternal(t *testing.T) {
	internal := stdErrors.New("boom")
	err := Wrap(internal, "failed")

	if err.Error() != "failed: boom" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
	if !stdErrors.Is(err, internal) {
		t.Fatal("expected errors.Is to see the internal cause")
	}
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", http.StatusBadRequest)
	with := base.WithInternal(stdErrors.New("oops"))

	if with == base {
		t.Fatal("expected WithInternal to return a copy")
	}
	if base.Internal != nil {
		t.Fatal("expected original error to remain unchanged")
	}
	if with.Internal == nil {
		t.Fatal("expected internal error to be set")
	}
}

func TestWithMessageCopies(t *testing.T) {
	with := ErrCodeTooSoon.WithMessage("Please wait 12 seconds before requesting a new code")
	if with == ErrCodeTooSoon {
		t.Fatal("expected WithMessage to return a copy")
	}
	if with.Code != ErrCodeTooSoon.Code {
		t.Fatalf("expected code to carry over, got %s", with.Code)
	}
	if with.Message == ErrCodeTooSoon.Message {
		t.Fatal("expected message to change")
	}
}

func TestFromError(t *testing.T) {
	if out := FromError(ErrCodeInvalid); out != ErrCodeInvalid {
		t.Fatal("expected FromError to return the same AppError instance")
	}

	raw := stdErrors.New("raw")
	out := FromError(raw)
	if out.Code != ErrInternalServer.Code {
		t.Fatalf("expected internal server code, got %s", out.Code)
	}
	if out.Internal == nil {
		t.Fatal("expected internal error to be attached")
	}
}
