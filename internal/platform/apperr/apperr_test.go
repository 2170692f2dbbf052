package apperr

import (
	"errors"
	"net/http"
	"testing"
)

func TestFromErrorKeepsAppErrors(t *testing.T) {
	base := errors.New("store down")
	wrapped := ServiceUnavailable("store_unavailable", "content store unavailable", base)

	got := FromError(wrapped)
	if got.StatusCode() != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", got.StatusCode())
	}
	if !errors.Is(got, base) {
		t.Fatal("expected wrapped error to unwrap to the cause")
	}
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	got := FromError(errors.New("boom"))
	if got.StatusCode() != http.StatusInternalServerError || got.Code != "internal_error" {
		t.Fatalf("unexpected mapping %+v", got)
	}
	if FromError(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
	var zero *AppError
	if zero.StatusCode() != http.StatusInternalServerError {
		t.Fatal("nil AppError must report 500")
	}
}
