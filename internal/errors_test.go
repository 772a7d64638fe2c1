package internal

import (
	"errors"
	"net/http"
	"os"
	"testing"
)

func TestAssertion(t *testing.T) {
	os.Setenv("TYPINGD_DEBUG", "1")
	shouldPanic := true
	shouldNotPanic := false

	try(t, shouldNotPanic, func() {
		Assert("true does nothing", true)
	})
	try(t, shouldPanic, func() {
		Assert("false panics", false)
	})

	os.Setenv("TYPINGD_DEBUG", "0")
	try(t, shouldNotPanic, func() {
		Assert("true does nothing", true)
	})
	try(t, shouldNotPanic, func() {
		Assert("false does not panic if TYPINGD_DEBUG is not 1", false)
	})
}

func TestHandlerErrorJSON(t *testing.T) {
	herr := BadRequest("bad narrow: %s", "nope")
	if herr.StatusCode != http.StatusBadRequest {
		t.Fatalf("got status %d want %d", herr.StatusCode, http.StatusBadRequest)
	}
	want := `{"error":"HTTP 400 : bad narrow: nope"}`
	if got := string(herr.JSON()); got != want {
		t.Errorf("got %s want %s", got, want)
	}
	var target *HandlerError
	if !errors.As(error(herr), &target) {
		t.Errorf("errors.As failed to find HandlerError")
	}
}

func try(t *testing.T, shouldPanic bool, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		err := recover()
		if err != nil {
			if shouldPanic {
				return
			}
			t.Fatalf("panic: %s", err)
		} else {
			if shouldPanic {
				t.Fatalf("function did not panic")
			}
		}
	}()
	fn()
}
