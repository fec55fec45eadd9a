package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	e := New(ErrValidation, "bad input")
	if got := e.Error(); got != "[EVAL-001] bad input" {
		t.Errorf("Error() = %q", got)
	}

	wrapped := Wrap(ErrStorage, "query failed", fmt.Errorf("disk full"))
	if got := wrapped.Error(); got != "[ESTO-001] query failed: disk full" {
		t.Errorf("Error() = %q", got)
	}
}

func TestUnwrapChain(t *testing.T) {
	cause := fmt.Errorf("root cause")
	e := Wrap(ErrRuleQuery, "rule scan failed", cause)

	if !stderrors.Is(e, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if !Is(e, ErrRuleQuery) {
		t.Error("Is should match the error's own code")
	}
	if Is(e, ErrAuth) {
		t.Error("Is should not match an unrelated code")
	}
}

func TestIsFindsNestedCode(t *testing.T) {
	inner := New(ErrNotFound, "no such alert")
	outer := Wrap(ErrRule, "apply failed", inner)

	if !Is(outer, ErrNotFound) {
		t.Error("Is should walk the chain to the inner code")
	}
	if GetCode(outer) != ErrRule {
		t.Errorf("GetCode = %s, want the outermost code", GetCode(outer))
	}
}

func TestWithDetails(t *testing.T) {
	e := New(ErrConflict, "duplicate").WithDetails("key", "BRUTE_FORCE:1.2.3.4")
	if e.Details["key"] != "BRUTE_FORCE:1.2.3.4" {
		t.Errorf("details = %v", e.Details)
	}
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[ErrorCode]int{
		ErrValidation:   http.StatusBadRequest,
		ErrInvalidCreds: http.StatusUnauthorized,
		ErrLockout:      http.StatusTooManyRequests,
		ErrNotFound:     http.StatusNotFound,
		ErrMergeFailed:  http.StatusConflict,
		"ERULE-099":     http.StatusInternalServerError, // prefix fallback
		"EWHAT-001":     http.StatusInternalServerError, // unknown category
	}
	for code, want := range cases {
		if got := ToHTTPStatus(code); got != want {
			t.Errorf("ToHTTPStatus(%s) = %d, want %d", code, got, want)
		}
	}
}
