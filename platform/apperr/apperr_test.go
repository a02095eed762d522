package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{NotFound("missing"), http.StatusNotFound},
		{Validation("bad"), http.StatusBadRequest},
		{Conflict("closed"), http.StatusConflict},
		{TooManyRequests("slow down"), http.StatusTooManyRequests},
		{Unauthorized("invalid internal key"), http.StatusUnauthorized},
		{Forbidden("invalid signature"), http.StatusForbidden},
		{Persistence("sessions.merge", errors.New("boom")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.err.HTTPStatus(); got != tc.want {
			t.Fatalf("expected %d for %v, got %d", tc.want, tc.err, got)
		}
	}
}

func TestGetKindUnwrapsChains(t *testing.T) {
	base := Conflict("session is closed")
	wrapped := fmt.Errorf("submit step: %w", base)
	if !Is(wrapped, KindConflict) {
		t.Fatalf("expected wrapped conflict to be detected, got kind %v", GetKind(wrapped))
	}
	if GetKind(errors.New("plain")) != KindUnknown {
		t.Fatal("expected plain errors to be KindUnknown")
	}
}

func TestPersistenceKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Persistence("leads.upsert_score", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected persistence error to unwrap to its cause")
	}
	if err.Error() != "leads.upsert_score: storage failure" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
