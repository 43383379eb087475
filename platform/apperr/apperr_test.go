package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := Persistence("ledger write failed", errors.New("quota")).WithOp("ledgersync.Upsert")
	wrapped := fmt.Errorf("import row 3: %w", base)

	if !Is(wrapped, KindPersistence) {
		t.Fatalf("expected persistence kind, got %v", GetKind(wrapped))
	}
	if GetKind(errors.New("plain")) != KindUnknown {
		t.Fatal("plain errors have no kind")
	}
	if got := base.Error(); got != "ledgersync.Upsert: ledger write failed: quota" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestHTTPStatusAndName(t *testing.T) {
	cases := []struct {
		err    *Error
		status int
		name   string
	}{
		{Validation("x"), http.StatusBadRequest, "validation"},
		{NotFound("x"), http.StatusNotFound, "not_found"},
		{Unavailable("x", nil), http.StatusServiceUnavailable, "unavailable"},
		{Persistence("x", nil), http.StatusBadGateway, "persistence"},
		{Conflict("x"), http.StatusConflict, "conflict"},
		{Internal("x"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		if tc.err.HTTPStatus() != tc.status || tc.err.Kind.String() != tc.name {
			t.Fatalf("%s: got %d %q", tc.name, tc.err.HTTPStatus(), tc.err.Kind.String())
		}
	}
}
