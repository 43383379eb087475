package phone

import "testing"

func TestNormalizeE164(t *testing.T) {
	if got := NormalizeE164("8 (916) 123-45-67"); got != "+79161234567" {
		t.Fatalf("expected +79161234567, got %q", got)
	}
	if got := NormalizeE164("  call me maybe "); got != "call me maybe" {
		t.Fatalf("expected unparsable input to be trimmed and kept, got %q", got)
	}
	if got := NormalizeE164(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
