package sanitize

import "testing"

func TestText(t *testing.T) {
	got := Text("  обсудили   условия \n  перезвонить  ")
	if got != "обсудили условия\nперезвонить" {
		t.Fatalf("unexpected sanitized text: %q", got)
	}
}

func TestTextKeepsAngleBrackets(t *testing.T) {
	in := "бюджет <500к, решение >через месяц"
	if got := Text(in); got != in {
		t.Fatalf("expected text to be kept verbatim, got %q", got)
	}
}

func TestEscapeHTML(t *testing.T) {
	if got := EscapeHTML(`ООО "Рога & Копыта" <test>`); got != `ООО "Рога &amp; Копыта" &lt;test&gt;` {
		t.Fatalf("unexpected escape: %q", got)
	}
}
