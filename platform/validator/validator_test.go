package validator

import "testing"

func TestTaxIDRule(t *testing.T) {
	v := New()
	cases := map[string]bool{
		"7707083893":   true,
		"770708389312": true,
		"123456789":    false,
		"12345678901":  false,
		"77070838ab":   false,
		"":             false,
	}
	for in, want := range cases {
		err := v.Var(in, "taxid")
		if (err == nil) != want {
			t.Fatalf("taxid %q: expected valid=%v, got err=%v", in, want, err)
		}
	}
}

func TestDateRule(t *testing.T) {
	v := New()
	if err := v.Var("01.02.25", "ddmmyy"); err != nil {
		t.Fatalf("expected 01.02.25 to be valid: %v", err)
	}
	for _, in := range []string{"31.02.25", "2025-02-01", "1.2.25", ""} {
		if err := v.Var(in, "ddmmyy"); err == nil {
			t.Fatalf("expected %q to be rejected", in)
		}
	}
}
