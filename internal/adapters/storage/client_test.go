package storage

import (
	"strings"
	"testing"
	"time"
)

func TestObjectKey(t *testing.T) {
	at := time.Date(2025, 2, 1, 23, 30, 0, 0, time.UTC)
	key := ObjectKey(42, `C:\Users\op\База клиентов.CSV`, at)
	if !strings.HasPrefix(key, "imports/42/2025-02-01/База клиентов_") || !strings.HasSuffix(key, ".csv") {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestValidateImportFile(t *testing.T) {
	if err := ValidateImportFile("leads.csv", 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateImportFile("leads.xlsx", 100); err == nil {
		t.Fatal("expected xlsx to be rejected")
	}
	if err := ValidateImportFile("leads.csv", MaxImportSize+1); err == nil {
		t.Fatal("expected oversized file to be rejected")
	}
	if err := ValidateImportFile("leads.csv", 0); err == nil {
		t.Fatal("expected empty file to be rejected")
	}
}
