package reference

import (
	"strings"
	"testing"
)

func TestNewFormat(t *testing.T) {
	ref := New("TXN")
	if !strings.HasPrefix(ref, "TXN-") {
		t.Fatalf("expected TXN- prefix, got %s", ref)
	}
	parts := strings.Split(ref, "-")
	if len(parts) != 3 {
		t.Fatalf("expected 3 dash-separated parts, got %d (%s)", len(parts), ref)
	}
	if len(parts[2]) != suffixLength {
		t.Fatalf("expected suffix of %d chars, got %q", suffixLength, parts[2])
	}
}

func TestNewAccountNumber(t *testing.T) {
	acc := NewAccountNumber()
	if !strings.HasPrefix(acc, "SOKO-") {
		t.Fatalf("expected SOKO- prefix, got %s", acc)
	}
	if len(acc) != len("SOKO-")+11 {
		t.Fatalf("unexpected account number length: %s", acc)
	}
}

func TestNewCollisionResistance(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		ref := New("ORD")
		if seen[ref] {
			t.Fatalf("duplicate reference generated: %s", ref)
		}
		seen[ref] = true
	}
}
