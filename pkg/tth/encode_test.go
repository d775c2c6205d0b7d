package tth

import "testing"

func TestStringRoundTrip(t *testing.T) {
	h := New()
	h.Write([]byte("round trip me"))
	var sum Sum
	copy(sum[:], h.Sum(nil))

	encoded := sum.String()
	if len(encoded) != 39 {
		t.Fatalf("encoded length = %d, want 39", len(encoded))
	}

	decoded, err := ParseSum(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if decoded != sum {
		t.Fatal("round trip through String/ParseSum changed the value")
	}
}

func TestParseSumRejectsInvalidInput(t *testing.T) {
	if _, err := ParseSum("not-base32!!"); err == nil {
		t.Fatal("expected an error for invalid base32 input")
	}
	if _, err := ParseSum("AAAA"); err == nil {
		t.Fatal("expected an error for a value decoding to the wrong length")
	}
}

func TestIsZero(t *testing.T) {
	var zero Sum
	if !zero.IsZero() {
		t.Fatal("zero value should report IsZero")
	}
	h := New()
	h.Write([]byte("x"))
	var sum Sum
	copy(sum[:], h.Sum(nil))
	if sum.IsZero() {
		t.Fatal("non-zero digest reported IsZero")
	}
}
