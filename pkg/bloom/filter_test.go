package bloom

import (
	"fmt"
	"testing"
)

func genKeys(n int) [][]byte {
	keys := make([][]byte, n)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("tth-key-%d", i))
	}
	return keys
}

func TestNoFalseNegatives(t *testing.T) {
	keys := genKeys(10000)
	f := NewFilter(len(keys), 0.01)
	for _, k := range keys {
		f.Add(k)
	}
	for _, k := range keys {
		if !f.Contains(k) {
			t.Fatalf("filter reported false negative for %q", k)
		}
	}
}

func TestAbsentKeysAreMostlyRejected(t *testing.T) {
	present := genKeys(5000)
	f := NewFilter(len(present), 0.01)
	for _, k := range present {
		f.Add(k)
	}

	falsePositives := 0
	absent := 2000
	for i := 0; i < absent; i++ {
		k := []byte(fmt.Sprintf("absent-key-%d", i))
		if f.Contains(k) {
			falsePositives++
		}
	}

	rate := float64(falsePositives) / float64(absent)
	if rate > 0.05 {
		t.Fatalf("false positive rate %.4f exceeds tolerance for a 0.01-target filter", rate)
	}
}

func TestResetClearsMembership(t *testing.T) {
	f := NewFilter(100, 0.01)
	f.Add([]byte("a"))
	f.Reset()
	if f.Count() != 0 {
		t.Fatal("Reset should clear the item count")
	}
	if f.Contains([]byte("a")) {
		t.Fatal("Reset should clear all bits")
	}
}

func TestCountTracksAdditions(t *testing.T) {
	f := NewFilter(10, 0.01)
	for i := 0; i < 3; i++ {
		f.Add([]byte(fmt.Sprintf("k%d", i)))
	}
	if f.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", f.Count())
	}
}

func TestNewFilterClampsInvalidArguments(t *testing.T) {
	f := NewFilter(0, 0)
	if f == nil || len(f.bits) == 0 {
		t.Fatal("NewFilter should clamp invalid arguments to sane defaults rather than panic")
	}
}
