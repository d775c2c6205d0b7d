package share

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/dcwire/aircore/pkg/tth"
)

func buildTestTree(t *testing.T, data []byte) *tth.Tree {
	t.Helper()
	tree, err := tth.Build(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("tth.Build: %v", err)
	}
	return tree
}

func TestVerifyBlockAcceptsMatchingLeaf(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, int(tth.MinLeafSize)+10)
	tree := buildTestTree(t, data)

	first := data[:tth.MinLeafSize]
	if !VerifyBlock(tree, 0, first) {
		t.Fatalf("expected the first leaf block to verify")
	}
}

func TestVerifyBlockRejectsCorruptedLeaf(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, int(tth.MinLeafSize)+10)
	tree := buildTestTree(t, data)

	corrupted := make([]byte, tth.MinLeafSize)
	copy(corrupted, data[:tth.MinLeafSize])
	corrupted[0] ^= 0xFF

	if VerifyBlock(tree, 0, corrupted) {
		t.Fatalf("expected a corrupted block to fail verification")
	}
}

func TestRewindToLeafBoundaryReturnsLeafStart(t *testing.T) {
	data := bytes.Repeat([]byte{0x01}, int(tth.MinLeafSize)*3)
	tree := buildTestTree(t, data)

	offset := tth.MinLeafSize*2 + 500
	if got := RewindToLeafBoundary(tree, offset); got != tth.MinLeafSize*2 {
		t.Fatalf("RewindToLeafBoundary(%d) = %d, want %d", offset, got, tth.MinLeafSize*2)
	}
}

func TestFullFileRecheckReportsCompleteForAnUncorruptedFile(t *testing.T) {
	data := bytes.Repeat([]byte{0x7A}, int(tth.MinLeafSize)*2+100)
	tree := buildTestTree(t, data)

	path := filepath.Join(t.TempDir(), "file.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	result, err := FullFileRecheck(path, tree)
	if err != nil {
		t.Fatalf("FullFileRecheck: %v", err)
	}
	if !result.Complete {
		t.Fatalf("expected recheck to report the file complete")
	}
	if result.Verified.Total() != int64(len(data)) {
		t.Fatalf("Verified.Total() = %d, want %d", result.Verified.Total(), len(data))
	}
}

func TestFullFileRecheckExcludesCorruptedLeaf(t *testing.T) {
	data := bytes.Repeat([]byte{0x11}, int(tth.MinLeafSize)*3)
	tree := buildTestTree(t, data)

	corrupted := make([]byte, len(data))
	copy(corrupted, data)
	corrupted[tth.MinLeafSize+5] ^= 0xFF // corrupt the second leaf

	path := filepath.Join(t.TempDir(), "file.bin")
	if err := os.WriteFile(path, corrupted, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	result, err := FullFileRecheck(path, tree)
	if err != nil {
		t.Fatalf("FullFileRecheck: %v", err)
	}
	if result.Complete {
		t.Fatalf("expected an incomplete result when a leaf is corrupted")
	}
	if !result.Verified.Contains(0, tth.MinLeafSize) {
		t.Fatalf("expected the first, uncorrupted leaf to verify")
	}
	if result.Verified.Contains(tth.MinLeafSize, tth.MinLeafSize) {
		t.Fatalf("expected the corrupted leaf to be excluded")
	}
}

func TestFullFileRecheckReturnsErrNoFullTreeWhenTreeMissing(t *testing.T) {
	if _, err := FullFileRecheck("/irrelevant", nil); err != ErrNoFullTree {
		t.Fatalf("err = %v, want ErrNoFullTree", err)
	}
}
