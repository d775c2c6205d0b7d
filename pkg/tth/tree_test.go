package tth

import (
	"bytes"
	"testing"
)

func TestLeafSizeGrowsWithFileSize(t *testing.T) {
	tests := []struct {
		name     string
		fileSize int64
	}{
		{"empty", 0},
		{"small", 1024},
		{"one leaf worth", MinLeafSize},
		{"huge", MinLeafSize * MaxLeaves * 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size := LeafSize(tt.fileSize)
			if size < MinLeafSize {
				t.Fatalf("LeafSize(%d) = %d, below minimum %d", tt.fileSize, size, MinLeafSize)
			}
			if size&(size-1) != 0 {
				t.Fatalf("LeafSize(%d) = %d is not a power of two multiple of the minimum", tt.fileSize, size)
			}
			if tt.fileSize > 0 {
				leaves := (tt.fileSize + size - 1) / size
				if leaves > MaxLeaves {
					t.Fatalf("LeafSize(%d) = %d yields %d leaves, exceeds budget %d", tt.fileSize, size, leaves, MaxLeaves)
				}
			}
		})
	}
}

func TestBuildRootIsDeterministic(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefgh"), 100000)

	tree1, err := Build(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	tree2, err := Build(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if tree1.Root() != tree2.Root() {
		t.Fatal("building the same content twice produced different roots")
	}
}

func TestBuildSingleLeafFile(t *testing.T) {
	data := []byte("small file content")
	tree, err := Build(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if tree.NumLeaves() != 1 {
		t.Fatalf("NumLeaves() = %d, want 1", tree.NumLeaves())
	}
	if tree.Root() != tree.Leaf(0) {
		t.Fatal("root of a single-leaf tree must equal the leaf itself")
	}
}

func TestBuildMultiLeafFile(t *testing.T) {
	leafSize := LeafSize(0)
	data := bytes.Repeat([]byte{0x42}, int(leafSize*3+10))

	tree, err := Build(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if tree.NumLeaves() != 4 {
		t.Fatalf("NumLeaves() = %d, want 4", tree.NumLeaves())
	}

	offset, length := tree.LeafRange(3)
	if offset != leafSize*3 {
		t.Fatalf("LeafRange(3) offset = %d, want %d", offset, leafSize*3)
	}
	if length != 10 {
		t.Fatalf("LeafRange(3) length = %d, want 10", length)
	}
}

func TestVerifyLeafDetectsCorruption(t *testing.T) {
	leafSize := LeafSize(0)
	block := bytes.Repeat([]byte{0x01}, int(leafSize))
	tree, err := Build(bytes.NewReader(block), int64(len(block)))
	if err != nil {
		t.Fatal(err)
	}

	if !tree.VerifyLeaf(0, block) {
		t.Fatal("VerifyLeaf rejected the original block")
	}

	corrupted := bytes.Repeat([]byte{0x02}, int(leafSize))
	if tree.VerifyLeaf(0, corrupted) {
		t.Fatal("VerifyLeaf accepted corrupted block content")
	}
}

func TestFromLeavesReproducesRoot(t *testing.T) {
	leafSize := LeafSize(0)
	data := bytes.Repeat([]byte{0x07}, int(leafSize*5))

	built, err := Build(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}

	leaves := make([]Sum, built.NumLeaves())
	for i := range leaves {
		leaves[i] = built.Leaf(i)
	}

	reconstructed := FromLeaves(leafSize, leaves)
	if reconstructed.Root() != built.Root() {
		t.Fatal("reconstructing from leaf hashes produced a different root")
	}
}

func TestOddLeafCountPromotesUnpairedNode(t *testing.T) {
	leafSize := LeafSize(0)
	data := bytes.Repeat([]byte{0x09}, int(leafSize*3))

	tree, err := Build(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if tree.NumLeaves() != 3 {
		t.Fatalf("NumLeaves() = %d, want 3", tree.NumLeaves())
	}

	want := nodeHash(nodeHash(tree.Leaf(0), tree.Leaf(1)), tree.Leaf(2))
	if tree.Root() != want {
		t.Fatal("odd leaf was not promoted unchanged to the next level")
	}
}
