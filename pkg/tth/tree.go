package tth

import (
	"io"
)

// MinLeafSize is the smallest block size a tree will ever use, regardless
// of file size.
const MinLeafSize int64 = 64 * 1024 // 64 KiB

// MaxLeaves bounds the number of leaves a single tree may have. LeafSize
// doubles from MinLeafSize until the file fits within this many leaves, so
// a multi-terabyte file still produces a tree of manageable depth.
const MaxLeaves = 1 << 16

// LeafSize returns the block size a tree over a file of the given length
// would use: the smallest power-of-two multiple of MinLeafSize such that
// the resulting leaf count does not exceed MaxLeaves.
func LeafSize(fileSize int64) int64 {
	if fileSize <= 0 {
		return MinLeafSize
	}
	size := MinLeafSize
	for (fileSize+size-1)/size > MaxLeaves {
		size *= 2
	}
	return size
}

// Tree is a Tiger Tree Hash Merkle tree computed over a file's contents.
type Tree struct {
	leafSize int64
	fileSize int64
	leaves   []Sum
	root     Sum
}

// LeafSize returns the block size used for this tree's leaves.
func (t *Tree) LeafSize() int64 { return t.leafSize }

// FileSize returns the file length this tree was built over. Zero for a
// tree reconstructed via FromLeaves without a known size.
func (t *Tree) FileSize() int64 { return t.fileSize }

// NumLeaves returns the number of leaf hashes in the tree.
func (t *Tree) NumLeaves() int { return len(t.leaves) }

// Leaf returns the hash of the i-th leaf block.
func (t *Tree) Leaf(i int) Sum { return t.leaves[i] }

// Root returns the TTH root of the tree.
func (t *Tree) Root() Sum { return t.root }

// Build computes a Tree by streaming r, which must yield exactly fileSize
// bytes. The leaf size is chosen by LeafSize.
func Build(r io.Reader, fileSize int64) (*Tree, error) {
	leafSize := LeafSize(fileSize)
	numLeaves := int((fileSize + leafSize - 1) / leafSize)
	if numLeaves == 0 {
		numLeaves = 1
	}

	leaves := make([]Sum, 0, numLeaves)
	buf := make([]byte, leafSize)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			leaves = append(leaves, leafHash(buf[:n]))
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	if len(leaves) == 0 {
		leaves = append(leaves, leafHash(nil))
	}

	return &Tree{
		leafSize: leafSize,
		fileSize: fileSize,
		leaves:   leaves,
		root:     rootOf(leaves),
	}, nil
}

// FromLeaves reconstructs a Tree from already-computed leaf hashes, as read
// back from a persisted hash cache or a peer's leaf list response.
func FromLeaves(leafSize int64, leaves []Sum) *Tree {
	cp := make([]Sum, len(leaves))
	copy(cp, leaves)
	return &Tree{
		leafSize: leafSize,
		leaves:   cp,
		root:     rootOf(cp),
	}
}

// leafHash computes Tiger(0x00 || block).
func leafHash(block []byte) Sum {
	h := New()
	h.Write([]byte{0x00})
	h.Write(block)
	var s Sum
	copy(s[:], h.Sum(nil))
	return s
}

// nodeHash computes Tiger(0x01 || left || right).
func nodeHash(left, right Sum) Sum {
	h := New()
	h.Write([]byte{0x01})
	h.Write(left[:])
	h.Write(right[:])
	var s Sum
	copy(s[:], h.Sum(nil))
	return s
}

// rootOf folds a level of hashes up to a single root. An odd hash at any
// level is promoted unchanged to the next level, matching the classic
// Tiger Tree construction where unpaired nodes are not rehashed.
func rootOf(level []Sum) Sum {
	if len(level) == 0 {
		return leafHash(nil)
	}
	for len(level) > 1 {
		next := make([]Sum, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, nodeHash(level[i], level[i+1]))
			} else {
				next = append(next, level[i])
			}
		}
		level = next
	}
	return level[0]
}

// VerifyLeaf reports whether block hashes to the i-th leaf recorded in the
// tree, without recomputing the root.
func (t *Tree) VerifyLeaf(i int, block []byte) bool {
	if i < 0 || i >= len(t.leaves) {
		return false
	}
	return leafHash(block) == t.leaves[i]
}

// LeafRange returns the byte offset and length covered by leaf i.
func (t *Tree) LeafRange(i int) (offset, length int64) {
	offset = int64(i) * t.leafSize
	length = t.leafSize
	if t.fileSize > 0 {
		if remaining := t.fileSize - offset; remaining < length {
			length = remaining
		}
	}
	return offset, length
}
