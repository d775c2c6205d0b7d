package share

import (
	"errors"
	"io"
	"os"

	"github.com/dcwire/aircore/pkg/segment"
	"github.com/dcwire/aircore/pkg/tth"
)

// ErrNoFullTree is returned by FullFileRecheck when the caller has no
// stored leaf hashes to verify against, so the downloaded bytes cannot be
// trusted without redownloading from scratch.
var ErrNoFullTree = errors.New("share: no full tree available for recheck")

// VerifyBlock checks a just-downloaded block against its leaf hash in
// tree. On mismatch, the caller must discard the block and rewind its
// segment tracking to the start of the enclosing leaf so the retried
// request re-fetches the whole block rather than leaving a corrupt
// fragment recorded as downloaded.
func VerifyBlock(tree *tth.Tree, leafIndex int, block []byte) bool {
	return tree.VerifyLeaf(leafIndex, block)
}

// LeafForOffset returns the index of the leaf block containing offset,
// used to map a completed download segment back to the leaf it must be
// verified against.
func LeafForOffset(tree *tth.Tree, offset int64) int {
	if tree.LeafSize() <= 0 {
		return 0
	}
	return int(offset / tree.LeafSize())
}

// RewindToLeafBoundary returns the start offset of the leaf containing
// offset, the point a corrupted block's download must restart from.
func RewindToLeafBoundary(tree *tth.Tree, offset int64) int64 {
	start, _ := tree.LeafRange(LeafForOffset(tree, offset))
	return start
}

// RecheckResult summarizes a full-file recheck.
type RecheckResult struct {
	Verified *segment.Set // byte ranges confirmed to match the stored tree
	Complete bool         // true once Verified covers the whole file
}

// FullFileRecheck streams path leaf by leaf, comparing each block against
// tree, and returns the subset of the file that verified correctly. The
// caller replaces the queue item's downloaded segment set with the result:
// a full match leaves the download complete, a partial match credits
// every leaf that verified and leaves the rest to be redownloaded.
//
// If the on-disk file is shorter than tree expects, recheck stops at
// end-of-file and reports whatever verified up to that point; if it is
// longer, the excess is ignored (the caller is expected to truncate the
// file to tree's size once recheck completes) but does not affect which
// already-written bytes verify.
func FullFileRecheck(path string, tree *tth.Tree) (*RecheckResult, error) {
	if tree == nil {
		return nil, ErrNoFullTree
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	verified := segment.NewSet()
	buf := make([]byte, tree.LeafSize())

	for i := 0; i < tree.NumLeaves(); i++ {
		offset, length := tree.LeafRange(i)
		n, err := io.ReadFull(f, buf[:length])
		if n > 0 && tree.VerifyLeaf(i, buf[:n]) {
			verified.Add(segment.Segment{Start: offset, Length: int64(n)})
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil && n == 0 {
			return nil, err
		}
	}

	return &RecheckResult{
		Verified: verified,
		Complete: verified.CoversAll(tree.FileSize()),
	}, nil
}
