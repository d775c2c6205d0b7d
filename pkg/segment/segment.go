// Package segment implements the (start, length) byte-range primitive used
// to track which parts of a queued file have already been downloaded, and
// the coalesced, non-overlapping set of such ranges kept per queue item.
//
// A Set never shrinks except on an explicit Reset. Add does not know the
// file size and does not clip segments to [0, size); keeping the union
// inside that range is left to the callers that add segments.
package segment

import (
	"fmt"
	"sort"
)

// Segment is a half-open byte range [Start, Start+Length) over a file.
type Segment struct {
	Start  int64
	Length int64
}

// End returns the exclusive end offset of the segment.
func (s Segment) End() int64 { return s.Start + s.Length }

// Overlaps reports whether s and other share at least one byte.
func (s Segment) Overlaps(other Segment) bool {
	return s.Start < other.End() && other.Start < s.End()
}

// Adjacent reports whether s and other touch end-to-end with no gap,
// in either order.
func (s Segment) Adjacent(other Segment) bool {
	return s.End() == other.Start || other.End() == s.Start
}

// String renders the segment as "[start, end)" for logging.
func (s Segment) String() string {
	return fmt.Sprintf("[%d, %d)", s.Start, s.End())
}

// Set is an ordered, non-overlapping, coalesced collection of segments.
// The zero value is an empty set ready to use.
type Set struct {
	segs []Segment
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{}
}

// Segments returns the set's segments in ascending, non-overlapping order.
// The returned slice must not be mutated by the caller.
func (s *Set) Segments() []Segment {
	return s.segs
}

// Len returns the number of coalesced segments.
func (s *Set) Len() int { return len(s.segs) }

// Total returns the sum of all segment lengths.
func (s *Set) Total() int64 {
	var total int64
	for _, seg := range s.segs {
		total += seg.Length
	}
	return total
}

// Add merges seg into the set, coalescing it with any overlapping or
// adjacent segments. A zero-length segment is ignored.
func (s *Set) Add(seg Segment) {
	if seg.Length <= 0 {
		return
	}
	merged := make([]Segment, 0, len(s.segs)+1)
	merged = append(merged, s.segs...)
	merged = append(merged, seg)
	s.segs = coalesceSorted(merged)
}

// union combines two overlapping or touching segments into one.
func union(a, b Segment) Segment {
	start := a.Start
	if b.Start < start {
		start = b.Start
	}
	end := a.End()
	if b.End() > end {
		end = b.End()
	}
	return Segment{Start: start, Length: end - start}
}

// coalesceSorted sorts segs and merges any that now overlap or touch,
// which can happen after Add inserts a segment that bridges two
// previously separate ranges.
func coalesceSorted(segs []Segment) []Segment {
	if len(segs) < 2 {
		return segs
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })

	out := make([]Segment, 0, len(segs))
	cur := segs[0]
	for _, next := range segs[1:] {
		if next.Start <= cur.End() {
			cur = union(cur, next)
			continue
		}
		out = append(out, cur)
		cur = next
	}
	out = append(out, cur)
	return out
}

// Contains reports whether the entire byte range [start, start+length) is
// already covered by the set.
func (s *Set) Contains(start, length int64) bool {
	if length <= 0 {
		return true
	}
	want := Segment{Start: start, Length: length}
	for _, seg := range s.segs {
		if seg.Start <= want.Start && want.End() <= seg.End() {
			return true
		}
	}
	return false
}

// Reset clears the set back to empty.
func (s *Set) Reset() {
	s.segs = nil
}

// Gaps returns the undownloaded ranges within [0, size) given the current
// coverage, in ascending order.
func (s *Set) Gaps(size int64) []Segment {
	if size <= 0 {
		return nil
	}
	var gaps []Segment
	cursor := int64(0)
	for _, seg := range s.segs {
		if seg.Start > cursor {
			gaps = append(gaps, Segment{Start: cursor, Length: seg.Start - cursor})
		}
		if seg.End() > cursor {
			cursor = seg.End()
		}
	}
	if cursor < size {
		gaps = append(gaps, Segment{Start: cursor, Length: size - cursor})
	}
	return gaps
}

// CoversAll reports whether the set's union exactly covers [0, size) with
// no gaps, i.e. the file is fully downloaded.
func (s *Set) CoversAll(size int64) bool {
	return len(s.Gaps(size)) == 0
}

// Intersect returns the gaps of have within [0, size), restricted to the
// given available ranges (a partial source's parts-info); with no
// available ranges it returns all the gaps. It is used to compute what
// can still be requested from a partial source.
func Intersect(have *Set, available []Segment, size int64) []Segment {
	gaps := have.Gaps(size)
	if len(available) == 0 {
		return gaps
	}

	var result []Segment
	for _, gap := range gaps {
		for _, avail := range available {
			start := max64(gap.Start, avail.Start)
			end := min64(gap.End(), avail.End())
			if end > start {
				result = append(result, Segment{Start: start, Length: end - start})
			}
		}
	}
	return result
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
