package sequence

import (
	"fmt"
	"math"
)

// Range is a half-open interval [First, End) of sequence ids.
type Range struct {
	First int64
	End   int64
}

// Window returns the range [from, toInclusive]; a nil upper bound is
// unbounded. Callers validate the bounds first.
func Window(from int64, toInclusive *int64) Range {
	if toInclusive == nil {
		return Range{First: from, End: math.MaxInt64}
	}
	return Range{First: from, End: *toInclusive + 1}
}

// Len returns the number of ids in the range.
func (r Range) Len() int64 {
	if r.End <= r.First {
		return 0
	}
	return r.End - r.First
}

// IsEmpty returns true if the range holds no ids.
func (r Range) IsEmpty() bool {
	return r.End <= r.First
}

// Contains reports whether id lies in the range.
func (r Range) Contains(id int64) bool {
	return id >= r.First && id < r.End
}

// Intersect returns the overlap of both ranges, empty if they are disjoint.
func (r Range) Intersect(o Range) Range {
	out := Range{First: max(r.First, o.First), End: min(r.End, o.End)}
	if out.End < out.First {
		out.End = out.First
	}
	return out
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.First, r.End)
}
