package fetchhttp

import (
	"fmt"
	"math/bits"
)

// Range is an inclusive byte interval [Start, End].
type Range struct {
	Start int64
	End   int64
}

func (r Range) Len() int64 { return r.End - r.Start + 1 }

func (r Range) String() string { return fmt.Sprintf("[%d-%d]", r.Start, r.End) }

// Plan splits total bytes into min(count, total) contiguous ranges. Range i
// starts at i*total/count; the last one ends at total-1 and absorbs the
// remainder of the division.
func Plan(total int64, count int) ([]Range, error) {
	if total < 1 {
		return nil, &PartitionError{Total: total, Count: count, Reason: "nothing to partition"}
	}
	if count < 1 {
		return nil, &PartitionError{Total: total, Count: count, Reason: "chunk count must be at least 1"}
	}
	n := int64(count)
	if total < n {
		n = total
	}
	ranges := make([]Range, 0, n)
	for i := range n {
		ranges = append(ranges, Range{
			Start: boundary(i, total, n),
			End:   boundary(i+1, total, n) - 1,
		})
	}
	if err := validatePlan(ranges, total); err != nil {
		return nil, err
	}
	return ranges, nil
}

// boundary computes i*total/n without overflowing int64.
func boundary(i, total, n int64) int64 {
	hi, lo := bits.Mul64(uint64(i), uint64(total))
	q, _ := bits.Div64(hi, lo, uint64(n))
	return int64(q)
}

func validatePlan(ranges []Range, total int64) error {
	fail := func(format string, args ...any) error {
		return &PartitionError{Total: total, Count: len(ranges), Reason: fmt.Sprintf(format, args...)}
	}
	if len(ranges) == 0 {
		return fail("no ranges")
	}
	if ranges[0].Start != 0 {
		return fail("first range starts at %d", ranges[0].Start)
	}
	for i, r := range ranges {
		if r.End < r.Start {
			return fail("range %d %s is empty", i, r)
		}
		if i > 0 && r.Start != ranges[i-1].End+1 {
			return fail("range %d %s does not follow %s", i, r, ranges[i-1])
		}
	}
	if last := ranges[len(ranges)-1]; last.End != total-1 {
		return fail("last range ends at %d", last.End)
	}
	return nil
}
