package channel

import (
	"slices"
	"strconv"
	"strings"
)

// MaxExcludeLength bounds the exception set carried by a squash.
const MaxExcludeLength = 30

// Indexes is an ascending, duplicate-free set of cheque indices with a hard
// capacity. Operations that would exceed the capacity fail and leave the set
// untouched; truncating would forge settlement proofs.
type Indexes struct {
	vals []uint64
}

func NewIndexes(vals ...uint64) (Indexes, error) {
	if len(vals) > MaxExcludeLength {
		return Indexes{}, chanerrf(ERR_EXCLUDE_OVERFLOW, "%d indexes exceed capacity %d", len(vals), MaxExcludeLength)
	}
	for i := 1; i < len(vals); i++ {
		if vals[i] <= vals[i-1] {
			return Indexes{}, chanerr(ERR_PARSE, "indexes must be strictly ascending")
		}
	}
	return Indexes{vals: slices.Clone(vals)}, nil
}

func (x Indexes) Len() int { return len(x.vals) }

// Values returns a copy of the indices in ascending order.
func (x Indexes) Values() []uint64 { return slices.Clone(x.vals) }

func (x Indexes) Contains(i uint64) bool {
	_, ok := slices.BinarySearch(x.vals, i)
	return ok
}

func (x Indexes) Equal(o Indexes) bool { return slices.Equal(x.vals, o.vals) }

// Remove deletes i and reports whether it was present.
func (x *Indexes) Remove(i uint64) bool {
	pos, ok := slices.BinarySearch(x.vals, i)
	if !ok {
		return false
	}
	x.vals = slices.Delete(slices.Clone(x.vals), pos, pos+1)
	return true
}

// ExtendRange appends every integer in the open range (lo, hi). Callers
// guarantee lo is not below the current maximum.
func (x *Indexes) ExtendRange(lo, hi uint64) error {
	if hi <= lo+1 {
		return nil
	}
	if n := len(x.vals); n > 0 && x.vals[n-1] > lo {
		return chanerr(ERR_PARSE, "extend range below current maximum")
	}
	gap := hi - lo - 1
	if gap > uint64(MaxExcludeLength-len(x.vals)) {
		return chanerrf(ERR_EXCLUDE_OVERFLOW, "skipping %d indexes exceeds capacity %d", gap, MaxExcludeLength)
	}
	out := slices.Grow(slices.Clone(x.vals), int(gap))
	for i := lo + 1; i < hi; i++ {
		out = append(out, i)
	}
	x.vals = out
	return nil
}

func (x Indexes) String() string {
	parts := make([]string, len(x.vals))
	for i, v := range x.vals {
		parts[i] = strconv.FormatUint(v, 10)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (x Indexes) appendTo(dst []byte) []byte {
	dst = CompactSize(len(x.vals)).AppendTo(dst)
	for _, v := range x.vals {
		dst = appendU64(dst, v)
	}
	return dst
}

func readIndexes(b []byte, off *int) (Indexes, error) {
	n, err := readCompactSize(b, off)
	if err != nil {
		return Indexes{}, err
	}
	if n > MaxExcludeLength {
		return Indexes{}, chanerrf(ERR_EXCLUDE_OVERFLOW, "%d indexes exceed capacity %d", n, MaxExcludeLength)
	}
	vals := make([]uint64, 0, n)
	for i := uint64(0); i < n; i++ {
		v, err := readU64(b, off)
		if err != nil {
			return Indexes{}, err
		}
		vals = append(vals, v)
	}
	return NewIndexes(vals...)
}
