package channel

import "encoding/binary"

// CompactSize prefixes every variable-length field in the channel codec.
// Values below 0xfd take one byte; larger ones a marker byte and a little
// endian u16, u32 or u64, always in the shortest form.
type CompactSize uint64

type compactWidth struct {
	marker byte
	size   int
	min    uint64
}

var compactWidths = [...]compactWidth{
	{marker: 0xfd, size: 2, min: 0xfd},
	{marker: 0xfe, size: 4, min: 1 << 16},
	{marker: 0xff, size: 8, min: 1 << 32},
}

func (c CompactSize) Encode() []byte { return c.AppendTo(nil) }

// AppendTo appends the minimal encoding of c to dst.
func (c CompactSize) AppendTo(dst []byte) []byte {
	n := uint64(c)
	if n < compactWidths[0].min {
		return append(dst, byte(n))
	}
	w := compactWidths[0]
	for _, cand := range compactWidths[1:] {
		if n >= cand.min {
			w = cand
		}
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], n)
	dst = append(dst, w.marker)
	return append(dst, buf[:w.size]...)
}

// DecodeCompactSize returns the value and the number of bytes consumed.
// Non-minimal encodings are rejected.
func DecodeCompactSize(b []byte) (CompactSize, int, error) {
	if len(b) == 0 {
		return 0, 0, chanerr(ERR_PARSE, "compactsize: empty")
	}
	if b[0] < compactWidths[0].marker {
		return CompactSize(b[0]), 1, nil
	}
	w := compactWidths[b[0]-compactWidths[0].marker]
	if len(b) < 1+w.size {
		return 0, 0, chanerrf(ERR_PARSE, "compactsize: truncated %d-byte value", w.size)
	}
	var buf [8]byte
	copy(buf[:], b[1:1+w.size])
	n := binary.LittleEndian.Uint64(buf[:])
	if n < w.min {
		return 0, 0, chanerrf(ERR_PARSE, "compactsize: non-minimal %d-byte value", w.size)
	}
	return CompactSize(n), 1 + w.size, nil
}
