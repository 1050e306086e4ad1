package channel

import "github.com/tchajed/marshal"

// Canonical codec helpers. Fixed-width integers are little-endian u64,
// variable-length fields carry a CompactSize prefix, and tagged variants a
// single leading byte. Readers advance *off and never panic on short input.

func appendU8(dst []byte, v uint8) []byte {
	return append(dst, v)
}

func appendU64(dst []byte, v uint64) []byte {
	return marshal.WriteInt(dst, v)
}

func appendVarBytes(dst []byte, v []byte) []byte {
	dst = CompactSize(len(v)).AppendTo(dst)
	return marshal.WriteBytes(dst, v)
}

func readU8(b []byte, off *int) (uint8, error) {
	if *off+1 > len(b) {
		return 0, chanerr(ERR_PARSE, "unexpected EOF (u8)")
	}
	v := b[*off]
	*off++
	return v, nil
}

func readU64(b []byte, off *int) (uint64, error) {
	if *off+8 > len(b) {
		return 0, chanerr(ERR_PARSE, "unexpected EOF (u64)")
	}
	v, _ := marshal.ReadInt(b[*off:])
	*off += 8
	return v, nil
}

func readBytes(b []byte, off *int, n int) ([]byte, error) {
	if n < 0 {
		return nil, chanerr(ERR_PARSE, "negative length")
	}
	if *off+n > len(b) || *off+n < *off {
		return nil, chanerr(ERR_PARSE, "unexpected EOF (bytes)")
	}
	v, _ := marshal.ReadBytes(b[*off:], uint64(n))
	*off += n
	return append([]byte(nil), v...), nil
}

func readCompactSize(b []byte, off *int) (uint64, error) {
	if *off > len(b) {
		return 0, chanerr(ERR_PARSE, "unexpected EOF (compactsize)")
	}
	v, n, err := DecodeCompactSize(b[*off:])
	if err != nil {
		return 0, err
	}
	*off += n
	return uint64(v), nil
}

// readVarBytes reads a CompactSize-prefixed byte string of at most max bytes.
func readVarBytes(b []byte, off *int, max int) ([]byte, error) {
	n, err := readCompactSize(b, off)
	if err != nil {
		return nil, err
	}
	if n > uint64(max) {
		return nil, chanerrf(ERR_BAD_LENGTH, "length %d exceeds %d", n, max)
	}
	return readBytes(b, off, int(n))
}

func read32(b []byte, off *int) ([32]byte, error) {
	var out [32]byte
	v, err := readBytes(b, off, 32)
	if err != nil {
		return out, err
	}
	copy(out[:], v)
	return out, nil
}

// expectEnd rejects trailing bytes after a complete structure.
func expectEnd(b []byte, off int, what string) error {
	if off != len(b) {
		return chanerrf(ERR_PARSE, "%s: %d trailing bytes", what, len(b)-off)
	}
	return nil
}
