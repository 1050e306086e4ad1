package channel

import "math/bits"

// MaxPendingsLength bounds the pendings a single respond may create.
const MaxPendingsLength = 30

// Pending is a hash-locked obligation left open by a respond. It is released
// to the adaptor by revealing the secret before Timeout, or back to the
// consumer once Timeout has passed.
type Pending struct {
	Amount  uint64
	Timeout Timestamp
	Lock    Lock
}

// PendingFrom converts a cheque that could not be proven paid.
func PendingFrom(body ChequeBody) Pending {
	return Pending{Amount: body.Amount, Timeout: body.Timeout, Lock: body.Lock}
}

// Unlockable reports whether a transaction whose validity range ends at
// upperBound still lies before the deadline.
func (p Pending) Unlockable(upperBound Timestamp) bool { return upperBound <= p.Timeout }

// Expired reports whether a transaction whose validity range starts at
// lowerBound lies at or after the deadline.
func (p Pending) Expired(lowerBound Timestamp) bool { return p.Timeout <= lowerBound }

func (p Pending) appendTo(dst []byte) []byte {
	dst = appendU64(dst, p.Amount)
	dst = appendU64(dst, uint64(p.Timeout))
	return append(dst, p.Lock[:]...)
}

func readPending(b []byte, off *int) (Pending, error) {
	var p Pending
	var err error
	if p.Amount, err = readU64(b, off); err != nil {
		return p, err
	}
	ts, err := readU64(b, off)
	if err != nil {
		return p, err
	}
	p.Timeout = Timestamp(ts)
	p.Lock, err = read32(b, off)
	return p, err
}

// Pendings keeps insertion order; the ledger validator checks proofs
// positionally against it.
type Pendings []Pending

func (ps Pendings) Total() (uint64, error) {
	var sum uint64
	for _, p := range ps {
		var carry uint64
		sum, carry = bits.Add64(sum, p.Amount, 0)
		if carry != 0 {
			return 0, chanerr(ERR_AMOUNT_OVERFLOW, "pendings total overflow")
		}
	}
	return sum, nil
}

// Unpend is the per-pending outcome of an unlock or expire, aligned with the
// input Pendings.
type Unpend interface {
	isUnpend()
}

// UnpendContinue keeps the pending in the remaining list.
type UnpendContinue struct{}

// UnpendUnlock releases the pending to the adaptor with its secret.
type UnpendUnlock struct{ Secret Secret }

// UnpendExpire releases the pending back to the consumer.
type UnpendExpire struct{}

func (UnpendContinue) isUnpend() {}
func (UnpendUnlock) isUnpend()   {}
func (UnpendExpire) isUnpend()   {}

const (
	unpendVariantContinue uint8 = 0
	unpendVariantUnlock   uint8 = 1
	unpendVariantExpire   uint8 = 2
)

// EncodeUnpends produces the positional redeemer proof.
func EncodeUnpends(us []Unpend) []byte {
	out := CompactSize(len(us)).Encode()
	for _, u := range us {
		switch u := u.(type) {
		case UnpendContinue:
			out = appendU8(out, unpendVariantContinue)
		case UnpendUnlock:
			out = appendU8(out, unpendVariantUnlock)
			out = append(out, u.Secret[:]...)
		case UnpendExpire:
			out = appendU8(out, unpendVariantExpire)
		default:
			panic("channel: unknown unpend variant")
		}
	}
	return out
}

func DecodeUnpends(b []byte) ([]Unpend, error) {
	off := 0
	n, err := readCompactSize(b, &off)
	if err != nil {
		return nil, err
	}
	if n > MaxPendingsLength {
		return nil, chanerrf(ERR_BAD_LENGTH, "%d unpends exceed %d", n, MaxPendingsLength)
	}
	out := make([]Unpend, 0, n)
	for i := uint64(0); i < n; i++ {
		v, err := readU8(b, &off)
		if err != nil {
			return nil, err
		}
		switch v {
		case unpendVariantContinue:
			out = append(out, UnpendContinue{})
		case unpendVariantUnlock:
			s, err := read32(b, &off)
			if err != nil {
				return nil, err
			}
			out = append(out, UnpendUnlock{Secret: s})
		case unpendVariantExpire:
			out = append(out, UnpendExpire{})
		default:
			return nil, chanerrf(ERR_BAD_VARIANT, "unpend variant %d", v)
		}
	}
	if err := expectEnd(b, off, "unpends"); err != nil {
		return nil, err
	}
	return out, nil
}

// Unlock releases every pending that is still before its deadline at
// upperBound and whose lock is opened by one of secrets.
func (ps Pendings) Unlock(secrets []Secret, upperBound Timestamp) ([]Unpend, uint64, Pendings, error) {
	byLock := make(map[Lock]Secret, len(secrets))
	for _, s := range secrets {
		byLock[s.Lock()] = s
	}
	return ps.release(func(p Pending) Unpend {
		if !p.Unlockable(upperBound) {
			return UnpendContinue{}
		}
		if s, ok := byLock[p.Lock]; ok {
			return UnpendUnlock{Secret: s}
		}
		return UnpendContinue{}
	})
}

// Expire releases every pending whose deadline is at or before lowerBound.
func (ps Pendings) Expire(lowerBound Timestamp) ([]Unpend, uint64, Pendings, error) {
	return ps.release(func(p Pending) Unpend {
		if p.Expired(lowerBound) {
			return UnpendExpire{}
		}
		return UnpendContinue{}
	})
}

func (ps Pendings) release(decide func(Pending) Unpend) ([]Unpend, uint64, Pendings, error) {
	proof := make([]Unpend, 0, len(ps))
	remaining := make(Pendings, 0, len(ps))
	var released uint64
	for _, p := range ps {
		u := decide(p)
		proof = append(proof, u)
		if _, keep := u.(UnpendContinue); keep {
			remaining = append(remaining, p)
			continue
		}
		var carry uint64
		released, carry = bits.Add64(released, p.Amount, 0)
		if carry != 0 {
			return nil, 0, nil, chanerr(ERR_AMOUNT_OVERFLOW, "released amount overflow")
		}
	}
	if len(remaining) == len(ps) {
		return nil, 0, nil, chanerr(ERR_NOTHING_TO_RELEASE, "no pending released")
	}
	return proof, released, remaining, nil
}

func (ps Pendings) appendTo(dst []byte) []byte {
	dst = CompactSize(len(ps)).AppendTo(dst)
	for _, p := range ps {
		dst = p.appendTo(dst)
	}
	return dst
}

func readPendings(b []byte, off *int) (Pendings, error) {
	n, err := readCompactSize(b, off)
	if err != nil {
		return nil, err
	}
	if n > MaxPendingsLength {
		return nil, chanerrf(ERR_BAD_LENGTH, "%d pendings exceed %d", n, MaxPendingsLength)
	}
	out := make(Pendings, 0, n)
	for i := uint64(0); i < n; i++ {
		p, err := readPending(b, off)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
