package channel

import "math/bits"

// SquashBody is a cumulative settlement proof. Every index up to Index,
// except those in Exclude, has its amount folded into Amount. Index 0 is
// the empty mark, so issued cheques start at index 1.
type SquashBody struct {
	Amount  uint64
	Index   uint64
	Exclude Indexes
}

// Squash folds cheque into b. On error b is left unchanged.
func (b *SquashBody) Squash(cheque ChequeBody) error {
	amount, carry := bits.Add64(b.Amount, cheque.Amount, 0)
	if carry != 0 {
		return chanerrf(ERR_AMOUNT_OVERFLOW, "squash amount overflow at cheque %d", cheque.Index)
	}
	if b.Exclude.Contains(cheque.Index) {
		b.Exclude.Remove(cheque.Index)
		b.Amount = amount
		return nil
	}
	if cheque.Index > b.Index {
		exclude := b.Exclude
		if err := exclude.ExtendRange(b.Index, cheque.Index); err != nil {
			return err
		}
		b.Exclude = exclude
		b.Amount = amount
		b.Index = cheque.Index
		return nil
	}
	return chanerrf(ERR_DUPLICATE_INDEX, "cheque %d already squashed (mark %d)", cheque.Index, b.Index)
}

// SquashAll folds cheques in order and stops at the first failure, leaving b
// as it was before the call.
func (b *SquashBody) SquashAll(cheques ...ChequeBody) error {
	next := b.Clone()
	for _, c := range cheques {
		if err := next.Squash(c); err != nil {
			return err
		}
	}
	*b = next
	return nil
}

func (b SquashBody) IsIndexSquashed(index uint64) bool {
	if index > b.Index {
		return false
	}
	if index == b.Index {
		return true
	}
	return !b.Exclude.Contains(index)
}

// Covers reports whether b settles every index o settles, for at least the
// same amount. Since b.Index >= o.Index, only b's own exclusions can drop one.
func (b SquashBody) Covers(o SquashBody) bool {
	if b.Index < o.Index || b.Amount < o.Amount {
		return false
	}
	for _, i := range b.Exclude.vals {
		if o.IsIndexSquashed(i) {
			return false
		}
	}
	return true
}

func (b SquashBody) Clone() SquashBody {
	return SquashBody{Amount: b.Amount, Index: b.Index, Exclude: Indexes{vals: b.Exclude.Values()}}
}

func (b SquashBody) Equal(o SquashBody) bool {
	return b.Amount == o.Amount && b.Index == o.Index && b.Exclude.Equal(o.Exclude)
}

func (b SquashBody) Encode() []byte {
	out := make([]byte, 0, 8+8+1+8*b.Exclude.Len())
	return b.appendTo(out)
}

func (b SquashBody) appendTo(dst []byte) []byte {
	dst = appendU64(dst, b.Amount)
	dst = appendU64(dst, b.Index)
	return b.Exclude.appendTo(dst)
}

func readSquashBody(b []byte, off *int) (SquashBody, error) {
	var body SquashBody
	var err error
	if body.Amount, err = readU64(b, off); err != nil {
		return SquashBody{}, err
	}
	if body.Index, err = readU64(b, off); err != nil {
		return SquashBody{}, err
	}
	if body.Exclude, err = readIndexes(b, off); err != nil {
		return SquashBody{}, err
	}
	if n := body.Exclude.Len(); n > 0 && body.Exclude.vals[n-1] >= body.Index {
		return SquashBody{}, chanerr(ERR_PARSE, "squash exclude reaches its own index")
	}
	return body, nil
}

func DecodeSquashBody(b []byte) (SquashBody, error) {
	off := 0
	body, err := readSquashBody(b, &off)
	if err != nil {
		return SquashBody{}, err
	}
	if err := expectEnd(b, off, "squash body"); err != nil {
		return SquashBody{}, err
	}
	return body, nil
}

// Squash is a SquashBody signed by the consumer.
type Squash struct {
	Body      SquashBody
	Signature Signature
}

func SignSquash(s Signer, tag Tag, body SquashBody) (Squash, error) {
	sig, err := Authorize(s, tag, body)
	if err != nil {
		return Squash{}, err
	}
	return Squash{Body: body.Clone(), Signature: sig}, nil
}

func (s Squash) Verify(vk VerificationKey, tag Tag) error {
	if !Verify(vk, tag, s.Body, s.Signature) {
		return chanerr(ERR_BAD_SIGNATURE, "squash")
	}
	return nil
}

func (s Squash) Encode() []byte {
	out := s.Body.Encode()
	return append(out, s.Signature[:]...)
}

func readSquash(b []byte, off *int) (Squash, error) {
	body, err := readSquashBody(b, off)
	if err != nil {
		return Squash{}, err
	}
	raw, err := readBytes(b, off, SignatureLength)
	if err != nil {
		return Squash{}, err
	}
	sig, _ := SignatureFromBytes(raw)
	return Squash{Body: body, Signature: sig}, nil
}

func DecodeSquash(b []byte) (Squash, error) {
	off := 0
	s, err := readSquash(b, &off)
	if err != nil {
		return Squash{}, err
	}
	if err := expectEnd(b, off, "squash"); err != nil {
		return Squash{}, err
	}
	return s, nil
}
