package channel

// ChequeBodyLength is the fixed encoded size: index, amount, timeout, lock.
const ChequeBodyLength = 8 + 8 + 8 + LockLength

// ChequeBody is a single debit instruction. Index is assigned by the issuer,
// strictly increasing per channel.
type ChequeBody struct {
	Index   uint64
	Amount  uint64
	Timeout Timestamp
	Lock    Lock
}

func (b ChequeBody) Encode() []byte {
	out := make([]byte, 0, ChequeBodyLength)
	return b.appendTo(out)
}

func (b ChequeBody) appendTo(dst []byte) []byte {
	dst = appendU64(dst, b.Index)
	dst = appendU64(dst, b.Amount)
	dst = appendU64(dst, uint64(b.Timeout))
	return append(dst, b.Lock[:]...)
}

func readChequeBody(b []byte, off *int) (ChequeBody, error) {
	var body ChequeBody
	var err error
	if body.Index, err = readU64(b, off); err != nil {
		return body, err
	}
	if body.Amount, err = readU64(b, off); err != nil {
		return body, err
	}
	ts, err := readU64(b, off)
	if err != nil {
		return body, err
	}
	body.Timeout = Timestamp(ts)
	if body.Lock, err = read32(b, off); err != nil {
		return body, err
	}
	return body, nil
}

func DecodeChequeBody(b []byte) (ChequeBody, error) {
	off := 0
	body, err := readChequeBody(b, &off)
	if err != nil {
		return ChequeBody{}, err
	}
	if err := expectEnd(b, off, "cheque body"); err != nil {
		return ChequeBody{}, err
	}
	return body, nil
}

// Cheque is either a Locked or an Unlocked cheque.
type Cheque interface {
	ChequeBody() ChequeBody
	Sig() Signature
	isCheque()
}

const (
	chequeVariantLocked   uint8 = 0
	chequeVariantUnlocked uint8 = 1
)

// Locked is a cheque authorized by the consumer but not yet redeemable.
type Locked struct {
	Body      ChequeBody
	Signature Signature
}

func (Locked) isCheque() {}

func (l Locked) ChequeBody() ChequeBody { return l.Body }

func (l Locked) Sig() Signature { return l.Signature }

// SignLocked issues a cheque for the channel identified by tag.
func SignLocked(s Signer, tag Tag, body ChequeBody) (Locked, error) {
	sig, err := Authorize(s, tag, body)
	if err != nil {
		return Locked{}, err
	}
	return Locked{Body: body, Signature: sig}, nil
}

func (l Locked) Verify(vk VerificationKey, tag Tag) error {
	if !Verify(vk, tag, l.Body, l.Signature) {
		return chanerrf(ERR_BAD_SIGNATURE, "cheque %d", l.Body.Index)
	}
	return nil
}

func (l Locked) Encode() []byte {
	out := make([]byte, 0, ChequeBodyLength+SignatureLength)
	out = l.Body.appendTo(out)
	return append(out, l.Signature[:]...)
}

func readLocked(b []byte, off *int) (Locked, error) {
	body, err := readChequeBody(b, off)
	if err != nil {
		return Locked{}, err
	}
	raw, err := readBytes(b, off, SignatureLength)
	if err != nil {
		return Locked{}, err
	}
	sig, _ := SignatureFromBytes(raw)
	return Locked{Body: body, Signature: sig}, nil
}

func DecodeLocked(b []byte) (Locked, error) {
	off := 0
	l, err := readLocked(b, &off)
	if err != nil {
		return Locked{}, err
	}
	if err := expectEnd(b, off, "locked cheque"); err != nil {
		return Locked{}, err
	}
	return l, nil
}

// Unlocked is a Locked cheque together with the secret opening its lock.
// The zero value is not valid; build one with NewUnlocked.
type Unlocked struct {
	Locked
	Secret Secret
}

func (Unlocked) isCheque() {}

// Verify checks the signature and that the secret opens the lock.
func (u Unlocked) Verify(vk VerificationKey, tag Tag) error {
	if !u.Secret.Matches(u.Body.Lock) {
		return chanerrf(ERR_SECRET_MISMATCH, "cheque %d", u.Body.Index)
	}
	return u.Locked.Verify(vk, tag)
}

// NewUnlocked fails unless sha256(secret) equals the cheque lock.
func NewUnlocked(l Locked, secret Secret) (Unlocked, error) {
	if !secret.Matches(l.Body.Lock) {
		return Unlocked{}, chanerrf(ERR_SECRET_MISMATCH, "cheque %d", l.Body.Index)
	}
	return Unlocked{Locked: l, Secret: secret}, nil
}

func (u Unlocked) Encode() []byte {
	out := u.Locked.Encode()
	return append(out, u.Secret[:]...)
}

func readUnlocked(b []byte, off *int) (Unlocked, error) {
	l, err := readLocked(b, off)
	if err != nil {
		return Unlocked{}, err
	}
	secret, err := read32(b, off)
	if err != nil {
		return Unlocked{}, err
	}
	return NewUnlocked(l, secret)
}

func DecodeUnlocked(b []byte) (Unlocked, error) {
	off := 0
	u, err := readUnlocked(b, &off)
	if err != nil {
		return Unlocked{}, err
	}
	if err := expectEnd(b, off, "unlocked cheque"); err != nil {
		return Unlocked{}, err
	}
	return u, nil
}

func appendCheque(dst []byte, c Cheque) []byte {
	switch c := c.(type) {
	case Locked:
		dst = appendU8(dst, chequeVariantLocked)
		return append(dst, c.Encode()...)
	case Unlocked:
		dst = appendU8(dst, chequeVariantUnlocked)
		return append(dst, c.Encode()...)
	default:
		panic("channel: unknown cheque variant")
	}
}

func readCheque(b []byte, off *int) (Cheque, error) {
	variant, err := readU8(b, off)
	if err != nil {
		return nil, err
	}
	switch variant {
	case chequeVariantLocked:
		return readLocked(b, off)
	case chequeVariantUnlocked:
		return readUnlocked(b, off)
	default:
		return nil, chanerrf(ERR_BAD_VARIANT, "cheque variant %d", variant)
	}
}

// EncodeCheque writes the variant byte followed by the cheque encoding.
func EncodeCheque(c Cheque) []byte { return appendCheque(nil, c) }

func DecodeCheque(b []byte) (Cheque, error) {
	off := 0
	c, err := readCheque(b, &off)
	if err != nil {
		return nil, err
	}
	if err := expectEnd(b, off, "cheque"); err != nil {
		return nil, err
	}
	return c, nil
}
