package channel

import (
	"encoding/hex"
	"math/bits"
)

// HashLength is the size of ledger script and key hashes (blake2b-224).
const HashLength = 28

type ScriptHash [HashLength]byte

type KeyHash [HashLength]byte

func (h ScriptHash) String() string { return hex.EncodeToString(h[:]) }

func (h KeyHash) String() string { return hex.EncodeToString(h[:]) }

// Datum is the on-ledger channel state.
type Datum struct {
	OwnHash   ScriptHash
	Constants Constants
	Stage     Stage
}

func (d Datum) appendTo(dst []byte) ([]byte, error) {
	dst = append(dst, d.OwnHash[:]...)
	dst = d.Constants.appendTo(dst)
	return appendStage(dst, d.Stage)
}

func (d Datum) MarshalBinary() ([]byte, error) { return d.appendTo(nil) }

func readDatum(b []byte, off *int) (Datum, error) {
	var d Datum
	raw, err := readBytes(b, off, HashLength)
	if err != nil {
		return d, err
	}
	copy(d.OwnHash[:], raw)
	if d.Constants, err = readConstants(b, off); err != nil {
		return d, err
	}
	if d.Stage, err = readStage(b, off); err != nil {
		return d, err
	}
	return d, nil
}

func (d *Datum) UnmarshalBinary(b []byte) error {
	off := 0
	v, err := readDatum(b, &off)
	if err != nil {
		return err
	}
	if err := expectEnd(b, off, "datum"); err != nil {
		return err
	}
	*d = v
	return nil
}

// Channel is a channel output as observed on the ledger: the datum plus the
// delegation credential and the total value locked at the output. The core
// never mutates a Channel; transitions return the successor.
type Channel struct {
	Datum
	StakeCredential *KeyHash
	Amount          uint64
}

func (c Channel) Keytag() Keytag { return c.Constants.Keytag() }

// Validate checks the constants against bounds and that Amount equals the
// stage balance plus any pendings.
func (c Channel) Validate(b Bounds) error {
	if err := c.Constants.Validate(b); err != nil {
		return err
	}
	want, err := lockedValue(c.Stage)
	if err != nil {
		return err
	}
	if want != c.Amount {
		return chanerrf(ERR_BAD_AMOUNT, "locked value %d, stage accounts for %d", c.Amount, want)
	}
	return nil
}

func lockedValue(s Stage) (uint64, error) {
	switch s := s.(type) {
	case Opened:
		return s.Amount, nil
	case Closed:
		return s.Amount, nil
	case Responded:
		total, err := s.Pendings.Total()
		if err != nil {
			return 0, err
		}
		sum, carry := bits.Add64(s.Amount, total, 0)
		if carry != 0 {
			return 0, chanerr(ERR_AMOUNT_OVERFLOW, "responded locked value overflow")
		}
		return sum, nil
	default:
		return 0, chanerrf(ERR_BAD_VARIANT, "stage %T", s)
	}
}

func (c Channel) MarshalBinary() ([]byte, error) {
	out, err := c.Datum.appendTo(nil)
	if err != nil {
		return nil, err
	}
	if c.StakeCredential == nil {
		out = appendU8(out, 0)
	} else {
		out = appendU8(out, 1)
		out = append(out, c.StakeCredential[:]...)
	}
	return appendU64(out, c.Amount), nil
}

func (c *Channel) UnmarshalBinary(b []byte) error {
	off := 0
	d, err := readDatum(b, &off)
	if err != nil {
		return err
	}
	out := Channel{Datum: d}
	flag, err := readU8(b, &off)
	if err != nil {
		return err
	}
	switch flag {
	case 0:
	case 1:
		raw, err := readBytes(b, &off, HashLength)
		if err != nil {
			return err
		}
		var kh KeyHash
		copy(kh[:], raw)
		out.StakeCredential = &kh
	default:
		return chanerrf(ERR_BAD_VARIANT, "stake credential flag %d", flag)
	}
	if out.Amount, err = readU64(b, &off); err != nil {
		return err
	}
	if err := expectEnd(b, off, "channel"); err != nil {
		return err
	}
	*c = out
	return nil
}

// Open builds the initial channel for a deposit of amount.
func Open(ownHash ScriptHash, constants Constants, stake *KeyHash, amount uint64) Channel {
	return Channel{
		Datum: Datum{
			OwnHash:   ownHash,
			Constants: constants,
			Stage:     Opened{Amount: amount},
		},
		StakeCredential: stake,
		Amount:          amount,
	}
}
