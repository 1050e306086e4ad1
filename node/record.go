package node

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/tchajed/marshal"

	"konduit.dev/node/channel"
)

const recordVersion uint64 = 1

// MaxOutstandingCheques bounds the receipts plus in-flight cheques a record
// holds. Paying moves a cheque from one list to the other, so capping the
// sum at admission keeps both lists decodable.
const MaxOutstandingCheques = channel.MaxPendingsLength * 8

var errRecordTruncated = errors.New("record: truncated")

// Record is everything the adaptor keeps for one channel: the latest ledger
// view, the newest squash the consumer handed over, receipts for paid
// cheques the squash does not cover yet, and locked cheques whose payment is
// still in flight.
type Record struct {
	Channel  *channel.Channel
	Squash   channel.Squash
	Unlocked []channel.Unlocked
	Locked   []channel.Locked
}

// Outstanding counts the cheques held beyond the squash.
func (r *Record) Outstanding() int { return len(r.Unlocked) + len(r.Locked) }

// HasSquash reports whether the consumer has ever handed over a squash.
func (r *Record) HasSquash() bool { return r.Squash.Signature != (channel.Signature{}) }

// Owed is the total the consumer has signed over to the adaptor.
func (r *Record) Owed() (uint64, error) {
	total := r.Squash.Body.Amount
	var carry uint64
	for _, u := range r.Unlocked {
		total, carry = bits.Add64(total, u.Body.Amount, 0)
		if carry != 0 {
			return 0, fmt.Errorf("record: owed overflow")
		}
	}
	for _, l := range r.Locked {
		total, carry = bits.Add64(total, l.Body.Amount, 0)
		if carry != 0 {
			return 0, fmt.Errorf("record: owed overflow")
		}
	}
	return total, nil
}

// Capacity is how much more the consumer can spend while the channel is open.
func (r *Record) Capacity() (uint64, error) {
	if r.Channel == nil {
		return 0, nil
	}
	s, ok := r.Channel.Stage.(channel.Opened)
	if !ok {
		return 0, nil
	}
	owed, err := r.Owed()
	if err != nil {
		return 0, err
	}
	funded, carry := bits.Add64(s.Amount, s.Subbed, 0)
	if carry != 0 || owed >= funded {
		return 0, nil
	}
	return funded - owed, nil
}

// HasIndex reports whether index is already squashed, received or in flight.
func (r *Record) HasIndex(index uint64) bool {
	if r.Squash.Body.IsIndexSquashed(index) {
		return true
	}
	for _, u := range r.Unlocked {
		if u.Body.Index == index {
			return true
		}
	}
	for _, l := range r.Locked {
		if l.Body.Index == index {
			return true
		}
	}
	return false
}

func (r *Record) NextIndex() uint64 {
	next := r.Squash.Body.Index
	for _, u := range r.Unlocked {
		next = max(next, u.Body.Index)
	}
	for _, l := range r.Locked {
		next = max(next, l.Body.Index)
	}
	return next + 1
}

// Prune drops receipts and in-flight cheques the squash already covers.
func (r *Record) Prune() {
	body := r.Squash.Body
	unlocked := r.Unlocked[:0]
	for _, u := range r.Unlocked {
		if !body.IsIndexSquashed(u.Body.Index) {
			unlocked = append(unlocked, u)
		}
	}
	r.Unlocked = unlocked
	locked := r.Locked[:0]
	for _, l := range r.Locked {
		if !body.IsIndexSquashed(l.Body.Index) {
			locked = append(locked, l)
		}
	}
	r.Locked = locked
}

func (r *Record) dropLocked(index uint64) {
	out := r.Locked[:0]
	for _, l := range r.Locked {
		if l.Body.Index != index {
			out = append(out, l)
		}
	}
	r.Locked = out
}

// secrets maps each lock to the secret a receipt revealed for it.
func (r *Record) secrets() map[channel.Lock]channel.Secret {
	out := make(map[channel.Lock]channel.Secret, len(r.Unlocked))
	for _, u := range r.Unlocked {
		out[u.Body.Lock] = u.Secret
	}
	return out
}

func writeBlob(b []byte, v []byte) []byte {
	b = marshal.WriteInt(b, uint64(len(v)))
	return marshal.WriteBytes(b, v)
}

func readInt(b []byte) (uint64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, errRecordTruncated
	}
	v, rest := marshal.ReadInt(b)
	return v, rest, nil
}

func writeFlag(b []byte, v bool) []byte {
	if v {
		return append(b, 1)
	}
	return append(b, 0)
}

func readFlag(b []byte) (bool, []byte, error) {
	if len(b) < 1 {
		return false, nil, errRecordTruncated
	}
	switch b[0] {
	case 0:
		return false, b[1:], nil
	case 1:
		return true, b[1:], nil
	}
	return false, nil, fmt.Errorf("record: bad flag %d", b[0])
}

func readBlob(b []byte) ([]byte, []byte, error) {
	n, b, err := readInt(b)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(b)) < n {
		return nil, nil, errRecordTruncated
	}
	v, rest := marshal.ReadBytes(b, n)
	return v, rest, nil
}

func (r *Record) MarshalBinary() ([]byte, error) {
	b := marshal.WriteInt(nil, recordVersion)
	b = writeFlag(b, r.Channel != nil)
	if r.Channel != nil {
		raw, err := r.Channel.MarshalBinary()
		if err != nil {
			return nil, err
		}
		b = writeBlob(b, raw)
	}
	b = writeBlob(b, r.Squash.Encode())
	b = marshal.WriteInt(b, uint64(len(r.Unlocked)))
	for _, u := range r.Unlocked {
		b = writeBlob(b, u.Encode())
	}
	b = marshal.WriteInt(b, uint64(len(r.Locked)))
	for _, l := range r.Locked {
		b = writeBlob(b, l.Encode())
	}
	return b, nil
}

func (r *Record) UnmarshalBinary(b []byte) error {
	version, b, err := readInt(b)
	if err != nil {
		return err
	}
	if version != recordVersion {
		return fmt.Errorf("record: unsupported version %d", version)
	}
	var out Record
	hasChannel, b, err := readFlag(b)
	if err != nil {
		return err
	}
	if hasChannel {
		var raw []byte
		if raw, b, err = readBlob(b); err != nil {
			return err
		}
		var c channel.Channel
		if err := c.UnmarshalBinary(raw); err != nil {
			return fmt.Errorf("record channel: %w", err)
		}
		out.Channel = &c
	}
	raw, b, err := readBlob(b)
	if err != nil {
		return err
	}
	if out.Squash, err = channel.DecodeSquash(raw); err != nil {
		return fmt.Errorf("record squash: %w", err)
	}
	n, b, err := readInt(b)
	if err != nil {
		return err
	}
	if n > MaxOutstandingCheques {
		return fmt.Errorf("record: %d receipts", n)
	}
	for i := uint64(0); i < n; i++ {
		if raw, b, err = readBlob(b); err != nil {
			return err
		}
		u, err := channel.DecodeUnlocked(raw)
		if err != nil {
			return fmt.Errorf("record receipt %d: %w", i, err)
		}
		out.Unlocked = append(out.Unlocked, u)
	}
	if n, b, err = readInt(b); err != nil {
		return err
	}
	if n > MaxOutstandingCheques {
		return fmt.Errorf("record: %d locked cheques", n)
	}
	for i := uint64(0); i < n; i++ {
		if raw, b, err = readBlob(b); err != nil {
			return err
		}
		l, err := channel.DecodeLocked(raw)
		if err != nil {
			return fmt.Errorf("record locked %d: %w", i, err)
		}
		out.Locked = append(out.Locked, l)
	}
	if len(b) != 0 {
		return fmt.Errorf("record: %d trailing bytes", len(b))
	}
	*r = out
	return nil
}
