package channel

import (
	"bytes"
	"encoding/hex"
)

// DefaultMaxTagLength bounds Tag when no explicit Bounds are configured.
const DefaultMaxTagLength = 32

// Tag distinguishes channels that share one adaptor key.
type Tag []byte

func (t Tag) String() string { return hex.EncodeToString(t) }

func (t Tag) Equal(o Tag) bool { return bytes.Equal(t, o) }

// Keytag is vkey || tag, the unique identifier of a channel.
type Keytag []byte

func NewKeytag(vk VerificationKey, tag Tag) Keytag {
	out := make(Keytag, 0, VerificationKeyLength+len(tag))
	out = append(out, vk[:]...)
	return append(out, tag...)
}

// ParseKeytag accepts raw keytag bytes with a tag of at most maxTag bytes.
func ParseKeytag(b []byte, maxTag int) (Keytag, error) {
	if len(b) < VerificationKeyLength {
		return nil, chanerrf(ERR_BAD_LENGTH, "keytag shorter than %d bytes", VerificationKeyLength)
	}
	if len(b)-VerificationKeyLength > maxTag {
		return nil, chanerrf(ERR_BAD_LENGTH, "keytag tag exceeds %d bytes", maxTag)
	}
	return append(Keytag(nil), b...), nil
}

func ParseKeytagHex(s string, maxTag int) (Keytag, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, chanerrf(ERR_PARSE, "keytag hex: %v", err)
	}
	return ParseKeytag(raw, maxTag)
}

// Split returns the verification key and tag. The tag aliases k.
func (k Keytag) Split() (VerificationKey, Tag) {
	var vk VerificationKey
	copy(vk[:], k)
	if len(k) < VerificationKeyLength {
		return vk, nil
	}
	return vk, Tag(k[VerificationKeyLength:])
}

func (k Keytag) String() string { return hex.EncodeToString(k) }

func (k Keytag) Equal(o Keytag) bool { return bytes.Equal(k, o) }

// Compare orders keytags bytewise, matching bbolt and SQLite BLOB order.
func (k Keytag) Compare(o Keytag) int { return bytes.Compare(k, o) }
