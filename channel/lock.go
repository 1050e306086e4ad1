package channel

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/lightningnetwork/lnd/lntypes"
)

const (
	LockLength   = sha256.Size
	SecretLength = 32
)

// Lock is sha256(Secret). SHA-256 is the Lightning payment hash function, so
// a payment_hash/preimage pair doubles as the channel hash-lock.
type Lock [LockLength]byte

type Secret [SecretLength]byte

func (s Secret) Lock() Lock { return Lock(sha256.Sum256(s[:])) }

func (s Secret) Matches(l Lock) bool { return s.Lock() == l }

func (l Lock) String() string { return hex.EncodeToString(l[:]) }

func (s Secret) String() string { return hex.EncodeToString(s[:]) }

func LockFromBytes(b []byte) (Lock, error) {
	var l Lock
	if len(b) != LockLength {
		return l, chanerrf(ERR_BAD_LENGTH, "lock must be %d bytes (got %d)", LockLength, len(b))
	}
	copy(l[:], b)
	return l, nil
}

func SecretFromBytes(b []byte) (Secret, error) {
	var s Secret
	if len(b) != SecretLength {
		return s, chanerrf(ERR_BAD_LENGTH, "secret must be %d bytes (got %d)", SecretLength, len(b))
	}
	copy(s[:], b)
	return s, nil
}

// LockFromPaymentHash reuses a Lightning payment hash as a channel lock.
func LockFromPaymentHash(h lntypes.Hash) Lock { return Lock(h) }

func (l Lock) PaymentHash() lntypes.Hash { return lntypes.Hash(l) }

func SecretFromPreimage(p lntypes.Preimage) Secret { return Secret(p) }

func (s Secret) Preimage() lntypes.Preimage { return lntypes.Preimage(s) }
