package channel

import (
	"crypto/ed25519"
	"encoding/hex"
)

const (
	VerificationKeyLength = ed25519.PublicKeySize
	SignatureLength       = ed25519.SignatureSize
	SeedLength            = ed25519.SeedSize
)

type VerificationKey [VerificationKeyLength]byte

type Signature [SignatureLength]byte

func (k VerificationKey) String() string { return hex.EncodeToString(k[:]) }

func (s Signature) String() string { return hex.EncodeToString(s[:]) }

// VerificationKeyFromBytes copies a raw 32-byte ed25519 public key.
func VerificationKeyFromBytes(b []byte) (VerificationKey, error) {
	var k VerificationKey
	if len(b) != VerificationKeyLength {
		return k, chanerrf(ERR_BAD_LENGTH, "verification key must be %d bytes (got %d)", VerificationKeyLength, len(b))
	}
	copy(k[:], b)
	return k, nil
}

func SignatureFromBytes(b []byte) (Signature, error) {
	var s Signature
	if len(b) != SignatureLength {
		return s, chanerrf(ERR_BAD_LENGTH, "signature must be %d bytes (got %d)", SignatureLength, len(b))
	}
	copy(s[:], b)
	return s, nil
}

// Signer produces channel signatures. SigningKey is the in-process
// implementation; crypto.TinkSigner keeps key material inside tink.
type Signer interface {
	VerificationKey() VerificationKey
	Sign(msg []byte) (Signature, error)
}

type SigningKey struct {
	priv ed25519.PrivateKey
}

// SigningKeyFromSeed derives the key pair from a 32-byte seed.
func SigningKeyFromSeed(seed []byte) (SigningKey, error) {
	if len(seed) != SeedLength {
		return SigningKey{}, chanerrf(ERR_BAD_LENGTH, "seed must be %d bytes (got %d)", SeedLength, len(seed))
	}
	return SigningKey{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// VerificationKey is zero for an uninitialized key.
func (k SigningKey) VerificationKey() VerificationKey {
	var vk VerificationKey
	if len(k.priv) != ed25519.PrivateKeySize {
		return vk
	}
	copy(vk[:], k.priv.Public().(ed25519.PublicKey))
	return vk
}

func (k SigningKey) Sign(msg []byte) (Signature, error) {
	if len(k.priv) != ed25519.PrivateKeySize {
		return Signature{}, chanerr(ERR_BAD_LENGTH, "signing key not initialized")
	}
	var sig Signature
	copy(sig[:], ed25519.Sign(k.priv, msg))
	return sig, nil
}

func verifySignature(vk VerificationKey, msg []byte, sig Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(vk[:]), msg, sig[:])
}
