package crypto

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/tink-crypto/tink-go/v2/signature/subtle"

	"konduit.dev/node/channel"
)

// TinkSigner signs channel payloads with a raw ed25519 key held by tink.
// Signatures carry no tink output prefix, so they verify on the ledger.
type TinkSigner struct {
	s  *subtle.ED25519Signer
	vk channel.VerificationKey
}

var _ channel.Signer = (*TinkSigner)(nil)

// NewTinkSigner derives the key pair from a 32-byte seed.
func NewTinkSigner(seed []byte) (*TinkSigner, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing seed must be %d bytes (got %d)", ed25519.SeedSize, len(seed))
	}
	s, err := subtle.NewED25519Signer(seed)
	if err != nil {
		return nil, fmt.Errorf("tink ed25519 signer: %w", err)
	}
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	var vk channel.VerificationKey
	copy(vk[:], pub)
	t := &TinkSigner{s: s, vk: vk}
	if err := t.selfCheck(); err != nil {
		return nil, err
	}
	return t, nil
}

var selfCheckMsg = []byte("konduit signer self-check")

// selfCheck signs a fixed message and verifies it against vk.
func (t *TinkSigner) selfCheck() error {
	sig, err := t.Sign(selfCheckMsg)
	if err != nil {
		return err
	}
	if err := TinkVerify(t.vk, selfCheckMsg, sig); err != nil {
		return fmt.Errorf("signer self-check: %w", err)
	}
	return nil
}

func (t *TinkSigner) VerificationKey() channel.VerificationKey { return t.vk }

// KeyHash is the credential the adaptor is paid to.
func (t *TinkSigner) KeyHash() channel.KeyHash { return KeyHash(t.vk) }

func (t *TinkSigner) Sign(msg []byte) (channel.Signature, error) {
	if t == nil || t.s == nil {
		return channel.Signature{}, errors.New("tink signer not initialised")
	}
	raw, err := t.s.Sign(msg)
	if err != nil {
		return channel.Signature{}, err
	}
	return channel.SignatureFromBytes(raw)
}

// TinkVerify checks sig over msg with tink's ed25519 verifier.
func TinkVerify(vk channel.VerificationKey, msg []byte, sig channel.Signature) error {
	v, err := subtle.NewED25519Verifier(vk[:])
	if err != nil {
		return fmt.Errorf("tink ed25519 verifier: %w", err)
	}
	return v.Verify(sig[:], msg)
}
