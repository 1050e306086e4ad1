package crypto

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	KeyStoreVersion = "KNKSv1"
	KeyWrapAlg      = "AES-256-KW"
)

// KeyStore is the on-disk form of the adaptor signing key: the ed25519 seed
// wrapped under an operator KEK, plus the public half for inspection.
type KeyStore struct {
	Version        string `json:"version"`
	VkeyHex        string `json:"vkey_hex"`
	KeyHashHex     string `json:"key_hash_hex"`
	WrapAlg        string `json:"wrap_alg"`
	WrappedSeedHex string `json:"wrapped_seed_hex"`
}

// SealKeyStore wraps seed under kek.
func SealKeyStore(kek, seed []byte) (*KeyStore, error) {
	signer, err := NewTinkSigner(seed)
	if err != nil {
		return nil, err
	}
	wrapped, err := WrapKey(kek, seed)
	if err != nil {
		return nil, err
	}
	vk := signer.VerificationKey()
	kh := signer.KeyHash()
	return &KeyStore{
		Version:        KeyStoreVersion,
		VkeyHex:        hex.EncodeToString(vk[:]),
		KeyHashHex:     hex.EncodeToString(kh[:]),
		WrapAlg:        KeyWrapAlg,
		WrappedSeedHex: hex.EncodeToString(wrapped),
	}, nil
}

// Open unwraps the seed and checks it against the recorded verification key.
func (ks *KeyStore) Open(kek []byte) (*TinkSigner, error) {
	seed, err := ks.seed(kek)
	if err != nil {
		return nil, err
	}
	signer, err := NewTinkSigner(seed)
	if err != nil {
		return nil, err
	}
	vk := signer.VerificationKey()
	if got := hex.EncodeToString(vk[:]); !strings.EqualFold(got, ks.VkeyHex) {
		return nil, fmt.Errorf("keystore vkey mismatch: embedded=%s unwrapped=%s", ks.VkeyHex, got)
	}
	return signer, nil
}

// Rewrap re-seals the key under newKek.
func (ks *KeyStore) Rewrap(oldKek, newKek []byte) (*KeyStore, error) {
	seed, err := ks.seed(oldKek)
	if err != nil {
		return nil, err
	}
	return SealKeyStore(newKek, seed)
}

func (ks *KeyStore) seed(kek []byte) ([]byte, error) {
	wrapped, err := hex.DecodeString(ks.WrappedSeedHex)
	if err != nil {
		return nil, fmt.Errorf("wrapped_seed_hex: %w", err)
	}
	return UnwrapKey(kek, wrapped)
}

func ReadKeyStore(path string) (*KeyStore, error) {
	raw, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- operator-provided
	if err != nil {
		return nil, err
	}
	var ks KeyStore
	if err := json.Unmarshal(raw, &ks); err != nil {
		return nil, fmt.Errorf("keystore %s: %w", path, err)
	}
	if ks.Version != KeyStoreVersion {
		return nil, fmt.Errorf("unsupported keystore version: %q", ks.Version)
	}
	if !strings.EqualFold(ks.WrapAlg, KeyWrapAlg) {
		return nil, fmt.Errorf("unsupported wrap_alg: %q", ks.WrapAlg)
	}
	return &ks, nil
}

func WriteKeyStore(path string, ks *KeyStore) error {
	b, err := json.Marshal(ks)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o600)
}
