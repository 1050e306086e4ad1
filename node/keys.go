package node

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"konduit.dev/node/crypto"
)

var ErrNoSigningKey = errors.New("no signing key configured: set signing_key_hex or key_file")

// LoadSigner builds the adaptor signer from cfg. A key file is unwrapped
// with the KEK read from KEKEnv through getenv.
func LoadSigner(cfg Config, getenv func(string) string) (*crypto.TinkSigner, error) {
	switch {
	case cfg.SigningKeyHex != "":
		seed, err := hex.DecodeString(strings.TrimSpace(cfg.SigningKeyHex))
		if err != nil {
			return nil, fmt.Errorf("signing_key_hex: %w", err)
		}
		return crypto.NewTinkSigner(seed)
	case cfg.KeyFile != "":
		ks, err := crypto.ReadKeyStore(cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		kek, err := ParseKEK(getenv(KEKEnv))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", KEKEnv, err)
		}
		return ks.Open(kek)
	default:
		return nil, ErrNoSigningKey
	}
}

// ParseKEK decodes a 32-byte AES-256 key-encryption key, with or without a
// 0x prefix.
func ParseKEK(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, errors.New("kek is empty")
	}
	kek, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(kek) != 32 {
		return nil, fmt.Errorf("kek must be 32 bytes (got %d)", len(kek))
	}
	return kek, nil
}
