package crypto

import (
	"golang.org/x/crypto/blake2b"

	"konduit.dev/node/channel"
)

// ScriptLanguagePlutusV3 is the language tag prefixed to a validator
// before hashing.
const ScriptLanguagePlutusV3 byte = 0x03

func blake2b224(parts ...[]byte) [channel.HashLength]byte {
	h, err := blake2b.New(channel.HashLength, nil)
	if err != nil {
		// Only reachable with an invalid size or an oversized key.
		panic(err)
	}
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	var out [channel.HashLength]byte
	copy(out[:], h.Sum(nil))
	return out
}

// KeyHash is the ledger credential of a verification key.
func KeyHash(vk channel.VerificationKey) channel.KeyHash {
	return channel.KeyHash(blake2b224(vk[:]))
}

// ScriptHash is the ledger address of a validator script.
func ScriptHash(language byte, script []byte) channel.ScriptHash {
	return channel.ScriptHash(blake2b224([]byte{language}, script))
}
