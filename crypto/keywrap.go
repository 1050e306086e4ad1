package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"errors"
)

// AES-256 key wrap (RFC 3394) protects the adaptor seed at rest.

var keyWrapIV = [8]byte{0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6}

const (
	kekLength      = 32
	maxWrappedKey  = 4096
	keyWrapRounds  = 6
	keyWrapBlockSz = 8
)

func kwCipher(kek []byte) (cipher.Block, error) {
	if len(kek) != kekLength {
		return nil, errors.New("keywrap: kek must be 32 bytes (AES-256)")
	}
	return aes.NewCipher(kek)
}

func xorCounter(a *[8]byte, t uint64) {
	var tb [8]byte
	binary.BigEndian.PutUint64(tb[:], t)
	for k := range a {
		a[k] ^= tb[k]
	}
}

// WrapKey wraps key, which must be 16..4096 bytes in 8-byte blocks.
func WrapKey(kek, key []byte) ([]byte, error) {
	if len(key) < 2*keyWrapBlockSz || len(key) > maxWrappedKey || len(key)%keyWrapBlockSz != 0 {
		return nil, errors.New("keywrap: key must be 16..4096 bytes and a multiple of 8")
	}
	block, err := kwCipher(kek)
	if err != nil {
		return nil, err
	}
	n := len(key) / keyWrapBlockSz
	out := make([]byte, keyWrapBlockSz+len(key))
	copy(out[keyWrapBlockSz:], key)
	a := keyWrapIV
	var buf [16]byte
	for j := 0; j < keyWrapRounds; j++ {
		for i := 1; i <= n; i++ {
			r := out[i*keyWrapBlockSz : (i+1)*keyWrapBlockSz]
			copy(buf[:8], a[:])
			copy(buf[8:], r)
			block.Encrypt(buf[:], buf[:])
			copy(a[:], buf[:8])
			xorCounter(&a, uint64(n*j+i))
			copy(r, buf[8:])
		}
	}
	copy(out[:keyWrapBlockSz], a[:])
	return out, nil
}

// UnwrapKey reverses WrapKey and checks the integrity vector.
func UnwrapKey(kek, wrapped []byte) ([]byte, error) {
	if len(wrapped) < 3*keyWrapBlockSz || len(wrapped) > maxWrappedKey+keyWrapBlockSz || len(wrapped)%keyWrapBlockSz != 0 {
		return nil, errors.New("keywrap: wrapped key must be 24..4104 bytes and a multiple of 8")
	}
	block, err := kwCipher(kek)
	if err != nil {
		return nil, err
	}
	n := len(wrapped)/keyWrapBlockSz - 1
	out := make([]byte, len(wrapped)-keyWrapBlockSz)
	copy(out, wrapped[keyWrapBlockSz:])
	var a [8]byte
	copy(a[:], wrapped[:keyWrapBlockSz])
	var buf [16]byte
	for j := keyWrapRounds - 1; j >= 0; j-- {
		for i := n; i >= 1; i-- {
			r := out[(i-1)*keyWrapBlockSz : i*keyWrapBlockSz]
			xorCounter(&a, uint64(n*j+i))
			copy(buf[:8], a[:])
			copy(buf[8:], r)
			block.Decrypt(buf[:], buf[:])
			copy(a[:], buf[:8])
			copy(r, buf[8:])
		}
	}
	if subtle.ConstantTimeCompare(a[:], keyWrapIV[:]) != 1 {
		return nil, errors.New("keywrap: integrity check failed")
	}
	return out, nil
}
