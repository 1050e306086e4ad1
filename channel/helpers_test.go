package channel

import (
	"bytes"
	"testing"
)

func mustErrCode(t *testing.T, err error) ErrorCode {
	t.Helper()
	ce, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	return ce.Code
}

func wantCode(t *testing.T, err error, want ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", want)
	}
	if got := mustErrCode(t, err); got != want {
		t.Fatalf("code=%s, want %s (%v)", got, want, err)
	}
}

func testKey(t *testing.T, fill byte) SigningKey {
	t.Helper()
	k, err := SigningKeyFromSeed(bytes.Repeat([]byte{fill}, SeedLength))
	if err != nil {
		t.Fatalf("SigningKeyFromSeed: %v", err)
	}
	return k
}

func testSecret(n byte) Secret {
	var s Secret
	for i := range s {
		s[i] = n ^ byte(i)
	}
	return s
}

type fixture struct {
	consumer SigningKey
	adaptor  SigningKey
	consts   Constants
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	consumer := testKey(t, 0x11)
	adaptor := testKey(t, 0x22)
	return fixture{
		consumer: consumer,
		adaptor:  adaptor,
		consts: Constants{
			Tag:         Tag("chan-1"),
			AddVkey:     consumer.VerificationKey(),
			SubVkey:     adaptor.VerificationKey(),
			ClosePeriod: 1000,
		},
	}
}

func (f fixture) locked(t *testing.T, index, amount uint64, timeout Timestamp, secret Secret) Locked {
	t.Helper()
	l, err := SignLocked(f.consumer, f.consts.Tag, ChequeBody{Index: index, Amount: amount, Timeout: timeout, Lock: secret.Lock()})
	if err != nil {
		t.Fatalf("SignLocked: %v", err)
	}
	return l
}

func (f fixture) unlocked(t *testing.T, index, amount uint64, timeout Timestamp, secret Secret) Unlocked {
	t.Helper()
	u, err := NewUnlocked(f.locked(t, index, amount, timeout, secret), secret)
	if err != nil {
		t.Fatalf("NewUnlocked: %v", err)
	}
	return u
}

func (f fixture) squash(t *testing.T, body SquashBody) Squash {
	t.Helper()
	sq, err := SignSquash(f.consumer, f.consts.Tag, body)
	if err != nil {
		t.Fatalf("SignSquash: %v", err)
	}
	return sq
}

func (f fixture) open(amount uint64) Channel {
	return Open(ScriptHash{0xaa}, f.consts, nil, amount)
}
