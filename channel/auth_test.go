package channel

import "testing"

func TestAuthorize_VerifiesUnderOwnTag(t *testing.T) {
	k := testKey(t, 0x01)
	body := ChequeBody{Index: 1, Amount: 10, Timeout: 99, Lock: testSecret(1).Lock()}
	sig, err := Authorize(k, Tag("a"), body)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !Verify(k.VerificationKey(), Tag("a"), body, sig) {
		t.Fatalf("signature must verify under its own tag")
	}
}

func TestAuthorize_TagBound(t *testing.T) {
	k := testKey(t, 0x01)
	bodies := []Encoder{
		ChequeBody{Index: 7, Amount: 1, Timeout: 2, Lock: testSecret(7).Lock()},
		SquashBody{Amount: 5, Index: 3},
	}
	for _, body := range bodies {
		sig, err := Authorize(k, Tag("tag-A"), body)
		if err != nil {
			t.Fatalf("Authorize: %v", err)
		}
		if Verify(k.VerificationKey(), Tag("tag-B"), body, sig) {
			t.Fatalf("%T: signature under tag-A verified under tag-B", body)
		}
		if Verify(k.VerificationKey(), nil, body, sig) {
			t.Fatalf("%T: signature under tag-A verified under empty tag", body)
		}
	}
}

func TestAuthorize_WrongKeyRejected(t *testing.T) {
	body := SquashBody{Amount: 5, Index: 3}
	sig, err := Authorize(testKey(t, 0x01), Tag("t"), body)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if Verify(testKey(t, 0x02).VerificationKey(), Tag("t"), body, sig) {
		t.Fatalf("signature verified under a different key")
	}
}

func TestSigningKey_ZeroValueFails(t *testing.T) {
	var k SigningKey
	if _, err := k.Sign([]byte("x")); err == nil {
		t.Fatalf("expected error")
	}
	if k.VerificationKey() != (VerificationKey{}) {
		t.Fatalf("zero key must have zero verification key")
	}
}

func TestKeytag_SplitRoundTrip(t *testing.T) {
	vk := testKey(t, 0x03).VerificationKey()
	kt := NewKeytag(vk, Tag("abc"))
	gotVK, gotTag := kt.Split()
	if gotVK != vk || string(gotTag) != "abc" {
		t.Fatalf("split mismatch: %x %q", gotVK, gotTag)
	}
	parsed, err := ParseKeytagHex(kt.String(), DefaultMaxTagLength)
	if err != nil {
		t.Fatalf("ParseKeytagHex: %v", err)
	}
	if !parsed.Equal(kt) {
		t.Fatalf("hex round trip mismatch")
	}
}

func TestParseKeytag_Bounds(t *testing.T) {
	_, err := ParseKeytag(make([]byte, 31), DefaultMaxTagLength)
	wantCode(t, err, ERR_BAD_LENGTH)
	_, err = ParseKeytag(make([]byte, 32+33), DefaultMaxTagLength)
	wantCode(t, err, ERR_BAD_LENGTH)
	if _, err := ParseKeytag(make([]byte, 32), DefaultMaxTagLength); err != nil {
		t.Fatalf("empty tag must parse: %v", err)
	}
	_, err = ParseKeytagHex("zz", DefaultMaxTagLength)
	wantCode(t, err, ERR_PARSE)
}
