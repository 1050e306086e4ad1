package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"konduit.dev/node/channel"
	"konduit.dev/node/crypto"
)

var (
	consumerSeed = strings.Repeat("21", channel.SeedLength)
	testTag      = hex.EncodeToString([]byte("cli-tag"))
)

func runReq(t *testing.T, req Request) Response {
	t.Helper()
	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return runRaw(t, raw)
}

func runRaw(t *testing.T, raw []byte) Response {
	t.Helper()
	var out bytes.Buffer
	runFromStdin(bytes.NewReader(raw), &out)
	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", out.String(), err)
	}
	return resp
}

func mustOk(t *testing.T, resp Response) Response {
	t.Helper()
	if !resp.Ok {
		t.Fatalf("unexpected error: %s", resp.Err)
	}
	return resp
}

func consumerVkey(t *testing.T) channel.VerificationKey {
	t.Helper()
	seed, _ := hex.DecodeString(consumerSeed)
	s, err := crypto.NewTinkSigner(seed)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return s.VerificationKey()
}

func signCheque(t *testing.T, index, amount uint64, secret channel.Secret) string {
	t.Helper()
	resp := mustOk(t, runReq(t, Request{
		Op:      "sign_cheque",
		SeedHex: consumerSeed,
		TagHex:  testTag,
		Index:   index,
		Amount:  amount,
		Timeout: 5_000,
		LockHex: secret.Lock().String(),
	}))
	return resp.ChequeHex
}

func TestBadRequestAndUnknownOp(t *testing.T) {
	if resp := runRaw(t, []byte("{")); resp.Ok || !strings.HasPrefix(resp.Err, "bad request") {
		t.Fatalf("resp=%+v", resp)
	}
	if resp := runReq(t, Request{Op: "nope"}); resp.Ok || resp.Err != "unknown op" {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestKeytagAndKeyHash(t *testing.T) {
	vk := consumerVkey(t)
	resp := mustOk(t, runReq(t, Request{Op: "keytag", VkeyHex: vk.String(), TagHex: testTag}))
	if want := channel.NewKeytag(vk, channel.Tag("cli-tag")).String(); resp.KeytagHex != want {
		t.Fatalf("keytag=%s, want %s", resp.KeytagHex, want)
	}
	resp = mustOk(t, runReq(t, Request{Op: "key_hash", VkeyHex: vk.String()}))
	if want := crypto.KeyHash(vk).String(); resp.KeyHashHex != want {
		t.Fatalf("key_hash=%s, want %s", resp.KeyHashHex, want)
	}
	if resp := runReq(t, Request{Op: "keytag", VkeyHex: "abcd"}); resp.Ok || resp.Err != string(channel.ERR_BAD_LENGTH) {
		t.Fatalf("short vkey resp=%+v", resp)
	}
}

func TestChequeSignUnlockVerify(t *testing.T) {
	var secret channel.Secret
	secret[0] = 9
	locked := signCheque(t, 1, 700, secret)
	vk := consumerVkey(t).String()

	mustOk(t, runReq(t, Request{Op: "verify", VkeyHex: vk, TagHex: testTag, ChequeHex: locked}))
	other := hex.EncodeToString([]byte("other"))
	if resp := runReq(t, Request{Op: "verify", VkeyHex: vk, TagHex: other, ChequeHex: locked}); resp.Err != string(channel.ERR_BAD_SIGNATURE) {
		t.Fatalf("wrong tag resp=%+v", resp)
	}

	resp := mustOk(t, runReq(t, Request{Op: "unlock_cheque", ChequeHex: locked, SecretHex: secret.String()}))
	mustOk(t, runReq(t, Request{Op: "verify", VkeyHex: vk, TagHex: testTag, ChequeHex: resp.ChequeHex}))

	var wrong channel.Secret
	if resp := runReq(t, Request{Op: "unlock_cheque", ChequeHex: locked, SecretHex: wrong.String()}); resp.Err != string(channel.ERR_SECRET_MISMATCH) {
		t.Fatalf("wrong secret resp=%+v", resp)
	}
	if resp := runReq(t, Request{Op: "verify", VkeyHex: vk, TagHex: testTag}); resp.Ok {
		t.Fatalf("verify without payload succeeded")
	}
}

func TestSquashOutOfOrderThenSub(t *testing.T) {
	var s channel.Secret
	c1 := signCheque(t, 1, 100, s)
	c2 := signCheque(t, 2, 200, s)
	c3 := signCheque(t, 3, 300, s)

	resp := mustOk(t, runReq(t, Request{Op: "squash", Cheques: []string{c3}}))
	if resp.Index != 3 || resp.Amount != 300 || len(resp.Exclude) != 2 {
		t.Fatalf("after 3: %+v", resp)
	}
	resp = mustOk(t, runReq(t, Request{Op: "squash", BodyHex: resp.BodyHex, Cheques: []string{c1, c2}}))
	if resp.Index != 3 || resp.Amount != 600 || len(resp.Exclude) != 0 {
		t.Fatalf("after 1,2: %+v", resp)
	}
	if dup := runReq(t, Request{Op: "squash", BodyHex: resp.BodyHex, Cheques: []string{c2}}); dup.Err != string(channel.ERR_DUPLICATE_INDEX) {
		t.Fatalf("replay resp=%+v", dup)
	}

	sq := mustOk(t, runReq(t, Request{Op: "sign_squash", SeedHex: consumerSeed, TagHex: testTag, BodyHex: resp.BodyHex}))
	vk := consumerVkey(t)
	mustOk(t, runReq(t, Request{Op: "verify", VkeyHex: vk.String(), TagHex: testTag, SquashHex: sq.SquashHex}))

	adaptor, err := crypto.NewTinkSigner(bytes.Repeat([]byte{0x44}, channel.SeedLength))
	if err != nil {
		t.Fatalf("adaptor: %v", err)
	}
	ch := channel.Open(channel.ScriptHash{}, channel.Constants{
		Tag:         channel.Tag("cli-tag"),
		AddVkey:     vk,
		SubVkey:     adaptor.VerificationKey(),
		ClosePeriod: 1000,
	}, nil, 1_000)
	raw, err := ch.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal channel: %v", err)
	}
	step := mustOk(t, runReq(t, Request{
		Op:         "step",
		ChannelHex: hex.EncodeToString(raw),
		Intent:     &IntentJSON{Kind: "sub", SquashHex: sq.SquashHex, UpperBound: 10},
	}))
	if step.Step != "sub" || step.Claimed != 600 || step.Stage != "opened" {
		t.Fatalf("step=%+v", step)
	}
	var next channel.Channel
	nb, _ := hex.DecodeString(step.ChannelHex)
	if err := next.UnmarshalBinary(nb); err != nil {
		t.Fatalf("next: %v", err)
	}
	if next.Amount != 400 {
		t.Fatalf("next amount=%d, want 400", next.Amount)
	}

	again := runReq(t, Request{Op: "step", ChannelHex: step.ChannelHex, Intent: &IntentJSON{Kind: "sub", SquashHex: sq.SquashHex, UpperBound: 10}})
	if again.Err != string(channel.ERR_NOTHING_TO_RELEASE) {
		t.Fatalf("second sub resp=%+v", again)
	}
	closed := mustOk(t, runReq(t, Request{Op: "step", ChannelHex: step.ChannelHex, Intent: &IntentJSON{Kind: "close", UpperBound: 50}}))
	if closed.Stage != "closed" {
		t.Fatalf("close=%+v", closed)
	}
	if resp := runReq(t, Request{Op: "step", ChannelHex: step.ChannelHex, Intent: &IntentJSON{Kind: "warp"}}); resp.Ok {
		t.Fatalf("unknown intent accepted")
	}
}
