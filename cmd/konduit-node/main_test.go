package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"konduit.dev/node/channel"
	"konduit.dev/node/crypto"
	"konduit.dev/node/node"
)

var testSeed = bytes.Repeat([]byte{0x5a}, channel.SeedLength)

func runCmd(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRunDryRunPrintsConfig(t *testing.T) {
	dir := t.TempDir()
	code, out, errOut := runCmd(t, "--dry-run", "--datadir", dir, "--log-level", "INFO", "--signing-key-hex", hex.EncodeToString(testSeed))
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr=%q)", code, errOut)
	}
	var cfg node.Config
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("decode: %v (out=%q)", err, out)
	}
	if cfg.DataDir != dir || cfg.LogLevel != "info" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.SigningKeyHex != "<redacted>" {
		t.Fatalf("seed leaked: %q", cfg.SigningKeyHex)
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	cases := [][]string{
		{"--dry-run", "--datadir", dir, "--db-backend", "leveldb"},
		{"--dry-run", "--datadir", dir, "--fee-ppm", "1000000"},
		{"--no-such-flag"},
		{"frobnicate"},
		{"show-config", "--datadir", dir},
	}
	for _, args := range cases {
		if code, _, _ := runCmd(t, args...); code != 2 {
			t.Fatalf("args %v: code=%d, want 2", args, code)
		}
	}
}

func TestShowConfig(t *testing.T) {
	dir := t.TempDir()
	code, out, errOut := runCmd(t, "show-config", "--datadir", dir, "--signing-key-hex", hex.EncodeToString(testSeed), "--fee-ppm", "250")
	if code != 0 {
		t.Fatalf("code=%d stderr=%q", code, errOut)
	}
	var v node.ConfigView
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	signer, err := crypto.NewTinkSigner(testSeed)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	if v.AdaptorVkey != signer.VerificationKey().String() {
		t.Fatalf("adaptor_vkey=%s", v.AdaptorVkey)
	}
	if v.FeePPM != 250 {
		t.Fatalf("fee_ppm=%d", v.FeePPM)
	}
}

func TestTipThenShowTip(t *testing.T) {
	dir := t.TempDir()
	signer, err := crypto.NewTinkSigner(testSeed)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	consumer, err := channel.SigningKeyFromSeed(bytes.Repeat([]byte{0x01}, channel.SeedLength))
	if err != nil {
		t.Fatalf("consumer key: %v", err)
	}
	consts := channel.Constants{
		Tag:         channel.Tag("cli"),
		AddVkey:     consumer.VerificationKey(),
		SubVkey:     signer.VerificationKey(),
		ClosePeriod: channel.Duration(node.DefaultConfig().MinClosePeriod),
	}
	snapshot := filepath.Join(dir, "ledger.snapshot")
	if err := node.WriteSnapshot(snapshot, []channel.Channel{channel.Open(channel.ScriptHash{}, consts, nil, 9_000)}); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	common := []string{"--datadir", dir, "--ledger-snapshot", snapshot, "--signing-key-hex", hex.EncodeToString(testSeed), "--log-level", "error"}
	code, out, errOut := runCmd(t, append([]string{"tip"}, common...)...)
	if code != 0 {
		t.Fatalf("tip code=%d stderr=%q", code, errOut)
	}
	var report node.TipReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode tip: %v", err)
	}
	if report.Added != 1 || len(report.Channels) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	code, out, errOut = runCmd(t, append([]string{"show-tip"}, common...)...)
	if code != 0 {
		t.Fatalf("show-tip code=%d stderr=%q", code, errOut)
	}
	var infos []node.ChannelInfo
	if err := json.Unmarshal([]byte(out), &infos); err != nil {
		t.Fatalf("decode show-tip: %v", err)
	}
	if len(infos) != 1 || infos[0].Keytag != consts.Keytag().String() || infos[0].Capacity != 9_000 {
		t.Fatalf("unexpected channels: %+v", infos)
	}

	if err := os.Remove(snapshot); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if code, _, _ := runCmd(t, append([]string{"tip"}, common...)...); code != 1 {
		t.Fatalf("tip without snapshot code=%d, want 1", code)
	}
}

func TestKeymgrLifecycle(t *testing.T) {
	dir := t.TempDir()
	kek1 := hex.EncodeToString(bytes.Repeat([]byte{0x11}, 32))
	kek2 := hex.EncodeToString(bytes.Repeat([]byte{0x22}, 32))
	ks1 := filepath.Join(dir, "ks1.json")
	ks2 := filepath.Join(dir, "ks2.json")

	code, out, errOut := runCmd(t, "keymgr", "export-wrapped", "--out", ks1, "--kek-hex", kek1, "--seed-hex", hex.EncodeToString(testSeed))
	if code != 0 {
		t.Fatalf("export code=%d stderr=%q", code, errOut)
	}
	signer, err := crypto.NewTinkSigner(testSeed)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	if strings.TrimSpace(out) != signer.VerificationKey().String() {
		t.Fatalf("export printed %q", out)
	}

	if code, _, errOut := runCmd(t, "keymgr", "import-wrapped", "--in", ks1, "--out", ks2, "--old-kek-hex", kek1, "--new-kek-hex", kek2); code != 0 {
		t.Fatalf("import code=%d stderr=%q", code, errOut)
	}
	kh := signer.KeyHash()
	code, out, errOut = runCmd(t, "keymgr", "verify-vkey", "--in", ks2, "--kek-hex", kek2, "--expected-key-hash-hex", "0x"+hex.EncodeToString(kh[:]))
	if code != 0 {
		t.Fatalf("verify code=%d stderr=%q", code, errOut)
	}
	if strings.TrimSpace(out) != hex.EncodeToString(kh[:]) {
		t.Fatalf("verify printed %q", out)
	}
	if code, _, _ := runCmd(t, "keymgr", "verify-vkey", "--in", ks2, "--kek-hex", kek1); code != 1 {
		t.Fatalf("verify with old kek code=%d, want 1", code)
	}
	if code, _, _ := runCmd(t, "keymgr", "export-wrapped", "--kek-hex", kek1); code != 1 {
		t.Fatalf("export without --out code=%d, want 1", code)
	}
	if code, _, _ := runCmd(t, "keymgr"); code != 2 {
		t.Fatalf("bare keymgr code=%d, want 2", code)
	}

	t.Setenv(node.KEKEnv, kek2)
	code, out, errOut = runCmd(t, "show-config", "--datadir", dir, "--key-file", ks2)
	if code != 0 {
		t.Fatalf("show-config with key file code=%d stderr=%q", code, errOut)
	}
	if !strings.Contains(out, signer.VerificationKey().String()) {
		t.Fatalf("show-config missing vkey: %q", out)
	}
}
