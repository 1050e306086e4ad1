package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"konduit.dev/node/channel"
	"konduit.dev/node/crypto"
	"konduit.dev/node/node"
)

// kekFrom prefers an explicit flag and falls back to the environment.
func kekFrom(flagValue string, getenv func(string) string) ([]byte, error) {
	if flagValue != "" {
		return node.ParseKEK(flagValue)
	}
	return node.ParseKEK(getenv(node.KEKEnv))
}

func cmdKeymgrExportWrapped(argv []string, stderr io.Writer) (*crypto.KeyStore, error) {
	fs := flag.NewFlagSet("keymgr export-wrapped", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "", "output keystore json path")
	seedHex := fs.String("seed-hex", "", "ed25519 seed to wrap (hex); a fresh one is generated when empty")
	kekHex := fs.String("kek-hex", "", "AES-256 KEK (32 bytes hex, default $"+node.KEKEnv+")")
	if err := fs.Parse(argv); err != nil {
		return nil, err
	}
	if *out == "" {
		return nil, fmt.Errorf("missing required flag: --out")
	}
	kek, err := kekFrom(*kekHex, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("kek: %w", err)
	}
	var seed []byte
	if *seedHex != "" {
		if seed, err = hex.DecodeString(strings.TrimSpace(*seedHex)); err != nil {
			return nil, fmt.Errorf("seed-hex: %w", err)
		}
	} else {
		seed = make([]byte, channel.SeedLength)
		if _, err := rand.Read(seed); err != nil {
			return nil, err
		}
	}
	ks, err := crypto.SealKeyStore(kek, seed)
	if err != nil {
		return nil, err
	}
	return ks, crypto.WriteKeyStore(*out, ks)
}

func cmdKeymgrImportWrapped(argv []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("keymgr import-wrapped", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := fs.String("in", "", "input keystore json path")
	out := fs.String("out", "", "output keystore json path")
	oldKekHex := fs.String("old-kek-hex", "", "old AES-256 KEK (32 bytes hex)")
	newKekHex := fs.String("new-kek-hex", "", "new AES-256 KEK (32 bytes hex)")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if *in == "" || *out == "" || *oldKekHex == "" || *newKekHex == "" {
		return fmt.Errorf("missing required flags: --in --out --old-kek-hex --new-kek-hex")
	}
	ks, err := crypto.ReadKeyStore(*in)
	if err != nil {
		return err
	}
	oldKek, err := node.ParseKEK(*oldKekHex)
	if err != nil {
		return fmt.Errorf("old-kek-hex: %w", err)
	}
	newKek, err := node.ParseKEK(*newKekHex)
	if err != nil {
		return fmt.Errorf("new-kek-hex: %w", err)
	}
	next, err := ks.Rewrap(oldKek, newKek)
	if err != nil {
		return err
	}
	return crypto.WriteKeyStore(*out, next)
}

// cmdKeymgrVerifyVkey recomputes the key hash from the stored vkey and, when
// a KEK is available, checks that the wrapped seed opens to that vkey.
func cmdKeymgrVerifyVkey(argv []string, stderr io.Writer) (string, error) {
	fs := flag.NewFlagSet("keymgr verify-vkey", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := fs.String("in", "", "input keystore json path")
	kekHex := fs.String("kek-hex", "", "optional AES-256 KEK to test the unwrap")
	expected := fs.String("expected-key-hash-hex", "", "optional expected key hash hex")
	if err := fs.Parse(argv); err != nil {
		return "", err
	}
	if *in == "" {
		return "", fmt.Errorf("missing required flag: --in")
	}
	ks, err := crypto.ReadKeyStore(*in)
	if err != nil {
		return "", err
	}
	raw, err := hex.DecodeString(ks.VkeyHex)
	if err != nil {
		return "", fmt.Errorf("vkey_hex: %w", err)
	}
	vk, err := channel.VerificationKeyFromBytes(raw)
	if err != nil {
		return "", err
	}
	kh := crypto.KeyHash(vk)
	got := hex.EncodeToString(kh[:])
	if ks.KeyHashHex != "" && !strings.EqualFold(ks.KeyHashHex, got) {
		return "", fmt.Errorf("keystore key_hash mismatch: embedded=%s computed=%s", ks.KeyHashHex, got)
	}
	if *expected != "" {
		exp := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(*expected), "0x"))
		if exp != got {
			return "", fmt.Errorf("expected key_hash mismatch: expected=%s computed=%s", exp, got)
		}
	}
	if *kekHex != "" {
		kek, err := node.ParseKEK(*kekHex)
		if err != nil {
			return "", fmt.Errorf("kek-hex: %w", err)
		}
		if _, err := ks.Open(kek); err != nil {
			return "", err
		}
	}
	return got, nil
}

func keymgrMain(argv []string, stdout, stderr io.Writer) int {
	if len(argv) < 1 {
		_, _ = fmt.Fprintln(stderr, "usage: konduit-node keymgr <subcommand> [flags]")
		return 2
	}
	sub, subargv := argv[0], argv[1:]
	switch sub {
	case "export-wrapped":
		ks, err := cmdKeymgrExportWrapped(subargv, stderr)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, "keymgr export-wrapped error:", err)
			return 1
		}
		_, _ = fmt.Fprintln(stdout, ks.VkeyHex)
		return 0
	case "import-wrapped":
		if err := cmdKeymgrImportWrapped(subargv, stderr); err != nil {
			_, _ = fmt.Fprintln(stderr, "keymgr import-wrapped error:", err)
			return 1
		}
		_, _ = fmt.Fprintln(stdout, "OK")
		return 0
	case "verify-vkey":
		out, err := cmdKeymgrVerifyVkey(subargv, stderr)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, "keymgr verify-vkey error:", err)
			return 1
		}
		_, _ = fmt.Fprintln(stdout, out)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown keymgr subcommand: %s\n", sub)
		return 2
	}
}
