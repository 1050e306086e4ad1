package node

import (
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"konduit.dev/node/crypto"
)

func TestValidateConfigOK(t *testing.T) {
	cfg := DefaultConfig()
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
	d, err := cfg.Poll()
	if err != nil || d != 20*time.Second {
		t.Fatalf("Poll=%v err=%v", d, err)
	}
}

func TestValidateConfigRejects(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{"empty network", func(c *Config) { c.Network = " " }, "network"},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, "data_dir"},
		{"bad backend", func(c *Config) { c.DBBackend = "leveldb" }, "db_backend"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
		{"bad poll", func(c *Config) { c.PollInterval = "soon" }, "poll_interval"},
		{"zero poll", func(c *Config) { c.PollInterval = "0s" }, "poll_interval"},
		{"zero stale threshold", func(c *Config) { c.StaleThreshold = 0 }, "stale_threshold"},
		{"bad stale timeout", func(c *Config) { c.StaleTimeout = "-1s" }, "stale_timeout"},
		{"tag too long", func(c *Config) { c.MaxTagLength = 65 }, "max_tag_length"},
		{"zero min close", func(c *Config) { c.MinClosePeriod = 0 }, "min_close_period"},
		{"close below min", func(c *Config) { c.ClosePeriod = c.MinClosePeriod - 1 }, "close_period"},
		{"fee ppm", func(c *Config) { c.FeePPM = 1_000_000 }, "fee_ppm"},
		{"short key", func(c *Config) { c.SigningKeyHex = "abcd" }, "signing_key_hex"},
		{"bad key hex", func(c *Config) { c.SigningKeyHex = "zz" }, "signing_key_hex"},
		{"bad validator hex", func(c *Config) { c.ValidatorScriptHex = "xyz" }, "validator_script_hex"},
		{"both keys", func(c *Config) {
			c.SigningKeyHex = strings.Repeat("11", 32)
			c.KeyFile = "k.json"
		}, "mutually exclusive"},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mut(&cfg)
		err := ValidateConfig(cfg)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: error %q does not mention %q", tc.name, err, tc.want)
		}
	}
}

func TestConfigFeeRoundsUp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FeePPM = 1000
	cfg.FeeBase = 5
	cases := map[uint64]uint64{
		0:         5,
		1:         6,
		999:       6,
		1_000:     6,
		1_001:     7,
		1_000_000: 1_005,
	}
	for amount, want := range cases {
		if got := cfg.Fee(amount); got != want {
			t.Fatalf("Fee(%d)=%d want %d", amount, got, want)
		}
	}
	cfg.FeePPM, cfg.FeeBase = 0, 0
	if cfg.Fee(^uint64(0)) != 0 {
		t.Fatalf("zero fee schedule charged")
	}
}

func TestConfigBounds(t *testing.T) {
	cfg := DefaultConfig()
	b := cfg.Bounds()
	if b.MaxTagLength != cfg.MaxTagLength || uint64(b.MinClosePeriod) != cfg.MinClosePeriod {
		t.Fatalf("bounds=%+v", b)
	}
}

func TestConfigValidatorHash(t *testing.T) {
	cfg := DefaultConfig()
	h, err := cfg.ValidatorHash()
	if err != nil || h != nil {
		t.Fatalf("unset validator: hash=%v err=%v", h, err)
	}
	cfg.ValidatorScriptHex = "0x4d01000033222220051200120011"
	if _, err := cfg.ValidatorHash(); err == nil {
		t.Fatalf("0x prefix is not hex")
	}
	cfg.ValidatorScriptHex = "4d01000033222220051200120011"
	h, err = cfg.ValidatorHash()
	if err != nil || h == nil {
		t.Fatalf("hash=%v err=%v", h, err)
	}
	script, _ := hex.DecodeString(cfg.ValidatorScriptHex)
	if *h != crypto.ScriptHash(crypto.ScriptLanguagePlutusV3, script) {
		t.Fatalf("validator hash is not the Plutus V3 script hash")
	}
}
