package node

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"konduit.dev/node/channel"
	"konduit.dev/node/crypto"
	"konduit.dev/node/node/store"
)

// Config is the adaptor daemon configuration. Durations are Go duration
// strings; ledger periods are milliseconds, as on the ledger.
type Config struct {
	Network        string `json:"network"`
	DataDir        string `json:"data_dir"`
	DBBackend      string `json:"db_backend"`
	LogLevel       string `json:"log_level"`
	LedgerSnapshot string `json:"ledger_snapshot"`
	PollInterval   string `json:"poll_interval"`
	StaleThreshold int    `json:"stale_threshold"`
	StaleTimeout   string `json:"stale_timeout"`

	MaxTagLength   int    `json:"max_tag_length"`
	MinClosePeriod uint64 `json:"min_close_period"`
	ClosePeriod    uint64 `json:"close_period"`
	MinChequeTTL   uint64 `json:"min_cheque_ttl"`
	FeePPM         uint64 `json:"fee_ppm"`
	FeeBase        uint64 `json:"fee_base"`

	// ValidatorScriptHex is the serialized Plutus V3 validator. When set,
	// only channels locked at its script hash are served.
	ValidatorScriptHex string `json:"validator_script_hex,omitempty"`

	SigningKeyHex string `json:"signing_key_hex,omitempty"`
	KeyFile       string `json:"key_file,omitempty"`
}

// KEKEnv names the environment variable holding the hex KEK for KeyFile.
const KEKEnv = "KONDUIT_KEK_HEX"

const (
	dayMillis  = 24 * 60 * 60 * 1000
	hourMillis = 60 * 60 * 1000
)

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".konduit"
	}
	return filepath.Join(home, ".konduit")
}

func DefaultConfig() Config {
	return Config{
		Network:        "preview",
		DataDir:        DefaultDataDir(),
		DBBackend:      store.BackendBolt,
		LogLevel:       "info",
		PollInterval:   "20s",
		StaleThreshold: 3,
		StaleTimeout:   "10m",
		MaxTagLength:   channel.DefaultMaxTagLength,
		MinClosePeriod: dayMillis,
		ClosePeriod:    2 * dayMillis,
		MinChequeTTL:   hourMillis,
		FeePPM:         1000,
		FeeBase:        0,
	}
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Network) == "" {
		return errors.New("network is required")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	switch cfg.DBBackend {
	case store.BackendBolt, store.BackendSQLite:
	default:
		return fmt.Errorf("invalid db_backend %q", cfg.DBBackend)
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if _, err := cfg.Poll(); err != nil {
		return err
	}
	if cfg.StaleThreshold <= 0 {
		return errors.New("stale_threshold must be > 0")
	}
	if _, err := cfg.StaleAfter(); err != nil {
		return err
	}
	if cfg.MaxTagLength <= 0 || cfg.MaxTagLength > 64 {
		return errors.New("max_tag_length must be in 1..64")
	}
	if cfg.MinClosePeriod == 0 {
		return errors.New("min_close_period must be > 0")
	}
	if cfg.ClosePeriod < cfg.MinClosePeriod {
		return errors.New("close_period must be >= min_close_period")
	}
	if cfg.FeePPM >= 1_000_000 {
		return errors.New("fee_ppm must be < 1000000")
	}
	if _, err := cfg.ValidatorHash(); err != nil {
		return err
	}
	if cfg.SigningKeyHex != "" && cfg.KeyFile != "" {
		return errors.New("signing_key_hex and key_file are mutually exclusive")
	}
	if cfg.SigningKeyHex != "" {
		raw, err := hex.DecodeString(strings.TrimSpace(cfg.SigningKeyHex))
		if err != nil {
			return fmt.Errorf("invalid signing_key_hex: %w", err)
		}
		if len(raw) != channel.SeedLength {
			return fmt.Errorf("signing_key_hex must be %d bytes", channel.SeedLength)
		}
	}
	return nil
}

func (c Config) Poll() (time.Duration, error) {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid poll_interval: %w", err)
	}
	if d <= 0 {
		return 0, errors.New("poll_interval must be > 0")
	}
	return d, nil
}

// StaleAfter is how long the ledger view may stay stale before the daemon
// gives up. Zero disables the limit.
func (c Config) StaleAfter() (time.Duration, error) {
	d, err := time.ParseDuration(c.StaleTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid stale_timeout: %w", err)
	}
	if d < 0 {
		return 0, errors.New("stale_timeout must be >= 0")
	}
	return d, nil
}

// ValidatorHash is the script hash of the configured validator, or nil when
// none is configured.
func (c Config) ValidatorHash() (*channel.ScriptHash, error) {
	s := strings.TrimSpace(c.ValidatorScriptHex)
	if s == "" {
		return nil, nil
	}
	script, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid validator_script_hex: %w", err)
	}
	if len(script) == 0 {
		return nil, errors.New("validator_script_hex is empty")
	}
	h := crypto.ScriptHash(crypto.ScriptLanguagePlutusV3, script)
	return &h, nil
}

// Bounds are the limits a channel's constants must meet before the adaptor
// serves it.
func (c Config) Bounds() channel.Bounds {
	return channel.Bounds{
		MaxTagLength:   c.MaxTagLength,
		MinClosePeriod: channel.Duration(c.MinClosePeriod),
	}
}

// Fee is what the adaptor charges on top of amount.
func (c Config) Fee(amount uint64) uint64 {
	hi, lo := amount/1_000_000, amount%1_000_000
	return c.FeeBase + hi*c.FeePPM + (lo*c.FeePPM+999_999)/1_000_000
}
