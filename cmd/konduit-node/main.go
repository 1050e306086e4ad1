package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/lightningnetwork/lnd/lntypes"

	"konduit.dev/node/node"
	"konduit.dev/node/node/store"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// newLightning is replaced in tests.
var newLightning = func(cfg node.Config) node.Lightning { return unavailableLightning{} }

// unavailableLightning stands in until a Lightning backend is configured;
// the daemon still tracks channels and plans transitions without one.
type unavailableLightning struct{}

var errNoLightning = errors.New("lightning backend not configured")

func (unavailableLightning) Quote(context.Context, node.QuoteRequest) (node.Quote, error) {
	return node.Quote{}, errNoLightning
}

func (unavailableLightning) Pay(context.Context, node.PayRequest) (lntypes.Preimage, error) {
	return lntypes.Preimage{}, errNoLightning
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: konduit-node [run|tip|show-tip|show-config] [flags]")
	_, _ = fmt.Fprintln(w, "       konduit-node keymgr <export-wrapped|import-wrapped|verify-vkey> [flags]")
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "keymgr":
		return keymgrMain(args, stdout, stderr)
	case "run", "tip", "show-tip", "show-config":
	case "help":
		usage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		usage(stderr)
		return 2
	}

	defaults := node.DefaultConfig()
	cfg := defaults
	fs := flag.NewFlagSet("konduit-node "+cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.Network, "network", defaults.Network, "network name (preview/preprod/mainnet)")
	fs.StringVar(&cfg.DataDir, "datadir", defaults.DataDir, "node data directory")
	fs.StringVar(&cfg.DBBackend, "db-backend", defaults.DBBackend, "channel store backend: bolt|sqlite")
	fs.StringVar(&cfg.LogLevel, "log-level", defaults.LogLevel, "log level: debug|info|warn|error")
	fs.StringVar(&cfg.LedgerSnapshot, "ledger-snapshot", defaults.LedgerSnapshot, "ledger snapshot file (default <datadir>/networks/<network>/ledger.snapshot)")
	fs.StringVar(&cfg.PollInterval, "poll-interval", defaults.PollInterval, "ledger poll interval")
	fs.IntVar(&cfg.StaleThreshold, "stale-threshold", defaults.StaleThreshold, "failed polls before the ledger view is stale")
	fs.StringVar(&cfg.StaleTimeout, "stale-timeout", defaults.StaleTimeout, "stale duration before the daemon exits (0 disables)")
	fs.IntVar(&cfg.MaxTagLength, "max-tag-length", defaults.MaxTagLength, "longest channel tag served")
	fs.Uint64Var(&cfg.MinClosePeriod, "min-close-period", defaults.MinClosePeriod, "shortest close period served (ms)")
	fs.Uint64Var(&cfg.ClosePeriod, "close-period", defaults.ClosePeriod, "close period advertised to consumers (ms)")
	fs.Uint64Var(&cfg.MinChequeTTL, "min-cheque-ttl", defaults.MinChequeTTL, "margin past the Lightning timeout a cheque must carry (ms)")
	fs.Uint64Var(&cfg.FeePPM, "fee-ppm", defaults.FeePPM, "proportional fee in parts per million")
	fs.Uint64Var(&cfg.FeeBase, "fee-base", defaults.FeeBase, "flat fee per payment")
	fs.StringVar(&cfg.SigningKeyHex, "signing-key-hex", defaults.SigningKeyHex, "adaptor ed25519 seed (hex, dev only)")
	fs.StringVar(&cfg.KeyFile, "key-file", defaults.KeyFile, "wrapped adaptor keystore (KEK in "+node.KEKEnv+")")
	dryRun := fs.Bool("dry-run", false, "print effective config and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if err := node.ValidateConfig(cfg); err != nil {
		_, _ = fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 2
	}
	if *dryRun {
		if err := printJSON(stdout, redacted(cfg)); err != nil {
			_, _ = fmt.Fprintf(stderr, "config encode failed: %v\n", err)
			return 1
		}
		return 0
	}

	logger := newLogger(stderr, cfg.LogLevel)
	signer, err := node.LoadSigner(cfg, os.Getenv)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "signing key: %v\n", err)
		return 2
	}
	st, err := store.Open(cfg.DBBackend, cfg.DataDir, cfg.Network)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "store open failed: %v\n", err)
		return 2
	}
	defer func() { _ = st.Close() }()

	snapshot := cfg.LedgerSnapshot
	if snapshot == "" {
		snapshot = filepath.Join(store.NetworkDir(cfg.DataDir, cfg.Network), "ledger.snapshot")
	}
	adaptor, err := node.NewAdaptor(cfg, signer.VerificationKey(), node.AdaptorDeps{
		Store:     st,
		Ledger:    node.FileLedger{Path: snapshot},
		Lightning: newLightning(cfg),
		Logger:    logger,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "adaptor init failed: %v\n", err)
		return 2
	}

	switch cmd {
	case "show-config":
		return emit(stdout, stderr, adaptor.ShowConfig())
	case "show-tip":
		chans, err := adaptor.ShowTip()
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "show-tip failed: %v\n", err)
			return 1
		}
		return emit(stdout, stderr, chans)
	case "tip":
		report, err := adaptor.Tip(context.Background())
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "tip failed: %v\n", err)
			return 1
		}
		return emit(stdout, stderr, report)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logger.Info("konduit-node running", "network", cfg.Network, "snapshot", snapshot, "backend", cfg.DBBackend)
	if err := adaptor.Run(ctx); err != nil {
		logger.Error("konduit-node stopped", "error", err.Error())
		return 1
	}
	logger.Info("konduit-node stopped")
	return 0
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// redacted hides the raw seed from printed config.
func redacted(cfg node.Config) node.Config {
	if cfg.SigningKeyHex != "" {
		cfg.SigningKeyHex = "<redacted>"
	}
	return cfg
}

func emit(stdout, stderr io.Writer, v any) int {
	if err := printJSON(stdout, v); err != nil {
		_, _ = fmt.Fprintf(stderr, "encode failed: %v\n", err)
		return 1
	}
	return 0
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
