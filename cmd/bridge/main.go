package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/polybridge/config"
	"github.com/alejandrodnm/polybridge/internal/adapters/notify"
	"github.com/alejandrodnm/polybridge/internal/adapters/polymarket"
	"github.com/alejandrodnm/polybridge/internal/adapters/storage"
	"github.com/alejandrodnm/polybridge/internal/auth"
	"github.com/alejandrodnm/polybridge/internal/domain"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional, env/.env only without it)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)
	log := slog.Default()

	sigType, err := domain.ParseSignatureType(cfg.Auth.SignatureType)
	if err != nil {
		log.Error("invalid signature type in config", "err", err)
		os.Exit(1)
	}

	resolver, err := auth.NewResolver(auth.IdentityInputs{
		PrivateKey:        cfg.Auth.PrivateKey,
		SignatureType:     sigType,
		FunderAddress:     cfg.Auth.FunderAddress,
		OverrideAddress:   cfg.Auth.OverrideAddress,
		ConfiguredAddress: cfg.Auth.ConfiguredAddress,
		ForceMismatch:     cfg.Auth.ForceMismatch,
	}, log)
	if err != nil {
		log.Error("identity resolution failed", "err", err)
		os.Exit(1)
	}

	authCtx := auth.NewContext()

	gateway, err := polymarket.NewAuthClient(cfg.API.CLOBBase, cfg.API.GammaBase, cfg.Auth.PrivateKey, authCtx, resolver, log)
	if err != nil {
		log.Error("failed to build CLOB client", "err", err)
		os.Exit(1)
	}

	journal, err := storage.NewSQLiteJournal(cfg.Storage.DSN)
	if err != nil {
		log.Error("failed to open journal", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer journal.Close()

	console := notify.NewConsole(cfg.Auth.Debug)
	limiter := auth.NewFailureLimiter(0, 0, nil)

	userCreds := domain.Credentials{
		Key:        cfg.Auth.APIKey,
		Secret:     cfg.Auth.Secret,
		Passphrase: cfg.Auth.Passphrase,
	}

	matrixCfg, err := buildMatrixConfig(cfg.Auth)
	if err != nil {
		log.Error("invalid matrix candidates in config", "err", err)
		os.Exit(1)
	}
	preflightCfg := auth.PreflightConfig{
		BaseBackoff: cfg.PreflightBackoffBase(),
		MaxBackoff:  cfg.PreflightBackoffMax(),
	}

	b := &bridge{
		cfg:        cfg,
		negotiator: auth.NewNegotiator(gateway, authCtx, resolver, limiter, userCreds, log),
		verifier:   auth.NewVerifier(gateway, authCtx, resolver, limiter, journal, preflightCfg, log),
		prober:     auth.NewProber(gateway, authCtx, resolver, console, userCreds, matrixCfg, log),
		resolver:   resolver,
		trading:    polymarket.NewTradingClient(gateway),
		balance:    gateway,
		markets:    gateway,
		journal:    journal,
		console:    console,
		gate:       domain.NewLiveGate(),
		log:        log,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("polybridge ready",
		"signer", resolver.DerivedAddress(),
		"signature_type", sigType.String(),
		"explicit_creds", cfg.HasExplicitCreds(),
		"matrix_probe", cfg.Auth.MatrixProbe,
	)

	if err := b.Run(ctx, os.Stdin, os.Stdout); err != nil {
		log.Error("bridge exited with error", "err", err)
		os.Exit(1)
	}
	log.Info("polybridge stopped cleanly")
}

// buildMatrixConfig starts from the prober defaults and narrows each
// candidate axis to whatever the operator listed in the config. Unknown
// names are fatal: a typo silently shrinking the sweep would be worse.
func buildMatrixConfig(cfg config.AuthConfig) (auth.MatrixConfig, error) {
	mc := auth.DefaultMatrixConfig()

	if len(cfg.MatrixSignatureTypes) > 0 {
		types := make([]domain.SignatureType, 0, len(cfg.MatrixSignatureTypes))
		for _, s := range cfg.MatrixSignatureTypes {
			st, err := domain.ParseSignatureType(s)
			if err != nil {
				return auth.MatrixConfig{}, err
			}
			types = append(types, st)
		}
		mc.SignatureTypes = types
	}
	if len(cfg.MatrixSecretModes) > 0 {
		modes := make([]domain.SecretMode, 0, len(cfg.MatrixSecretModes))
		for _, s := range cfg.MatrixSecretModes {
			m, err := domain.ParseSecretMode(s)
			if err != nil {
				return auth.MatrixConfig{}, err
			}
			modes = append(modes, m)
		}
		mc.SecretModes = modes
	}
	if len(cfg.MatrixSigEncodings) > 0 {
		encs := make([]domain.SigEncoding, 0, len(cfg.MatrixSigEncodings))
		for _, s := range cfg.MatrixSigEncodings {
			e, err := domain.ParseSigEncoding(s)
			if err != nil {
				return auth.MatrixConfig{}, err
			}
			encs = append(encs, e)
		}
		mc.SigEncodings = encs
	}

	return mc, nil
}

// setupLogger configures the default slog logger. Logs always go to stderr:
// stdout belongs to the JSON-line protocol.
func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
