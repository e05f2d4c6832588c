package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"viewledger/cmd/internal/secret"
	"viewledger/config"
	"viewledger/core"
	"viewledger/core/events"
	"viewledger/core/genesis"
	"viewledger/observability"
	"viewledger/observability/logging"
	telemetry "viewledger/observability/otel"
	"viewledger/rpc"
	"viewledger/services/eventindex"
	"viewledger/storage"
)

const (
	serviceName        = "viewledgerd"
	exportEventsCmd    = "export-events"
	defaultConfigPath  = "./config.toml"
	catchUpTimeout     = 2 * time.Minute
	telemetryShutdown  = 5 * time.Second
	idempotencyPruneIv = 10 * time.Minute
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == exportEventsCmd {
		if err := runExport(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	configFile := flag.String("config", defaultConfigPath, "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides config GenesisFile)")
	ephemeral := flag.Bool("ephemeral", false, "DEV ONLY: keep ledger state in memory and discard it on exit")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if trimmed := strings.TrimSpace(*genesisFlag); trimmed != "" {
		cfg.GenesisFile = trimmed
	}

	logger := logging.Setup(serviceName, cfg.Environment, logging.Options{
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Level:      cfg.Logging.Level,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *ephemeral); err != nil {
		logger.Error("viewledgerd exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("viewledgerd stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, ephemeral bool) error {
	backend := "leveldb"
	if ephemeral {
		backend = "memory"
	}
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:   serviceName,
		Environment:   cfg.Environment,
		LedgerBackend: backend,
		Endpoint:      cfg.Telemetry.Endpoint,
		Insecure:      cfg.Telemetry.Insecure,
		Headers:       cfg.Telemetry.Headers,
		Metrics:       cfg.Telemetry.Metrics,
		Traces:        cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdown)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	db, err := openLedger(cfg, ephemeral)
	if err != nil {
		return err
	}
	defer db.Close()
	if ephemeral {
		logger.Warn("ledger state is in memory and will be lost on exit")
	}

	fan := events.NewFanout(observability.Events())

	var index *eventindex.Store
	if cfg.EventIndex.Enabled {
		gdb, err := eventindex.Open(cfg.EventIndex.Driver, cfg.EventIndexDSN())
		if err != nil {
			return fmt.Errorf("open event index: %w", err)
		}
		index, err = eventindex.New(gdb, logger.With(slog.String("component", "eventindex")))
		if err != nil {
			return fmt.Errorf("migrate event index: %w", err)
		}
		fan.Add(index)
		logger.Info("event index opened",
			slog.String("driver", cfg.EventIndex.Driver),
			logging.MaskField("dsn", cfg.EventIndexDSN()))
	}

	processor, err := core.NewProcessor(db,
		core.WithEmitter(fan),
		core.WithLogger(logger.With(slog.String("component", "processor"))),
		core.WithMetrics(observability.Paywall()),
	)
	if err != nil {
		return fmt.Errorf("create processor: %w", err)
	}

	if path := strings.TrimSpace(cfg.GenesisFile); path != "" {
		spec, err := genesis.LoadSpec(path)
		if err != nil {
			return fmt.Errorf("load genesis: %w", err)
		}
		switch err := processor.InitGenesis(spec); {
		case errors.Is(err, core.ErrGenesisApplied):
			logger.Info("genesis already applied", slog.Uint64("height", processor.Height()))
		case err != nil:
			return fmt.Errorf("apply genesis: %w", err)
		default:
			logger.Info("genesis applied", slog.String("path", path), slog.String("root", processor.Root().Hex()))
		}
	}

	var rpcIndex rpc.EventIndex
	if index != nil {
		catchCtx, cancel := context.WithTimeout(ctx, catchUpTimeout)
		indexed, err := index.CatchUp(catchCtx, processor)
		cancel()
		if err != nil {
			return fmt.Errorf("catch up event index: %w", err)
		}
		logger.Info("event index ready", slog.Int("indexed", indexed))
		rpcIndex = index
	}

	jwtSecret, err := secret.NewSource(cfg.Auth.HMACSecretEnv, cfg.Auth.HMACSecret, "JWT secret").Get()
	if err != nil {
		return fmt.Errorf("resolve JWT secret: %w", err)
	}
	auth, err := rpc.NewAuthenticator(rpc.AuthConfig{
		HMACSecret: []byte(jwtSecret),
		Issuer:     cfg.Auth.Issuer,
		Audience:   append([]string{}, cfg.Auth.Audience...),
		ClockSkew:  cfg.Auth.ClockSkew(),
	})
	if err != nil {
		return fmt.Errorf("configure auth: %w", err)
	}

	var idem *rpc.IdempotencyStore
	if cfg.Idempotency.Enabled {
		idem, err = rpc.NewIdempotencyStore(cfg.IdempotencyPath(), cfg.Idempotency.TTL())
		if err != nil {
			return fmt.Errorf("open idempotency store: %w", err)
		}
		defer idem.Close()
		go pruneIdempotency(ctx, idem, logger)
	}

	hub := rpc.NewHub(processor, logger.With(slog.String("component", "ws")))
	fan.Add(hub)

	server := rpc.NewServer(processor, rpc.ServerConfig{
		Auth: auth,
		RateLimit: rpc.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
		Idempotency:  idem,
		Hub:          hub,
		Index:        rpcIndex,
		Metrics:      observability.ModuleMetrics(),
		Logger:       logger.With(slog.String("component", "rpc")),
		MaxBodyBytes: cfg.RPCMaxBodySize,
		ReadTimeout:  time.Duration(cfg.RPCReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.RPCWriteTimeout) * time.Second,
	})

	logger.Info("starting RPC server",
		slog.String("address", cfg.RPCAddress),
		slog.Uint64("height", processor.Height()),
		slog.Bool("eventIndex", index != nil),
		slog.Bool("idempotency", idem != nil))
	return server.ListenAndServe(ctx, cfg.RPCAddress)
}

func openLedger(cfg *config.Config, ephemeral bool) (storage.Database, error) {
	if ephemeral {
		return storage.NewMemDB(), nil
	}
	db, err := storage.NewLevelDB(cfg.LedgerPath())
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	return db, nil
}

func pruneIdempotency(ctx context.Context, store *rpc.IdempotencyStore, logger *slog.Logger) {
	ticker := time.NewTicker(idempotencyPruneIv)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.Prune(time.Now())
			if err != nil {
				logger.Warn("idempotency prune failed", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				logger.Debug("pruned idempotency records", slog.Int("removed", removed))
			}
		}
	}
}
