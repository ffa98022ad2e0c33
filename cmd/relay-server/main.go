// Command relay-server runs one side of a forecast server pair: it serves the local
// record store to the partner, replicates the partner's records, negotiates the primary
// role, and exposes health, metrics and relay controls over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dd0wney/cluso-relay/pkg/health"
	"github.com/dd0wney/cluso-relay/pkg/logging"
	"github.com/dd0wney/cluso-relay/pkg/metrics"
	"github.com/dd0wney/cluso-relay/pkg/relay"
	"github.com/dd0wney/cluso-relay/pkg/store"
	"github.com/dd0wney/cluso-relay/pkg/syncworker"
	"github.com/dd0wney/cluso-relay/pkg/taskqueue"
	"github.com/dd0wney/cluso-relay/pkg/transport"
)

var (
	configPath  = flag.String("config", "", "YAML configuration file")
	serverFlag  = flag.Int("server", 0, "Server number, 1 or 2 (overrides config)")
	httpAddr    = flag.String("http", "", "Admin HTTP listen address (overrides config)")
	modeFlag    = flag.String("mode", "", "Initial relay mode when nothing is stored: solo, watch or pair")
	logLevel    = flag.String("log-level", "", "Log level (overrides config and LOG_LEVEL)")
	databaseURL = flag.String("database-url", "", "PostgreSQL connection string (or set RELAY_DATABASE_URL)")
)

func main() {
	flag.Parse()

	cfg, err := loadServerConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "relay-server: %v\n", err)
		os.Exit(2)
	}
	applyFlags(&cfg)
	if err := cfg.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "relay-server: invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger := logging.NewJSONLogger(os.Stdout, logging.ParseLevel(cfg.LogLevel)).
		With(logging.Server(cfg.Server))

	if err := run(cfg, logger); err != nil {
		logger.Error("Relay server failed", logging.Error(err))
		os.Exit(1)
	}
}

func applyFlags(cfg *ServerConfig) {
	if *serverFlag != 0 {
		cfg.Server = *serverFlag
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *modeFlag != "" {
		cfg.Relay.Mode = *modeFlag
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	} else if env := os.Getenv("LOG_LEVEL"); env != "" {
		cfg.LogLevel = env
	}
	if *databaseURL != "" {
		cfg.Store.DatabaseURL = *databaseURL
	} else if env := os.Getenv("RELAY_DATABASE_URL"); env != "" {
		cfg.Store.DatabaseURL = env
	}
}

func openStore(ctx context.Context, cfg StoreSection, logger logging.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("Using in-memory record store")
		return store.NewMemStore(), nil
	}
	logger.Info("Using PostgreSQL record store", logging.String("table", cfg.Table))
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return store.NewPGStore(connectCtx, store.PGConfig{
		DatabaseURL: cfg.DatabaseURL,
		Table:       cfg.Table,
		MaxConns:    cfg.MaxConns,
	})
}

func run(cfg ServerConfig, logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startTime := time.Now()
	registry := metrics.DefaultRegistry()
	relayCfg := cfg.relayConfig()

	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	factory, err := transport.NewFactory(cfg.Transport)
	if err != nil {
		return err
	}

	endpoint := transport.NewEndpoint(factory, st, transport.EndpointConfig{
		RequestAddr: cfg.Endpoint.RequestAddr,
		PublishAddr: cfg.Endpoint.PublishAddr,
	}, logger)
	if err := endpoint.Start(); err != nil {
		return fmt.Errorf("failed to start endpoint: %w", err)
	}
	defer endpoint.Close()

	peers := map[string]transport.ClientConfig{relayCfg.PartnerHandle: cfg.Partner}
	workerOpts := syncworker.DefaultOptions(relayCfg.PartnerServer())
	workerOpts.TerminateTimeout = relayCfg.TerminateTimeout
	workerOpts.Logger = logger
	workerOpts.Metrics = registry
	worker := syncworker.NewStoreWorker(transport.Dialer(factory, peers, logger), workerOpts)

	dispatcher := taskqueue.NewDispatcher(cfg.Tasks.Workers, relay.OverrideTaskHandler(st), logger)
	defer dispatcher.Close()

	role := newServerRole(logger)
	r, err := relay.New(relayCfg, relay.Deps{
		Store:   st,
		Worker:  worker,
		Tasks:   dispatcher,
		Role:    role,
		Logger:  logger,
		Metrics: registry,
	})
	if err != nil {
		return fmt.Errorf("failed to create relay: %w", err)
	}
	driver := relay.NewDriver(r, relayCfg.PollInterval, logger)

	checker := health.NewChecker(cfg.Server)
	checker.Register("store", health.Liveness, health.StoreCheck(st.Ping, 2*time.Second))
	checker.Register("link", health.Liveness, health.LinkCheck(func() health.LinkSnapshot {
		snap := r.Snapshot()
		return health.LinkSnapshot{
			Mode:        snap.Local.RelayConfig.Mode.String(),
			State:       snap.Local.LinkState.String(),
			FailedCalls: snap.FailedCalls,
			RemoteDead:  snap.RemoteDead,
		}
	}))
	checker.Register("role", health.Readiness, health.RoleCheck(func() string {
		return r.PrimaryState().String()
	}))

	admin := &adminServer{
		snapshot: r.Snapshot,
		modes:    driver,
		role:     role,
		health:   checker,
		metrics:  registry,
		logger:   logger.With(logging.Component("admin")),
		now:      time.Now,
	}
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      admin.router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Admin server listening", logging.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Admin server error", logging.Error(err))
			stop()
		}
	}()

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				registry.UpdateSystemMetrics(startTime)
			}
		}
	}()

	logger.Info("Relay server starting",
		logging.String("transport", cfg.Transport),
		logging.String("endpoint", cfg.Endpoint.RequestAddr),
		logging.String("partner", cfg.Partner.RequestAddr))

	runErr := driver.Run(ctx)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Admin server forced to shut down", logging.Error(err))
	}

	logger.Info("Relay server exited")
	return runErr
}
