package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"daosplit/cmd/internal/passphrase"
	"daosplit/config"
	"daosplit/core/events"
	"daosplit/core/state"
	"daosplit/crypto"
	"daosplit/gateway/middleware"
	"daosplit/native/split"
	"daosplit/observability"
	"daosplit/observability/logging"
	"daosplit/observability/metrics"
	telemetry "daosplit/observability/otel"
	"daosplit/rpc"
	"daosplit/storage"
)

const (
	serviceName          = "splitd"
	defaultPassphraseEnv = "SPLIT_KEYSTORE_PASSPHRASE"
	shutdownTimeout      = 10 * time.Second
)

var writeRoutes = []string{"deposit", "withdraw", "move", "trigger", "redeem"}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	allowMigrate := flag.Bool("allow-migrate", false, "Allow starting with a mismatched state schema (manual migrations only)")
	flag.Parse()

	if err := run(*configFile, *allowMigrate); err != nil {
		fmt.Fprintf(os.Stderr, "splitd: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string, allowMigrate bool) error {
	passSource := passphrase.NewSource(defaultPassphraseEnv)
	cfg, err := config.Load(configFile, config.WithKeystorePassphraseSource(passSource.Get))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, logCloser := logging.Setup(logging.Options{
		Service:     serviceName,
		Environment: cfg.Logging.Environment,
		Level:       cfg.Logging.Level,
		File:        cfg.Logging.File,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAgeDays:  cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Logging.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Enabled && cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Enabled && cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	if env := strings.TrimSpace(cfg.EngineKeystorePassEnv); env != "" && env != defaultPassphraseEnv {
		passSource = passphrase.NewSource(env)
	}
	pass, err := passSource.Get()
	if err != nil {
		return err
	}
	key, created, err := crypto.LoadOrCreateKeystore(cfg.EngineKeystorePath, pass)
	if err != nil {
		return fmt.Errorf("load engine key: %w", err)
	}
	engineAccount := key.PubKey().Account()
	logger.Info("engine key loaded",
		slog.String("account", crypto.FormatAccount(engineAccount)),
		slog.Bool("created", created))

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	db.SetSync(true)

	manager := state.NewManager(db)
	l, err := newLedgers(cfg, manager)
	if err != nil {
		return err
	}
	if err := prepareState(cfg, l, engineAccount, allowMigrate, logger); err != nil {
		return fmt.Errorf("prepare state: %w", err)
	}

	engine, buffer, feed, err := newEngine(cfg, l, engineAccount, logger)
	if err != nil {
		return err
	}
	observeInitial(engine)

	handler, err := newHandler(cfg, engine, buffer, feed, logger)
	if err != nil {
		return err
	}
	return serve(ctx, cfg, handler, logger)
}

func newEngine(cfg *config.Config, l *ledgers, engineAccount [20]byte, logger *slog.Logger) (*split.Engine, *events.Buffer, *events.Recorder, error) {
	engine, err := split.NewEngine(cfg.SplitParams())
	if err != nil {
		return nil, nil, nil, err
	}
	feed := events.NewRecorder(cfg.EventBufferSize)
	buffer := events.NewBuffer(events.MultiEmitter{
		feed,
		observability.Events(),
		logging.NewEventLogger(logger),
	})
	engine.SetState(l.manager)
	engine.SetAccount(engineAccount)
	engine.SetCustodian(l.collection)
	engine.SetTreasury(l.holder)
	engine.SetBank(l.bank)
	engine.SetEmitter(buffer)
	l.collection.SetEmitter(buffer)
	l.bank.SetEmitter(buffer)
	l.holder.SetEmitter(buffer)
	l.holder.SetShare(shareFunc(cfg.Treasury.ShareMode, engine, l))
	return engine, buffer, feed, nil
}

func observeInitial(engine *split.Engine) {
	status, err := engine.Status()
	if err != nil {
		return
	}
	metrics.Split().ObserveStatus(status)
	if status.Triggered {
		if snapshot, err := engine.Treasury(); err == nil {
			metrics.Split().ObserveTreasury(snapshot)
		}
	}
}

func newHandler(cfg *config.Config, engine *split.Engine, buffer *events.Buffer, feed *events.Recorder, logger *slog.Logger) (http.Handler, error) {
	var secret string
	if cfg.Auth.Enabled {
		secret = strings.TrimSpace(os.Getenv(cfg.Auth.HMACSecretEnv))
		if secret == "" {
			return nil, fmt.Errorf("auth enabled but %s is not set", cfg.Auth.HMACSecretEnv)
		}
	} else {
		logger.Warn("authentication disabled; callers are trusted from the " + middleware.CallerHeader + " header")
	}
	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:    cfg.Auth.Enabled,
		HMACSecret: secret,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ClockSkew:  time.Duration(cfg.Auth.ClockSkewSeconds) * time.Second,
	}, logger)

	limits := make(map[string]middleware.RateLimit, len(writeRoutes))
	if cfg.RateLimit.RequestsPerMinute > 0 {
		for _, route := range writeRoutes {
			limits[route] = middleware.RateLimit{
				RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
				Burst:             cfg.RateLimit.Burst,
			}
		}
	}
	limiter := middleware.NewRateLimiter(limits, logger)
	limiter.OnThrottle = func(route string) {
		observability.ModuleMetrics().RecordThrottle("split", route)
	}

	srv, err := rpc.NewServer(rpc.Config{
		Engine:        engine,
		Buffer:        buffer,
		Feed:          feed,
		Metrics:       metrics.Split(),
		Authenticator: auth,
		RateLimiter:   limiter,
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: serviceName,
			Module:      "split",
			LogRequests: true,
		}, observability.ModuleMetrics(), logger),
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	return otelhttp.NewHandler(srv.Handler(), serviceName), nil
}

func serve(ctx context.Context, cfg *config.Config, handler http.Handler, logger *slog.Logger) error {
	apiServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", middleware.MetricsHandler())
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	start := func(name string, srv *http.Server) {
		logger.Info("http server listening", slog.String("component", name), slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s server: %w", name, err)
		}
	}
	go start("api", apiServer)
	if strings.TrimSpace(cfg.MetricsAddress) != "" {
		go start("metrics", metricsServer)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
		logger.Error("server failed", slog.Any("error", runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown failed", slog.Any("error", err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics shutdown failed", slog.Any("error", err))
	}
	return runErr
}
