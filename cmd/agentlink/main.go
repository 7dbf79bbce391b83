package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/agentlink/internal/adapter/a2aclient"
	"github.com/Strob0t/agentlink/internal/adapter/filestore"
	"github.com/Strob0t/agentlink/internal/adapter/history"
	alhttp "github.com/Strob0t/agentlink/internal/adapter/http"
	almcp "github.com/Strob0t/agentlink/internal/adapter/mcp"
	alnats "github.com/Strob0t/agentlink/internal/adapter/nats"
	"github.com/Strob0t/agentlink/internal/adapter/natskv"
	alotel "github.com/Strob0t/agentlink/internal/adapter/otel"
	"github.com/Strob0t/agentlink/internal/adapter/projectconfig"
	"github.com/Strob0t/agentlink/internal/adapter/ristretto"
	"github.com/Strob0t/agentlink/internal/adapter/tiered"
	"github.com/Strob0t/agentlink/internal/adapter/webhook"
	"github.com/Strob0t/agentlink/internal/adapter/ws"
	"github.com/Strob0t/agentlink/internal/config"
	"github.com/Strob0t/agentlink/internal/logger"
	"github.com/Strob0t/agentlink/internal/middleware"
	"github.com/Strob0t/agentlink/internal/port/cache"
	"github.com/Strob0t/agentlink/internal/port/messagequeue"
	"github.com/Strob0t/agentlink/internal/resilience"
	"github.com/Strob0t/agentlink/internal/secrets"
	"github.com/Strob0t/agentlink/internal/service"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"data_dir", cfg.Storage.DataDir,
		"log_level", cfg.Logging.Level,
		"auth", cfg.Auth.Enabled,
		"execute", cfg.Tasks.Execute,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Infrastructure ---

	shutdownOTel, err := alotel.Setup(ctx, alotel.Config{
		Endpoint:    cfg.OTEL.Endpoint,
		ServiceName: cfg.OTEL.ServiceName,
		Insecure:    cfg.OTEL.Insecure,
		SampleRate:  cfg.OTEL.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(flushCtx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	metrics, err := alotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	l1, err := ristretto.New(int64(cfg.Cache.MaxSizeMB) << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer l1.Close()
	var configCache cache.Cache = l1

	hub := ws.NewHub()
	publishers := messagequeue.Fanout{hub}

	var queue *alnats.Queue
	if cfg.NATS.URL != "" {
		queue, err = alnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.MaxAge)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() {
			if err := queue.Drain(); err != nil {
				slog.Warn("nats drain", "error", err)
			}
		}()
		publishers = append(publishers, queue)

		kv, err := queue.KeyValue(ctx, natskv.Bucket, cfg.Cache.TTL)
		if err != nil {
			return fmt.Errorf("nats kv: %w", err)
		}
		configCache = tiered.New(l1, natskv.New(kv), cfg.Cache.TTL)
	}

	locker := filestore.NewLocker(filestore.LockOptions{
		Retries:    cfg.Lock.Retries,
		BaseDelay:  cfg.Lock.BaseDelay,
		MaxDelay:   cfg.Lock.MaxDelay,
		StaleAfter: cfg.Lock.StaleAfter,
	})
	taskStore := filestore.NewTaskStore(cfg.Storage.DataDir, locker)
	keyStore := filestore.NewKeyStore(cfg.Storage.DataDir, locker)
	projects := projectconfig.NewLoader(cfg.Storage.DataDir, configCache, cfg.Cache.TTL)
	historyLog := history.New(cfg.History.PollInterval)

	vault, err := secrets.NewVault(secrets.EnvLoader(secrets.EnvPrefix))
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}

	httpClient := alotel.NewHTTPClient()
	agents := a2aclient.New(httpClient)
	notifier := webhook.NewNotifier(webhook.Options{
		AttemptTimeout: cfg.Webhook.AttemptTimeout,
		MaxRetries:     cfg.Webhook.MaxRetries,
		BaseDelay:      cfg.Webhook.BaseDelay,
		MaxDelay:       cfg.Webhook.MaxDelay,
	}, httpClient)

	// --- Services ---

	taskSvc := service.NewTaskService(taskStore, publishers, cfg.Tasks.DefaultTimeout)
	taskSvc.SetNotifier(notifier, projects)
	taskSvc.SetMetrics(metrics)

	keySvc := service.NewAPIKeyService(keyStore, cfg.Auth.BcryptCost)
	keySvc.SetMetrics(metrics)

	outboundSvc := service.NewOutboundService(projects, agents, cfg.Outbound.DefaultTimeout, cfg.Outbound.TaskTimeout)
	outboundSvc.SetHistory(historyLog, cfg.History.WorkingDir)
	outboundSvc.SetMetrics(metrics)
	outboundSvc.SetSecrets(vault.Lookup)
	if cfg.Outbound.BreakerFailures > 0 {
		outboundSvc.SetBreakers(resilience.NewSet(cfg.Outbound.BreakerFailures, cfg.Outbound.BreakerCooldown))
	}

	var executor *service.TaskExecutor
	if cfg.Tasks.Execute {
		relay := service.NewRelayProvider(projects, agents)
		relay.SetSecrets(vault.Lookup)
		executor = service.NewTaskExecutor(taskSvc, relay)
		executor.SetConcurrency(cfg.Tasks.MaxConcurrent)
	}

	// --- HTTP ---

	handlers := &alhttp.Handlers{
		Tasks:      taskSvc,
		Executor:   executor,
		History:    historyLog,
		Events:     hub,
		HistoryDir: cfg.History.WorkingDir,
		PublicURL:  cfg.Server.PublicURL,
	}
	card := alhttp.NewAgentCard(alhttp.CardInfo{
		Name:        "agentlink",
		Description: "A2A task engine: asynchronous tasks, webhook callbacks and allow-listed agent calls.",
		URL:         cfg.Server.PublicURL,
		Version:     version,
		AuthEnabled: cfg.Auth.Enabled,
	})

	r := chi.NewRouter()

	// Middleware
	r.Use(alhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(alhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(alotel.HTTPMiddleware(cfg.OTEL.ServiceName))

	r.Get("/health", healthHandler(queue))

	alhttp.MountRoutes(r, handlers, card, keySvc, cfg.Auth.Enabled)

	if cfg.MCP.Enabled {
		mcpSrv := almcp.NewServer(almcp.ServerConfig{Name: "agentlink", Version: version}, almcp.ServerDeps{
			Agents:     outboundSvc,
			History:    historyLog,
			HistoryDir: cfg.History.WorkingDir,
		})
		r.Handle(cfg.MCP.Path, mcpSrv.Handler(keySvc, cfg.Auth.Enabled))
	}

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		reloadOnHangup(gctx, vault)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if executor != nil {
			waitForExecutions(shutdownCtx, executor)
		}
		if derr := taskSvc.Drain(shutdownCtx); derr != nil {
			slog.Warn("webhook deliveries still in flight", "error", derr)
		}
		return err
	})
	return g.Wait()
}

// reloadOnHangup re-reads agent secrets on SIGHUP until ctx ends.
func reloadOnHangup(ctx context.Context, vault *secrets.Vault) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := vault.Reload(); err != nil {
				slog.Error("secret reload failed", "error", err)
				continue
			}
			slog.Info("secrets reloaded", "count", len(vault.Keys()))
		}
	}
}

// waitForExecutions blocks until in-process executions commit or ctx ends.
func waitForExecutions(ctx context.Context, executor *service.TaskExecutor) {
	done := make(chan struct{})
	go func() {
		executor.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("task executions still running at shutdown")
	}
}

// healthHandler reports liveness and the NATS connection state.
func healthHandler(queue *alnats.Queue) http.HandlerFunc {
	type healthStatus struct {
		Status  string `json:"status"`
		Version string `json:"version"`
		NATS    string `json:"nats"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatus{Status: "ok", Version: version, NATS: "disabled"}
		if queue != nil {
			status.NATS = "connected"
			if !queue.IsConnected() {
				status.NATS = "disconnected"
				status.Status = "degraded"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
