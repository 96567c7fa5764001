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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notifyhub/notification-relay/internal/api"
	"github.com/notifyhub/notification-relay/internal/config"
	"github.com/notifyhub/notification-relay/internal/db"
	"github.com/notifyhub/notification-relay/internal/logger"
	"github.com/notifyhub/notification-relay/internal/metrics"
	"github.com/notifyhub/notification-relay/internal/provider"
	"github.com/notifyhub/notification-relay/internal/queue"
	"github.com/notifyhub/notification-relay/internal/ratelimiter"
	"github.com/notifyhub/notification-relay/internal/repository"
	"github.com/notifyhub/notification-relay/internal/service"
	"github.com/notifyhub/notification-relay/internal/worker"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to a YAML config file")
	printConfig := flag.Bool("print-config", false, "print the effective configuration and exit")
	flag.Parse()

	// ---- configuration ----
	cfg := config.MustLoad(*configPath)
	if *printConfig {
		if err := cfg.Print(os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	log := logger.MustNew(cfg.Log)
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("server stopped cleanly")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- metrics ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// ---- status store ----
	store, closeStore, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer closeStore()
	metrics.RegisterStoreSize(reg, func() float64 {
		n, err := store.Count(context.Background())
		if err != nil {
			return 0
		}
		return float64(n)
	})

	// ---- broker ----
	broker := openBroker(ctx, cfg.Broker, m, log)
	defer func() {
		if err := broker.Close(); err != nil {
			log.Warn("broker close reported errors", zap.Error(err))
		}
	}()

	// ---- intake ----
	onSubmitted, onRejected := m.IntakeHooks()
	svc := service.NewNotificationService(store, broker, service.Options{
		InboundQueue:   cfg.Broker.InboundQueue,
		PublishTimeout: cfg.Broker.PublishTimeout,
	}, log, service.MetricHooks{
		OnSubmitted: onSubmitted,
		OnRejected:  onRejected,
	})

	// ---- workers ----
	// Context for all background consumers; cancelled only after the HTTP
	// server has drained so no accepted request is left without a worker.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	onProcessed, onDropped, onStoreError, onRedelivered := m.WorkerHooks()
	pool := worker.NewPool(cfg.Worker.Count, broker, store, ratelimiter.New(cfg.Worker.RateLimit), worker.Options{
		InboundQueue:   cfg.Broker.InboundQueue,
		StatusQueue:    cfg.Broker.StatusQueue,
		Decide:         worker.RandomDecider(cfg.Worker.FailureThreshold),
		Delay:          worker.RandomDelay(cfg.Worker.MinDelay, cfg.Worker.MaxDelay),
		PublishTimeout: cfg.Broker.PublishTimeout,
	}, log, worker.MetricHooks{
		OnProcessed:   onProcessed,
		OnDropped:     onDropped,
		OnStoreError:  onStoreError,
		OnRedelivered: onRedelivered,
	})
	pool.Start(workerCtx)
	log.Info("worker pool started", zap.Int("workers", pool.Size()))

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Status.WebhookURL != "" {
		fwd := worker.NewStatusForwarder(
			broker,
			cfg.Broker.StatusQueue,
			provider.NewWebhookProvider(cfg.Status.WebhookURL, cfg.Status.WebhookTimeout),
			log.Named("forwarder"),
			m.ForwarderHook(),
		)
		g.Go(func() error {
			fwd.Run(workerCtx)
			return nil
		})
	}

	// ---- HTTP server ----
	srv := &http.Server{
		Addr:         ":" + cfg.Server.HTTPPort,
		Handler:      api.NewRouter(svc, broker, reg, log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error {
		log.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// ---- graceful shutdown ----
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")

		// 1. Stop accepting new HTTP requests.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		var shutdownErr error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = fmt.Errorf("http shutdown: %w", err)
		}

		// 2. Signal all workers to stop taking new deliveries.
		cancelWorkers()

		// 3. Wait for in-flight workers to finish their current message.
		pool.Wait()
		return shutdownErr
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Store, log *zap.Logger) (repository.StatusStore, func(), error) {
	switch cfg.Kind {
	case config.StorePostgres:
		pgPool, err := db.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		if err := db.Migrate(cfg.MigrationsPath, cfg.DatabaseURL); err != nil {
			pgPool.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		log.Info("database migrations applied")
		return repository.NewPgStatusStore(pgPool), closePool(pgPool), nil
	default:
		log.Info("using in-memory status store", zap.Duration("ttl", cfg.TTL))
		return repository.NewMemoryStatusStore(cfg.TTL, cfg.CleanupInterval), func() {}, nil
	}
}

func closePool(p *pgxpool.Pool) func() {
	return func() { p.Close() }
}

func openBroker(ctx context.Context, cfg config.Broker, m *metrics.Metrics, log *zap.Logger) queue.Broker {
	if cfg.Kind == config.BrokerMemory {
		log.Info("using in-memory broker", zap.Int("buffer", cfg.MemoryBuffer))
		b := queue.NewMemoryBroker(cfg.MemoryBuffer, cfg.InboundQueue, cfg.StatusQueue)
		m.BrokerStateHook()(b.State())
		return b
	}

	client := queue.NewAMQPClient(queue.AMQPOptions{
		URL:            cfg.URL,
		Queues:         []string{cfg.InboundQueue, cfg.StatusQueue},
		ReconnectDelay: cfg.ReconnectDelay,
		Prefetch:       cfg.Prefetch,
		OnStateChange:  m.BrokerStateHook(),
	}, log.Named("amqp"))
	client.Start(ctx)
	return client
}
