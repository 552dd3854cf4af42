package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cacheadapter "github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/adapters/cache"
	configadapter "github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/adapters/config"
	eventadapter "github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/adapters/events"
	grpcadapter "github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/adapters/grpc"
	httpadapter "github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/adapters/http"
	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/adapters/messaging"
	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/adapters/postgres"
	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/adapters/providers"
	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/application"
	"github.com/viralforge/mesh/services/integrations/M59-pos-orchestration-service/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	outbox     *eventadapter.OutboxWorker
	reconciler *eventadapter.ReconcileWorker
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("bootstrapping m59 pos orchestration service", "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := pool.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	repos := postgres.NewRepositories(pool)
	providerHTTP := providers.DefaultHTTPClient()

	policy := application.PolicyEventTimestamp
	if !cfg.WebhookOrderByEvent {
		policy = application.PolicyIngestionOrder
	}

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			MaxAttempts:      cfg.DispatchMaxAttempts,
			RetryBackoffBase: cfg.RetryBackoffBase,
			ProviderTimeout:  cfg.ProviderTimeout,
			DispatchBudget:   cfg.DispatchBudget,
			DedupTTL:         cfg.WebhookDedupTTL,
			ReconcileLockTTL: cfg.ReconcileLockTTL,
			TimestampPolicy:  policy,
		},
		Logger:    logger,
		Source:    configadapter.NewFileSnapshotSource(cfg.LocationsPath),
		Orders:    repos.Orders,
		Events:    repos.Events,
		Mappings:  repos.Mappings,
		Outbox:    repos.Outbox,
		Dedup:     cacheadapter.NewRedisDedupStore(redisClient),
		SyncLocks: cacheadapter.NewRedisReconcileLock(redisClient),
		Fallback: messaging.NewWhatsAppChannel(messaging.WhatsAppConfig{
			BaseURL:             cfg.WhatsAppBaseURL,
			AccessToken:         cfg.WhatsAppAccessToken,
			PhoneNumberID:       cfg.WhatsAppPhoneNumberID,
			RecipientByLocation: cfg.WhatsAppRecipients,
		}, nil),
		Providers: []ports.ProviderClient{
			providers.NewLoyverseClient(providerHTTP),
			providers.NewOdooClient(providerHTTP),
		},
	})

	// A service that cannot resolve any location config must not come up.
	if err := svc.LoadConfig(ctx); err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("load location config: %w", err)
	}

	handler := httpadapter.NewHandler(svc)
	router := httpadapter.NewRouter(handler)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	grpcadapter.Register(grpcServer, grpcadapter.NewPosInternalServer(svc))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("listen gRPC: %w", err)
	}

	var publisher ports.EventPublisher
	if cfg.KafkaBrokers != "" {
		publisher = eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	} else {
		logger.Warn("kafka brokers not configured, operational events go to the log only")
		publisher = eventadapter.NewLoggingPublisher(logger)
	}

	outbox := eventadapter.NewOutboxWorker(
		logger,
		repos.Outbox,
		publisher,
		cfg.OutboxPollInterval,
		cfg.OutboxBatchSize,
		cfg.OutboxClaimTTL,
		cfg.OutboxMaxRetries,
	)
	reconciler := eventadapter.NewReconcileWorker(logger, svc, cfg.ReconcileInterval)

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		grpcLis:    lis,
		outbox:     outbox,
		reconciler: reconciler,
		cleanupFn: func(ctx context.Context) {
			_ = redisClient.Close()
			_ = sqlDB.Close()
		},
	}, nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", r.grpcLis.Addr().String())
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case err := <-errCh:
		r.logger.Error("server failure", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	r.cleanupFn(shutdownCtx)
	return nil
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("outbox worker started")
		if err := r.outbox.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("outbox worker: %w", err)
		}
	}()
	go func() {
		r.logger.Info("menu reconcile worker started")
		if err := r.reconciler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("reconcile worker: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		r.logger.Error("worker failure", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cleanupFn(shutdownCtx)
	return runErr
}
