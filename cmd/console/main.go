package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/xela07ax/compliance-console/internal/audit"
	"github.com/xela07ax/compliance-console/internal/bulkupload"
	"github.com/xela07ax/compliance-console/internal/console/handler"
	"github.com/xela07ax/compliance-console/internal/console/server"
	"github.com/xela07ax/compliance-console/internal/console/service"
	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xela07ax/compliance-console/internal/events"
	"github.com/xela07ax/compliance-console/internal/infra"
	"github.com/xela07ax/compliance-console/internal/infra/auth"
	"github.com/xela07ax/compliance-console/internal/providers"
	"github.com/xela07ax/compliance-console/internal/repository"
	"github.com/xela07ax/compliance-console/internal/repository/memory"
	"github.com/xela07ax/compliance-console/internal/repository/postgres"
)

const serviceName = "compliance-console"

// store — все, что консоль хранит в основной базе
type store interface {
	repository.WorkflowRepository
	repository.CheckRepository
	repository.EntityRepository
	repository.UserRepository
	repository.StatsRepository
}

func main() {
	// 1. Конфиг и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("console stopped with error", zap.Error(err))
	}
	logger.Info("console exited properly")
}

func run(ctx context.Context, cfg *infra.Config, logger *zap.Logger) error {
	// 2. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := infra.NewMetrics(reg)

	// 3. Хранилище
	db, auditRepo, closeDB, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	// 4. Redis: без него консоль работает, но без событий и кэша
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, events and stats cache are degraded", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	cancel()

	// 5. Аудит пишется пачками в фоне
	trail := audit.NewTrail(auditRepo, audit.Options{
		BufferSize:    cfg.Audit.BufferSize,
		BatchSize:     cfg.Audit.BatchSize,
		FlushInterval: cfg.Audit.FlushInterval,
	}, metrics, logger)
	trail.Start()
	defer trail.Stop()

	// 6. Ключи RS256
	privateKey, publicKey, err := loadKeys(cfg, logger)
	if err != nil {
		return err
	}

	// 7. Провайдеры и сервисы
	registry, err := providers.NewRegistry(cfg.Providers, providers.Deps{Checks: db, Metrics: metrics, Logger: logger})
	if err != nil {
		return fmt.Errorf("providers: %w", err)
	}

	workflows := service.NewApprovalWorkflowService(db, cfg.Workflow.Roster, trail, rdb, metrics, logger)
	dashboard := service.NewDashboardService(db, rdb, cfg.Redis.StatsTTL, logger)
	exporter := service.NewExportService(auditRepo, db, trail)

	handlers := server.Handlers{
		Auth:      handler.NewAuthHandler(service.NewAuthService(db, privateKey, cfg.Auth.TokenTTL, trail, logger), logger),
		Dashboard: handler.NewDashboardHandler(dashboard, logger),
		Workflows: handler.NewWorkflowHandler(workflows, logger),
		KYC:       handler.NewKYCHandler(service.NewKYCService(registry, db, trail, logger), logger),
		AML:       handler.NewAMLHandler(service.NewAMLService(registry, db, rdb, trail, logger), logger),
		Risk:      handler.NewRiskHandler(service.NewRiskService(registry.Risk(), db, workflows, trail, logger), logger),
		Uploads:   handler.NewUploadHandler(bulkupload.NewService(db, rdb, trail, metrics, logger), cfg.Server.MaxUploadMB, logger),
		Audit:     handler.NewAuditHandler(service.NewAuditService(auditRepo), exporter, logger),
		Entities:  handler.NewEntityHandler(exporter, logger),
	}
	api := server.NewConsoleServer(cfg.Server, logger, auth.NewBaseValidator(publicKey), handlers)

	// 8. Серверы
	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: ":" + strconv.Itoa(cfg.Metrics.Port), Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second}

	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	reflection.Register(grpcSrv)
	healthSrv.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	if err := dashboard.Warmup(ctx); err != nil {
		logger.Warn("stats cache warm-up failed", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		events.NewStatsInvalidator(rdb, dashboard, logger).Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("console API started", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("metrics started", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.GRPC.Port))
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		logger.Info("gRPC health started", zap.String("addr", lis.Addr().String()))
		return grpcSrv.Serve(lis)
	})

	// 9. Graceful Shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("console stopping...")
		healthSrv.Shutdown()

		// Даем 5 секунд на завершение запросов
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", zap.Error(err))
		}
		_ = metricsSrv.Shutdown(shutdownCtx)
		grpcSrv.GracefulStop()
		return nil
	})

	return g.Wait()
}

// openStore выбирает хранилище по database.driver.
func openStore(ctx context.Context, cfg *infra.Config, logger *zap.Logger) (store, repository.AuditRepository, func(), error) {
	if cfg.Database.Driver == "memory" {
		mem := memory.NewStore()
		if err := seedAdmin(mem, cfg.Auth); err != nil {
			return nil, nil, nil, err
		}
		logger.Warn("using in-memory store, data is lost on restart")
		return mem, mem, func() {}, nil
	}

	if cfg.Database.URL == "" {
		return nil, nil, nil, errors.New("database.url is required for the postgres driver")
	}
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	repo := postgres.NewComplianceRepo(pool)

	// Проверяем соединение с таймаутом
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := repo.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("database unreachable: %w", err)
	}
	if err := repo.ApplySchema(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	return repo, postgres.NewAuditRepo(pool), pool.Close, nil
}

// seedAdmin заводит учетку admin со всеми правами, если задан пароль.
func seedAdmin(mem *memory.Store, cfg infra.AuthConfig) error {
	if cfg.AdminPassword == "" {
		return nil
	}
	hash, err := service.HashPassword(cfg.AdminPassword, cfg.BcryptCost)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	mem.SaveUser(&domain.User{
		ID:           "admin",
		Username:     "admin",
		PasswordHash: hash,
		Role:         "ADMIN",
		Scopes:       map[string]bool{auth.ScopeAdmin: true},
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	return nil
}

// loadKeys — без приватного ключа токены живут до рестарта (только для локального запуска).
func loadKeys(cfg *infra.Config, logger *zap.Logger) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	if len(cfg.Auth.PrivateKey) == 0 {
		if cfg.Database.Driver != "memory" {
			return nil, nil, errors.New("auth: private key is not configured")
		}
		logger.Warn("auth keys are not configured, generating an ephemeral RSA key")
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, nil, fmt.Errorf("auth: generate key: %w", err)
		}
		return key, &key.PublicKey, nil
	}

	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		return nil, nil, err
	}
	if len(cfg.Auth.PublicKey) == 0 {
		return privateKey, &privateKey.PublicKey, nil
	}
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		return nil, nil, err
	}
	return privateKey, publicKey, nil
}
