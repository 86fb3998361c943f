package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-fee-ledger/api/swagger"
	"github.com/noah-isme/sma-fee-ledger/internal/handler"
	"github.com/noah-isme/sma-fee-ledger/internal/middleware"
	"github.com/noah-isme/sma-fee-ledger/internal/repository"
	"github.com/noah-isme/sma-fee-ledger/internal/service"
	"github.com/noah-isme/sma-fee-ledger/pkg/cache"
	"github.com/noah-isme/sma-fee-ledger/pkg/config"
	"github.com/noah-isme/sma-fee-ledger/pkg/database"
	"github.com/noah-isme/sma-fee-ledger/pkg/jobs"
	"github.com/noah-isme/sma-fee-ledger/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-fee-ledger/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-fee-ledger/pkg/middleware/requestid"
	"github.com/noah-isme/sma-fee-ledger/pkg/storage"
)

// @title School Fee Ledger API
// @version 1.0.0
// @description Fee balances, payments, concessions, admissions and promotions for one school branch per token.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, dashboard cache disabled", zap.Error(err))
	} else {
		defer redisClient.Close() //nolint:errcheck
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetricsService()
	validate := validator.New()
	txTimeout := cfg.Database.TxTimeout

	balanceRepo := repository.NewFeeBalanceRepository(db, txTimeout)
	enrollmentRepo := repository.NewEnrollmentRepository(db, balanceRepo, txTimeout)
	paymentRepo := repository.NewPaymentRepository(db, balanceRepo, txTimeout)
	reservationRepo := repository.NewReservationRepository(db, txTimeout)
	provisioner := repository.NewEnrollmentProvisioner(db, balanceRepo, txTimeout)
	catalogRepo := repository.NewCatalogRepository(db)
	dashboardRepo := repository.NewDashboardRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, redisClient != nil)
	tokenSvc := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	receiptSvc, receiptQueue, sweeper, err := buildReceipts(rootCtx, cfg.Receipts, metrics, logr)
	if err != nil {
		logr.Fatal("failed to initialise receipts", zap.Error(err))
	}

	paymentCfg := service.PaymentConfig{AllowOverpay: cfg.Fees.OverpaymentPolicy == config.OverpaymentAccept}
	var paymentSvc *service.PaymentService
	if receiptSvc != nil {
		paymentSvc = service.NewPaymentService(paymentRepo, enrollmentRepo, receiptSvc, cacheSvc, metrics, paymentCfg, validate, logr)
	} else {
		paymentSvc = service.NewPaymentService(paymentRepo, enrollmentRepo, nil, cacheSvc, metrics, paymentCfg, validate, logr)
	}

	balanceSvc := service.NewFeeBalanceService(balanceRepo, enrollmentRepo, metrics, service.FeeBalanceConfig{TermsDerivedFromNet: cfg.Fees.TermsDerivedFromNet}, logr)
	concessionSvc := service.NewConcessionService(reservationRepo, balanceSvc, metrics, validate, logr)
	reservationSvc := service.NewReservationService(reservationRepo, provisioner, paymentSvc, enrollmentRepo, metrics,
		service.ReservationConfig{RequireApplicationFee: cfg.Reservations.RequireApplicationFee}, validate, logr)
	reservationSvc.UseCatalog(catalogRepo)
	promotionSvc := service.NewPromotionService(enrollmentRepo, balanceRepo, cacheSvc, metrics,
		service.PromotionConfig{RequireFeesPaid: cfg.Promotions.RequireFeesPaid}, validate, logr)
	exportSvc := service.NewExportService(paymentRepo, logr)

	routes := handler.Routes{
		Tokens:       tokenSvc,
		Audit:        auditRepo,
		Logger:       logr,
		Fees:         handler.NewFeeHandler(balanceSvc, paymentSvc, concessionSvc),
		Payments:     handler.NewPaymentHandler(paymentSvc, exportSvc),
		Reservations: handler.NewReservationHandler(reservationSvc, concessionSvc),
		Promotions:   handler.NewPromotionHandler(promotionSvc),
	}
	if receiptSvc != nil {
		routes.Receipts = handler.NewReceiptHandler(receiptSvc)
	}

	schedulerCfg := service.SchedulerConfig{
		DashboardRefreshSpec: cfg.Dashboard.RefreshCron,
		ReceiptCleanupSpec:   cfg.Receipts.CleanupCron,
		ReceiptTTL:           cfg.Receipts.SignedURLTTL,
	}
	var scheduler *service.SchedulerService
	if cfg.Dashboard.Enabled {
		dashboardSvc := service.NewDashboardService(dashboardRepo, enrollmentRepo, balanceRepo, cacheSvc,
			service.DashboardServiceConfig{CacheTTL: cfg.Dashboard.CacheTTL}, logr)
		routes.Dashboard = handler.NewDashboardHandler(dashboardSvc)
		scheduler = service.NewSchedulerService(enrollmentRepo, dashboardSvc, sweeper, schedulerCfg, logr)
	} else {
		scheduler = service.NewSchedulerService(enrollmentRepo, nil, sweeper, schedulerCfg, logr)
	}
	if err := scheduler.Start(); err != nil {
		logr.Fatal("failed to start scheduler", zap.Error(err))
	}

	checks := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		checks["redis"] = redisPinger(redisClient)
	}
	metricsHandler := handler.NewMetricsHandler(metrics, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	routes.Register(r.Group(cfg.APIPrefix))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown", zap.Error(err))
	}
	scheduler.Stop(shutdownCtx)
	if receiptQueue != nil {
		receiptQueue.Stop()
	}
}

// buildReceipts wires the receipt renderer, its worker queue and storage backend. All results are
// nil when receipts are disabled. The sweeper is nil for backends that expire objects themselves.
func buildReceipts(ctx context.Context, cfg config.ReceiptsConfig, metrics *service.MetricsService, logr *zap.Logger) (*service.ReceiptService, *jobs.Queue, storage.Sweeper, error) {
	if !cfg.Enabled {
		return nil, nil, nil, nil
	}

	var (
		store   storage.ObjectStore
		sweeper storage.Sweeper
	)
	switch cfg.Backend {
	case config.ReceiptBackendS3:
		s3Store, err := storage.NewS3Storage(ctx, cfg.S3Bucket, cfg.S3Region, "")
		if err != nil {
			return nil, nil, nil, fmt.Errorf("s3 receipt storage: %w", err)
		}
		store = s3Store
	default:
		local, err := storage.NewLocalStorage(cfg.StorageDir)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("local receipt storage: %w", err)
		}
		store = local
		sweeper = local
	}

	signer := storage.NewSignedURLSigner(cfg.SignedURLSecret, cfg.SignedURLTTL)
	receipts := service.NewReceiptService(store, signer, nil, metrics, logr)
	queue := jobs.NewQueue("receipts", receipts.Handle, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		BufferSize: 128,
		MaxRetries: cfg.WorkerRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
	})
	queue.Start(ctx)
	receipts.UseQueue(queue)
	return receipts, queue, sweeper, nil
}

func redisPinger(client *redis.Client) handler.PingFunc {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
