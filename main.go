package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	apperrors "queenbee-api/common/errors"
	"queenbee-api/common/logger"
	commonmw "queenbee-api/common/middleware"
	"queenbee-api/controllers"
	"queenbee-api/database"
	"queenbee-api/kafka"
	"queenbee-api/middleware"
	aws_pkg "queenbee-api/pkg/aws"
	"queenbee-api/repository"
	"queenbee-api/routes"
	"queenbee-api/services"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	bootLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	cfg, err := LoadConfig(bootLogger)
	if err != nil {
		bootLogger.Fatal("Failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// AWS clients are optional; without credentials the service runs with
	// SNS, metrics and log shipping disabled.
	var (
		snsClient     aws_pkg.SNSPublisher
		metricsClient *aws_pkg.MetricsClient
		cwWriter      *aws_pkg.CloudWatchLogsClient
	)
	awsCfg, awsErr := aws_pkg.LoadAWSConfig(ctx)
	if awsErr != nil {
		bootLogger.Warn("AWS config unavailable, SNS and CloudWatch disabled", zap.Error(awsErr))
	} else {
		if cfg.OrderSNSTopicARN != "" {
			snsClient = aws_pkg.NewSNSClient(awsCfg)
		}
		metricsClient = aws_pkg.NewMetricsClient(awsCfg, "QueenBee", cfg.MetricsEnabled)
		if cfg.CloudWatchLogs {
			cwWriter, err = aws_pkg.NewCloudWatchLogsClient(ctx, awsCfg, cfg.CloudWatchLogGroup, serviceName, true)
			if err != nil {
				bootLogger.Warn("CloudWatch Logs unavailable", zap.Error(err))
				cwWriter = nil
			}
		}
	}

	var appLogger *zap.Logger
	if cwWriter != nil {
		appLogger, err = logger.New(cfg.AppEnv, cwWriter)
	} else {
		appLogger, err = logger.New(cfg.AppEnv, nil)
	}
	if err != nil {
		bootLogger.Fatal("Failed to init logger", zap.Error(err))
	}
	defer appLogger.Sync() //nolint:errcheck

	db, err := database.Connect(cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db) //nolint:errcheck
	sqlDB, err := db.DB()
	if err != nil {
		appLogger.Fatal("Failed to get database handle", zap.Error(err))
	}

	var (
		metrics     services.MetricsRecorder
		httpMetrics commonmw.RequestMetrics
	)
	if metricsClient != nil {
		metrics = metricsClient
		httpMetrics = metricsClient
	}

	var (
		redisClient  *redis.Client
		productCache services.ProductCache
		invalidator  services.ProductCacheInvalidator
	)
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			appLogger.Warn("Redis unavailable, product cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close() //nolint:errcheck
			cache := services.NewCacheManager(redisClient, services.DefaultCacheTTL, metrics, appLogger)
			productCache = cache
			invalidator = cache
		}
	}

	var producer services.MessageProducer
	if len(cfg.KafkaBrokers) > 0 {
		kp := kafka.NewProducer(cfg.KafkaBrokers, cfg.OrderEventsTopic, appLogger)
		defer kp.Close() //nolint:errcheck
		producer = kp
	}

	var events services.OrderEventPublisher
	if snsClient != nil || producer != nil {
		events = services.NewOrderEventPublisher(snsClient, cfg.OrderSNSTopicARN, producer, appLogger)
	}

	store := repository.NewGormStore(db)
	orderService := services.NewOrderService(store, events, invalidator, metrics, appLogger)
	productService := services.NewProductService(store.Products(), productCache, appLogger)
	paymentService := services.NewPaymentService(
		services.NewStripePaymentIntents(cfg.StripeSecretKey),
		cfg.StripeWebhookSecret,
		store.Products(),
		orderService,
		metrics,
		appLogger,
	)

	limiter := commonmw.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst, 5*time.Minute)
	go limiter.Run(ctx)

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		gin.Recovery(),
		logger.RequestID(),
		commonmw.RequestLogger(appLogger),
		commonmw.SecurityHeaders(),
		commonmw.CORS(cfg.AllowedOrigins),
		commonmw.MetricsMiddleware(httpMetrics, serviceName),
		commonmw.Timeout(cfg.RequestTimeout),
		apperrors.ErrorMiddleware(),
	)

	r.GET("/health", controllers.Health(serviceName, sqlDB))
	routes.RegisterRoutes(r, routes.Handlers{
		Orders:    controllers.NewOrderController(orderService),
		Products:  controllers.NewProductController(productService),
		Payments:  controllers.NewPaymentController(paymentService, appLogger),
		RateLimit: limiter.Middleware(),
		Admin:     middleware.AdminOnly(cfg.JWTSecret),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	appLogger.Info("Queen Bee API started", zap.String("port", cfg.Port), zap.String("env", cfg.AppEnv))
	<-ctx.Done()
	appLogger.Info("Shutting down Queen Bee API...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", zap.Error(err))
		return
	}
	appLogger.Info("Server exited cleanly")
}
