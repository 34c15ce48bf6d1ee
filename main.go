package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"parking_garage/internal/api"
	"parking_garage/internal/api/handler"
	"parking_garage/internal/cache"
	"parking_garage/internal/config"
	"parking_garage/internal/iot"
	"parking_garage/internal/logger"
	"parking_garage/internal/metrics"
	"parking_garage/internal/payment"
	"parking_garage/internal/repository"
	"parking_garage/internal/repository/memory"
	"parking_garage/internal/repository/postgresql"
	"parking_garage/internal/scheduler"
	"parking_garage/internal/service"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	if err := logger.Init(&logger.Config{Level: cfg.LogLevel, Development: cfg.LogDevelopment, ServiceName: cfg.ServiceName}); err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()
	lg := logger.Named("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage
	store, db, err := openStore(ctx, cfg)
	if err != nil {
		lg.Fatal("could not open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	if db != nil {
		defer db.Close()
	}
	lg.Info("store ready", zap.String("driver", cfg.StoreDriver))

	// 3. AWS clients
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		lg.Fatal("could not load AWS config", zap.Error(err))
	}
	sqsClient := sqs.NewFromConfig(awsCfg)
	iotClient := iotdataplane.NewFromConfig(awsCfg, func(o *iotdataplane.Options) {
		if cfg.IoTMQTTEndpoint != "" {
			endpoint := cfg.IoTMQTTEndpoint
			if !strings.HasPrefix(endpoint, "https://") && !strings.HasPrefix(endpoint, "http://") {
				endpoint = "https://" + endpoint
			}
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	rekognitionClient := rekognition.NewFromConfig(awsCfg)

	// 4. Optional collaborators
	var guard service.DetectionGuard
	if cfg.RedisAddr != "" {
		rdb, err := cache.NewClient(ctx, cache.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			lg.Fatal("could not connect to redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer rdb.Close()
		guard = cache.NewDetectionGuard(rdb, cfg.DetectionDebounce)
	} else {
		lg.Warn("REDIS_ADDR is not set, repeated detections are not debounced")
	}

	var gateway payment.Gateway
	if cfg.StripeSecretKey != "" {
		stripeGateway, err := payment.NewStripeGateway(&payment.StripeGatewayConfig{SecretKey: cfg.StripeSecretKey})
		if err != nil {
			lg.Fatal("could not configure stripe", zap.Error(err))
		}
		gateway = stripeGateway
	} else {
		lg.Warn("STRIPE_SECRET_KEY is not set, exits with an open bill need a manual payment")
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	// 5. Services
	wsManager := handler.NewWebSocketManager()
	core := service.NewCore(store, cfg.Engine(), nil, m)
	authService := service.NewAuthService(store.Users, cfg.JWTSecret, cfg.JWTExpirationHours, cfg.GeneratedUserDomain)
	notificationService := service.NewNotificationService(store.Notifications, wsManager)
	iotService := service.NewIoTService(iotClient, cfg.BarrierTopicPrefix)
	lprService := service.NewLPRService(rekognitionClient, cfg.PlateMinConfidence)
	gateService := service.NewGateService(core, service.GateDeps{
		Auth:       authService,
		Payments:   gateway,
		Notifier:   notificationService,
		Barrier:    iotService,
		Events:     wsManager,
		Guard:      guard,
		Recognizer: lprService,
	})
	reassignmentService := service.NewReassignmentService(core, notificationService)

	// 6. Background workers
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		wsManager.Start(ctx)
	}()

	if cfg.SQSDetectionQueueURL == "" {
		lg.Warn("SQS_DETECTION_QUEUE_URL is not set, the detection consumer will not run")
	} else {
		consumer := iot.NewSQSConsumer(sqsClient, cfg, gateService, m)
		wg.Add(1)
		go func() {
			defer wg.Done()
			lg.Info("detection consumer started", zap.String("queue", cfg.SQSDetectionQueueURL))
			consumer.Start(ctx)
			lg.Info("detection consumer stopped")
		}()
	}

	jobs := scheduler.New(scheduler.Config{
		SweepSpec:    cfg.ReassignSweepSpec,
		CleanupSpec:  cfg.DetectionLogCleanupSpec,
		LogRetention: cfg.DetectionLogRetention,
	}, reassignmentService, store.DetectionLogs)
	if err := jobs.Start(); err != nil {
		lg.Fatal("could not start scheduler", zap.Error(err))
	}

	// 7. HTTP server
	router := api.SetupRouter(api.Deps{
		Auth:                authService,
		Garages:             service.NewGarageService(core),
		Reservations:        service.NewReservationService(core, notificationService),
		Reassignment:        reassignmentService,
		Gate:                gateService,
		IoT:                 iotService,
		Plates:              service.NewLicencePlateService(store.LicencePlates),
		Billing:             service.NewBillingService(core, notificationService),
		Notifications:       notificationService,
		WebSocket:           wsManager,
		Metrics:             m,
		Gatherer:            prometheus.DefaultGatherer,
		StripeWebhookSecret: cfg.StripeWebhookSecret,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		lg.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("server forced to shut down", zap.Error(err))
	}
	jobs.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		lg.Warn("background workers did not stop in time")
	}
	lg.Info("server stopped")
}

// openStore returns the configured store. db is nil for the memory driver.
func openStore(ctx context.Context, cfg *config.Config) (*repository.Store, *sql.DB, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		return memory.NewStore(), nil, nil
	}
	db, err := postgresql.NewDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := postgresql.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return postgresql.NewStore(db), db, nil
}
