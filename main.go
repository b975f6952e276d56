package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-registration/internal/analytics"
	analytics_api "ms-registration/internal/analytics/api"
	"ms-registration/internal/auth"
	"ms-registration/internal/capacity"
	"ms-registration/internal/config"
	"ms-registration/internal/database/migrations"
	"ms-registration/internal/kafka"
	"ms-registration/internal/lock"
	"ms-registration/internal/logger"
	"ms-registration/internal/notify"
	"ms-registration/internal/payments/qr"
	"ms-registration/internal/registration"
	"ms-registration/internal/registration/db"
	"ms-registration/internal/registration/registration_api"
	"ms-registration/internal/sse"
	"ms-registration/internal/worker"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func openDatabase(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	driverName := "postgres"
	if cfg.Driver == "sqlite" {
		driverName = sqliteshim.ShimName
	}

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to %s (attempt %d/%d)", cfg.Driver, i+1, maxRetries))
		sqldb, err = sql.Open(driverName, cfg.DSN())
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open %s: %v", cfg.Driver, err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to %s: %v", cfg.Driver, err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to %s after %d attempts: %v", cfg.Driver, maxRetries, err))
	}

	if cfg.Driver == "sqlite" {
		// SQLite serialises writers; one connection avoids SQLITE_BUSY storms.
		sqldb.SetMaxOpenConns(1)
		log.Info("DATABASE", "✅ SQLite database opened")
		return bun.NewDB(sqldb, sqlitedialect.New())
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)
	log.Info("DATABASE", "✅ PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func prepareSchema(ctx context.Context, cfg *config.Config, bunDB *bun.DB, log *logger.Logger) {
	if cfg.Database.Driver == "sqlite" {
		if err := db.CreateSchema(ctx, bunDB); err != nil {
			log.Fatal("MIGRATION", fmt.Sprintf("Failed to create SQLite schema: %v", err))
		}
		log.LogDatabase("CREATE_SCHEMA", "registration tables", "SQLite schema ensured")
		return
	}
	if !cfg.Migrations.Auto {
		log.Info("MIGRATION", "Automatic migrations disabled")
		return
	}

	runner := migrations.NewRunner(bunDB, migrations.Options{Dir: cfg.Migrations.Dir, Auto: true}, log)
	defer runner.Close()
	if err := runner.RunMigrations(); err != nil {
		log.Fatal("MIGRATION", fmt.Sprintf("Failed to run migrations: %v", err))
	}
}

func newLocker(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (lock.Locker, func()) {
	if cfg.Addr == "" {
		log.Warn("REDIS", "REDIS_ADDR not set, using in-process event locks (single instance only)")
		return lock.NewLocal(), func() {}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("REDIS", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Addr, redisClient.Options().DB))
	return lock.NewRedis(redisClient, log, cfg.LockTTL, cfg.LockWait), func() { redisClient.Close() }
}

func newVerifier(ctx context.Context, cfg config.AuthConfig, log *logger.Logger) auth.Verifier {
	switch {
	case cfg.OIDCIssuer != "":
		v, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
		if err != nil {
			log.Fatal("AUTH", fmt.Sprintf("Failed to initialise OIDC verifier: %v", err))
		}
		log.Info("AUTH", fmt.Sprintf("Verifying tokens against issuer %s", cfg.OIDCIssuer))
		return v
	case cfg.JWTSecret != "":
		log.Info("AUTH", "Verifying HS256 tokens with the shared secret")
		return auth.NewHMACVerifier(cfg.JWTSecret)
	default:
		log.Warn("AUTH", "No token verifier configured, every caller is treated as a guest")
		return nil
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("CONFIG: .env file not found, using environment variables")
	}

	cfg := config.Load()
	log, err := logger.New(cfg.Log.Service, cfg.Log.Dir, logger.ParseLevel(cfg.Log.Level))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	if err := cfg.Validate(); err != nil {
		log.Fatal("CONFIG", err.Error())
	}
	unit, err := capacity.ParseUnit(cfg.Capacity.Unit)
	if err != nil {
		log.Fatal("CONFIG", err.Error())
	}

	log.Info("APP", "Starting Registration Service initialization")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bunDB := openDatabase(cfg.Database, log)
	defer bunDB.Close()
	prepareSchema(ctx, cfg, bunDB, log)

	locker, closeLocker := newLocker(ctx, cfg.Redis, log)
	defer closeLocker()

	store := db.New(bunDB)
	changes := sse.NewCapacityEmitter()
	engine := registration.New(store, locker, log, registration.Config{
		IBAN:                 cfg.Payment.IBAN,
		AccountName:          cfg.Payment.AccountName,
		DefaultPaymentTTL:    cfg.Payment.DefaultTTL,
		AmountToleranceMinor: cfg.Payment.AmountToleranceMinor,
		VariableSymbolDigits: cfg.Payment.VariableSymbolDigits,
		Unit:                 unit,
	}, registration.WithChangeHook(changes.Emit))

	// --- Background workers ---
	go worker.NewExpirySweeper(engine, cfg.Worker.ExpiryInterval, cfg.Worker.ExpiryBatch, log).Start(ctx)

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
		log.Info("KAFKA", fmt.Sprintf("Kafka producer initialized for brokers %v", cfg.Kafka.Brokers))

		if cfg.Kafka.EnsureTopic {
			if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, kafka.NotificationTopics(cfg.Kafka.TopicPrefix), log); err != nil {
				log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
			}
		}

		relay := notify.NewRelay(store, producer, log, cfg.Kafka.TopicPrefix, cfg.Worker.RelayBatch, cfg.Worker.RelayMaxAttempts)
		go worker.NewRelayWorker(relay, cfg.Worker.RelayInterval, log).Start(ctx)
	} else {
		log.Warn("KAFKA", "Kafka disabled, notification intents stay in the outbox")
	}

	// --- HTTP ---
	handler := registration_api.NewHandler(engine, qr.NewGenerator(cfg.Payment.QRSize), log, cfg.Auth.AdminRole, changes)

	analyticsHandler := analytics_api.NewHandler(analytics.NewService(analytics.NewDB(bunDB)), log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(registration_api.LogRequests(log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := bunDB.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(newVerifier(ctx, cfg.Auth, log), log))
		r.Route("/api/registration", func(r chi.Router) {
			handler.RegisterRoutes(r)
			r.With(auth.RequireRole(cfg.Auth.AdminRole)).Group(analyticsHandler.RegisterRoutes)
		})
		log.Info("ROUTER", "Registration routes registered under /api/registration")
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Registration Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	cancel()
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Registration Service shutdown complete")
	}
}
