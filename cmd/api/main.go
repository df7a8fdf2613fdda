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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harentsoaR/dentalab-api/internal/cache"
	"github.com/harentsoaR/dentalab-api/internal/config"
	"github.com/harentsoaR/dentalab-api/internal/events"
	"github.com/harentsoaR/dentalab-api/internal/handlers"
	"github.com/harentsoaR/dentalab-api/internal/logger"
	"github.com/harentsoaR/dentalab-api/internal/middleware"
	"github.com/harentsoaR/dentalab-api/internal/services"
	"github.com/harentsoaR/dentalab-api/internal/storage"
	"github.com/harentsoaR/dentalab-api/internal/utils"
)

const serviceName = "dentalab-api"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables.")
	}
	cfg := config.Load()

	zl, err := logger.New(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("service stopped with error", zap.Error(err))
	}
	zl.Info("service stopped")
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	if cfg.Auth.JWTSecret == "" {
		zl.Warn("JWT_SECRET is NOT SET, logins will fail")
	}

	// --- Storage ---
	gateway, closeGateway, err := openGateway(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer closeGateway()

	// --- User directory cache ---
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			zl.Warn("redis unreachable, user directory falls back to storage", zap.Error(err))
		}
	}
	directory := cache.NewUserDirectory(rdb, gateway, cfg.Redis.UserTTL, zl.Named("cache"))

	// --- Lifecycle events ---
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.AMQP.URL != "" {
		p, err := events.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return err
		}
		publisher = p
		zl.Info("publishing order events", zap.String("exchange", cfg.AMQP.Exchange))
	}
	defer publisher.Close()

	// --- Services ---
	notifications := services.NewNotificationService(gateway, zl.Named("notifications"))
	users := services.NewUserService(gateway, directory, zl.Named("users"))
	products := services.NewProductService(gateway, zl.Named("products"))
	ids := services.NewIdentifierFormatter(gateway, services.NewSequenceAllocator(gateway))
	orders := services.NewOrderService(gateway, ids, notifications, directory, publisher, zl.Named("orders"))
	tokens := utils.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	if cfg.SeedFile != "" {
		seed, err := config.LoadSeed(cfg.SeedFile)
		if err != nil {
			return err
		}
		if err := services.ApplySeed(ctx, seed, users, products, zl); err != nil {
			return err
		}
	}

	// --- Gin Router ---
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(zl.Named("http")))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
	}))
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	h := handlers.NewHandler(orders, products, users, notifications, tokens, zl.Named("api"))
	h.Register(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("starting server", zap.String("port", cfg.Server.Port), zap.String("storage", cfg.Storage.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openGateway builds the configured storage backend. The returned func
// releases its connections.
func openGateway(ctx context.Context, cfg *config.Config, zl *zap.Logger) (storage.Gateway, func(), error) {
	switch cfg.Storage.Backend {
	case "memory":
		zl.Warn("using in-memory storage, data is lost on restart")
		return storage.NewMemoryStore(), func() {}, nil

	case "sheets":
		if cfg.Sheets.URL == "" {
			return nil, nil, errors.New("SHEETS_URL is required for the sheets backend")
		}
		return storage.NewSheetStore(cfg.Sheets.URL, cfg.Sheets.Timeout, zl.Named("sheets")), func() {}, nil

	case "mongo":
		if cfg.Mongo.URI == "" {
			return nil, nil, errors.New("MONGO_URI is required for the mongo backend")
		}
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect to MongoDB: %w", err)
		}
		if err := client.Ping(connectCtx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("ping MongoDB: %w", err)
		}
		store := storage.NewMongoStore(client.Database(cfg.Mongo.Database), zl.Named("mongo"))
		if err := store.EnsureIndexes(connectCtx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		zl.Info("connected to MongoDB", zap.String("database", cfg.Mongo.Database))
		return store, func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(disconnectCtx)
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.Storage.Backend)
}
