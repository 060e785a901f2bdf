package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/EdgeWard/WardGate/pkg/admission"
	"github.com/EdgeWard/WardGate/pkg/config"
	"github.com/EdgeWard/WardGate/pkg/domain/audit"
	handlers "github.com/EdgeWard/WardGate/pkg/handlers/http"
	"github.com/EdgeWard/WardGate/pkg/infra/auditlogs"
	infraCache "github.com/EdgeWard/WardGate/pkg/infra/cache"
	"github.com/EdgeWard/WardGate/pkg/infra/database"
	"github.com/EdgeWard/WardGate/pkg/infra/jwt"
	infraLogger "github.com/EdgeWard/WardGate/pkg/infra/logger"
	_ "github.com/EdgeWard/WardGate/pkg/infra/migrations"
	"github.com/EdgeWard/WardGate/pkg/infra/repository"
	"github.com/EdgeWard/WardGate/pkg/middleware"
	"github.com/EdgeWard/WardGate/pkg/server"
)

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	logger := infraLogger.NewLogger("gateway")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config"
	}
	if err := config.Load(configPath); err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	cfg := config.GetConfig()

	// The shared store is only dialed for the redis provider; the memory
	// provider runs single-instance with in-process state.
	var redisClient *redis.Client
	if cfg.Guard.Provider == "redis" {
		cacheClient, err := infraCache.NewClient(infraCache.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			logger.Fatalf("failed to initialize cache: %v", err)
		}
		defer func() {
			_ = cacheClient.Close()
		}()
		redisClient = cacheClient.RedisClient()
	}

	// The audit trail persists to postgres when the database is enabled and
	// degrades to structured logs otherwise.
	var auditRepo audit.Repository
	if cfg.Database.Enabled {
		db, err := database.NewDB(logger, &database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Fatalf("failed to initialize database: %v", err)
		}
		defer func() {
			_ = db.Close()
		}()
		auditRepo = repository.NewAuditEventRepository(db.DB)
	}
	recorder := auditlogs.NewRecorder(auditRepo, logger, nil)

	pipeline, err := admission.Build(cfg.Guard, redisClient, recorder, logger)
	if err != nil {
		logger.Fatalf("failed to build admission pipeline: %v", err)
	}

	accessList := pipeline.AccessList()
	jwtManager := jwt.NewJwtManager(&cfg.Server)

	guardMiddleware := middleware.NewTransport(
		middleware.NewPanicRecoverMiddleware(logger),
		middleware.NewMetricsMiddleware(),
		middleware.NewAdmissionMiddleware(logger, pipeline),
		middleware.NewSecurityMiddleware(cfg.Security),
	)
	adminMiddleware := middleware.NewTransport(
		middleware.NewPanicRecoverMiddleware(logger),
		middleware.NewAdminAuthMiddleware(logger, jwtManager),
	)

	handlerTransport := handlers.HandlerTransport{
		ForwardedHandler: handlers.NewForwardedHandler(logger, cfg.Upstream.Target),

		ListDenyEntriesHandler: handlers.NewListDenyEntriesHandler(logger, accessList),
		CreateDenyEntryHandler: handlers.NewCreateDenyEntryHandler(logger, accessList, recorder),
		DeleteDenyEntryHandler: handlers.NewDeleteDenyEntryHandler(logger, accessList, recorder),

		ListAllowEntriesHandler: handlers.NewListAllowEntriesHandler(logger, accessList),
		CreateAllowEntryHandler: handlers.NewCreateAllowEntryHandler(logger, accessList, recorder),
		DeleteAllowEntryHandler: handlers.NewDeleteAllowEntryHandler(logger, accessList, recorder),

		GetGuardStatusHandler:  handlers.NewGetGuardStatusHandler(logger, accessList, pipeline.Detector()),
		ListAuditEventsHandler: handlers.NewListAuditEventsHandler(logger, auditRepo),
		GetVersionHandler:      handlers.NewGetVersionHandler(logger),
	}

	guardServer := server.NewGuardServer(server.GuardServerDI{
		Config:              cfg,
		Logger:              logger,
		MiddlewareTransport: guardMiddleware,
		HandlerTransport:    handlerTransport,
	})
	adminServer := server.NewAdminServer(server.AdminServerDI{
		Config:              cfg,
		Logger:              logger,
		MiddlewareTransport: adminMiddleware,
		HandlerTransport:    handlerTransport,
	})

	pipeline.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var group errgroup.Group
	group.Go(guardServer.Run)
	group.Go(adminServer.Run)
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		pipeline.Shutdown()
		if err := guardServer.Shutdown(); err != nil {
			logger.WithError(err).Error("failed to shut down guard server")
		}
		if err := adminServer.Shutdown(); err != nil {
			logger.WithError(err).Error("failed to shut down admin server")
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
	logger.Info("server gracefully stopped")
}
