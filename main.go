package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/camden-git/civicregistry/cache"
	"github.com/camden-git/civicregistry/config"
	"github.com/camden-git/civicregistry/database"
	"github.com/camden-git/civicregistry/handlers"
	"github.com/camden-git/civicregistry/logger"
	"github.com/camden-git/civicregistry/metrics"
	"github.com/camden-git/civicregistry/realtime"
	"github.com/camden-git/civicregistry/repository"
	"github.com/camden-git/civicregistry/services"
	"github.com/camden-git/civicregistry/workers"
)

func main() {
	boot := logger.New()
	if err := godotenv.Load(); err != nil {
		boot.Infof("No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		boot.Fatalf(err, "Failed to load configuration")
	}
	log := logger.NewFromConfig(cfg.LogLevel)

	if cfg.DatabaseDriver == config.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
			log.Fatalf(err, "Failed to create database directory for %s", cfg.DatabasePath)
		}
	}

	db, err := database.InitGormDB(cfg, log.Component("gorm"))
	if err != nil {
		log.Fatalf(err, "Failed to initialize database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf(err, "Failed to get underlying sql.DB")
	}
	defer sqlDB.Close()

	if err := database.AutoMigrateModels(db); err != nil {
		log.Fatalf(err, "Failed to migrate database")
	}

	userRepo := repository.NewGormUserRepository(db)
	roleRepo := repository.NewGormRoleRepository(db)
	if err := handlers.SyncSuperAdminRole(roleRepo, log); err != nil {
		log.Fatalf(err, "Failed to sync super administrator role")
	}

	householdRepo := repository.NewGormHouseholdRepository(db)
	personRepo := repository.NewGormPersonRepository(db)
	historyRepo := repository.NewGormHistoryRepository(db)
	residenceRepo := repository.NewGormResidenceRepository(db)

	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var statsCache cache.Store
	redisCache, err := cache.NewRedis(ctx, cfg.RedisURL, "civicregistry:")
	switch {
	case err != nil:
		log.Errorf(err, "Redis unavailable, statistics will not be cached")
	case redisCache != nil:
		defer redisCache.Close()
		statsCache = redisCache
		log.Info("Caching statistics in Redis")
	}

	statistics := services.NewStatisticsService(
		database.NewStatsDB(sqlDB, cfg.DatabaseDriver),
		statsCache,
		time.Duration(cfg.StatsCacheTTLSeconds)*time.Second,
		m, log.Component("statistics"),
	)

	hub := realtime.NewHub(cfg.CORSAllowedOrigins, log.Component("websocket"))
	go hub.Run(ctx)

	sinks := []workers.LedgerSink{workers.HubSink(hub), workers.StatsSink(statistics)}
	if cfg.AMQPURL != "" {
		publisher, err := workers.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Errorf(err, "AMQP unavailable, ledger events will not be published to %s", cfg.AMQPExchange)
		} else {
			defer publisher.Close()
			sinks = append(sinks, publisher)
			log.Infof("Publishing ledger events to exchange %s", cfg.AMQPExchange)
		}
	}
	dispatcher := workers.NewLedgerDispatcher(cfg.LedgerQueueSize, cfg.NumLedgerWorkers, m, log, sinks...)

	deps := services.Deps{
		DB:         db,
		Households: householdRepo,
		Persons:    personRepo,
		History:    historyRepo,
		Events:     dispatcher,
		Metrics:    m,
		Log:        log.Component("lifecycle"),
	}
	residences := services.NewResidenceService(residenceRepo, personRepo, m, log.Component("residence"))

	sweeper := workers.NewPermitSweeper(residences, cfg.PermitSweepSchedule, log)
	if err := sweeper.Start(); err != nil {
		log.Fatalf(err, "Failed to schedule permit sweeper")
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		DB:             db,
		UserRepo:       userRepo,
		RoleRepo:       roleRepo,
		Households:     services.NewHouseholdService(deps),
		Persons:        services.NewPersonService(deps),
		History:        services.NewHistoryService(householdRepo, historyRepo, m, log.Component("history")),
		Statistics:     statistics,
		Residences:     residences,
		Tokens:         handlers.NewTokenIssuer(cfg.JWTSecret, time.Duration(cfg.JWTExpirationHours)*time.Hour),
		Responder:      handlers.Responder{Diagnostic: cfg.DiagnosticMode, Log: log.Component("http")},
		AllowedOrigins: cfg.CORSAllowedOrigins,
		WebSocket:      hub.ServeWS,
		MetricsHandler: promhttp.Handler(),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 65 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Infof("Server listening on %s (driver %s)", server.Addr, cfg.DatabaseDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf(err, "Server failed")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf(err, "Graceful shutdown failed")
	}
	sweeper.Stop()
	dispatcher.Stop()
}
