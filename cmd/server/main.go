package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mamadbah2/farmsync/internal/config"
	"github.com/mamadbah2/farmsync/internal/domain/models"
	"github.com/mamadbah2/farmsync/internal/repository"
	"github.com/mamadbah2/farmsync/internal/repository/memory"
	"github.com/mamadbah2/farmsync/internal/repository/mongodb"
	"github.com/mamadbah2/farmsync/internal/repository/sheets"
	"github.com/mamadbah2/farmsync/internal/scheduler"
	"github.com/mamadbah2/farmsync/internal/server/handlers"
	"github.com/mamadbah2/farmsync/internal/server/router"
	"github.com/mamadbah2/farmsync/internal/service/accounts"
	reportingsvc "github.com/mamadbah2/farmsync/internal/service/reporting"
	"github.com/mamadbah2/farmsync/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(logger.Options{Level: os.Getenv("LOG_LEVEL")}))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg.MongoDB, baseLogger)
	defer closeStore()

	loc, err := time.LoadLocation(cfg.Reporting.Timezone)
	if err != nil {
		baseLogger.Fatal("invalid timezone", zap.Error(err))
	}

	accountSvc := accounts.NewService(store, cfg.Auth.TokenTTL, baseLogger.Named("svc.accounts"))
	if cfg.Auth.AdminUsername != "" {
		if err := accountSvc.SeedAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
			baseLogger.Fatal("failed to seed admin account", zap.Error(err))
		}
	}

	var sheetsRepo sheets.Repository
	if cfg.Sheets.Enabled() {
		repo, err := sheets.NewGoogleSheetRepository(ctx, cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		sheetsRepo = repo
	} else {
		baseLogger.Warn("google sheets not configured, daily finance export disabled")
	}

	reportingSvc := reportingsvc.NewService(store, sheetsRepo, loc, baseLogger.Named("svc.reporting"))

	engine := router.New(router.Handlers{
		Auth:    handlers.NewAuthHandler(accountSvc, baseLogger.Named("handlers.auth")),
		Records: handlers.NewRecordHandler(store, baseLogger.Named("handlers.records")),
		Sync:    handlers.NewSyncHandler(store, baseLogger.Named("handlers.sync")),
		Reports: handlers.NewReportHandler(reportingSvc, baseLogger.Named("handlers.reports")),
	}, baseLogger.Named("router"))

	sched := scheduler.NewScheduler(loc, baseLogger.Named("scheduler"))
	if sheetsRepo != nil {
		err := sched.Add(scheduler.Job{
			Name: "daily-finance-export",
			Spec: cfg.Reporting.CronSchedule,
			Run: func(ctx context.Context) error {
				return reportingSvc.ExportDaily(ctx, time.Now().In(loc))
			},
		})
		if err != nil {
			baseLogger.Fatal("failed to schedule finance export", zap.Error(err))
		}
	}
	sched.Start()
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		baseLogger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		baseLogger.Error("server stopped with error", zap.Error(err))
	}
}

// openStore connects to MongoDB when a URI is configured and falls back to
// the in-memory store otherwise.
func openStore(ctx context.Context, cfg config.MongoDBConfig, log *zap.Logger) (repository.Store, func()) {
	if cfg.URI == "" {
		log.Warn("MONGODB_URI not set, using in-memory store")
		return memory.NewStore(), func() {}
	}

	mongoRepo, err := mongodb.NewMongoDBRepository(ctx, cfg.URI, cfg.DBName, log.Named("repo.mongodb"))
	if err != nil {
		log.Fatal("failed to init mongodb repository", zap.Error(err))
	}
	if err := mongoRepo.EnsureIndexes(ctx, models.CollectionNames()); err != nil {
		log.Fatal("failed to create mongodb indexes", zap.Error(err))
	}

	return mongoRepo, func() {
		if err := mongoRepo.Close(context.Background()); err != nil {
			log.Error("failed to close mongodb connection", zap.Error(err))
		}
	}
}
