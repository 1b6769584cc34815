package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fonsecaaso/shortly/config"
	db "github.com/fonsecaaso/shortly/internal/database"
	"github.com/fonsecaaso/shortly/internal/handler"
	"github.com/fonsecaaso/shortly/internal/metrics"
	"github.com/fonsecaaso/shortly/internal/repository"
	route "github.com/fonsecaaso/shortly/internal/routes"
	"github.com/fonsecaaso/shortly/internal/service"
	"github.com/fonsecaaso/shortly/internal/sweeper"
	"github.com/fonsecaaso/shortly/internal/tracing"
)

func main() {
	logger := zap.Must(zap.NewProduction())
	defer logger.Sync()

	zap.ReplaceGlobals(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal(
			"error loading configuration",
			zap.Error(err),
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := tracing.InitTracer()
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	} else {
		defer shutdownTracer(ctx)
	}

	pgClient, err := db.NewPostgresClient(cfg)
	if err != nil {
		logger.Fatal("postgres failed to initialize",
			zap.Error(err),
		)
	}
	defer pgClient.Close()
	logger.Info("postgres connection established")

	if err := db.EnsureSchema(ctx, pgClient); err != nil {
		logger.Fatal("schema bootstrap failed", zap.Error(err))
	}

	repo := repository.NewPostgresMappingRepository(pgClient)
	svc := service.NewMappingService(repo, cfg)
	h := handler.NewMappingHandler(svc)

	metrics.StartSystemMetricsCollection()

	if cfg.SweepIntervalMin > 0 {
		sw := sweeper.New(svc, time.Duration(cfg.SweepIntervalMin)*time.Minute)
		sw.Start(ctx)
	}

	r := route.SetupRouter(h, pgClient)
	logger.Info("starting server",
		zap.String("addr", cfg.ServerAddr),
		zap.String("code_strategy", cfg.CodeStrategy),
	)
	if err := r.Run(cfg.ServerAddr); err != nil {
		logger.Fatal("server failed to start", zap.Error(err))
	}
}
