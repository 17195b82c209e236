package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/tirewatch/backend/config"
	httpDelivery "github.com/tirewatch/backend/internal/delivery/http"
	"github.com/tirewatch/backend/internal/domain"
	"github.com/tirewatch/backend/internal/infrastructure/cache"
	"github.com/tirewatch/backend/internal/infrastructure/catalog"
	"github.com/tirewatch/backend/internal/infrastructure/logging"
	"github.com/tirewatch/backend/internal/infrastructure/snapshot"
	"github.com/tirewatch/backend/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(log.Fields{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"cache":       cfg.Cache.Type,
		"cache_ttl":   cfg.Cache.TTL.String(),
	}).Info("starting tirewatch backend")

	memoryCache := cache.NewMemoryCache()
	defer memoryCache.Stop()

	catalogClient := newCatalogClient(cfg)

	store, err := snapshot.Open(cfg.Snapshot.Path)
	if err != nil {
		log.WithError(err).Fatal("failed to open snapshot store")
	}
	defer store.Close()
	log.WithField("path", cfg.Snapshot.Path).Info("snapshot store ready")

	tables := usecase.DefaultRuleTables()
	if cfg.Matching.RulesFile != "" {
		tables, err = usecase.LoadRuleTablesFile(cfg.Matching.RulesFile)
		if err != nil {
			log.WithError(err).Fatal("failed to load rule tables")
		}
	}
	log.WithFields(log.Fields{
		"version":    tables.Version,
		"name_rules": len(tables.NameRules),
		"workers":    cfg.Matching.Workers,
	}).Info("rule tables loaded")

	comparisonService := usecase.NewComparisonService(
		memoryCache,
		catalogClient,
		store,
		usecase.NewRecordBuilder(tables, cfg.Matching.EnableDebugLogging),
		usecase.ComparisonServiceConfig{
			CacheTTL:           cfg.Cache.TTL,
			Workers:            cfg.Matching.Workers,
			SuggestMinScore:    cfg.Matching.SuggestMinScore,
			EnableDebugLogging: cfg.Matching.EnableDebugLogging,
		},
	)

	handler := httpDelivery.NewHandler(comparisonService)
	router := httpDelivery.SetupRouter(cfg, handler)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.WithField("addr", srv.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}

// newCatalogClient prefers a local export file over the remote query
func newCatalogClient(cfg *config.Config) domain.CatalogClient {
	if cfg.Catalog.File != "" {
		log.WithField("file", cfg.Catalog.File).Info("catalog from file")
		return &catalog.FileClient{Path: cfg.Catalog.File}
	}

	client := catalog.NewClient(cfg.Catalog.APIKey, cfg.Catalog.BaseURL, cfg.Catalog.RequestsPerHour)
	if cfg.Server.Environment == "development" {
		client.SetDebug(true)
	}
	if cfg.Catalog.APIKey == "" {
		log.WithField("base_url", cfg.Catalog.BaseURL).Warn("catalog API key not configured")
	} else {
		log.WithField("base_url", cfg.Catalog.BaseURL).Info("catalog from remote export")
	}
	return client
}
