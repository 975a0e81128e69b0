// Command facility-allocator assigns a batch of loans to lending facilities.
//
//	facility-allocator [run]   allocate the CSV batch and write assignments.csv and yields.csv
//	facility-allocator serve   expose POST /allocations over HTTP
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

	"github.com/rs/zerolog"

	"facility-allocator/config"
	httpLayer "facility-allocator/http"
	"facility-allocator/logger"
	"facility-allocator/repository"
	"facility-allocator/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})

	command := "run"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	cache, closeCache := newCache(cfg, log)
	defer closeCache()

	allocator := service.NewAllocator(service.UncoveredPolicy(cfg.UncoveredPolicy), log)
	allocationService := service.NewAllocationService(allocator, cache, log)

	switch command {
	case "run":
		if err := runBatch(cfg, allocationService, log); err != nil {
			log.Error().Err(err).Msg("Allocation run failed")
			os.Exit(1)
		}
	case "serve":
		if err := serve(cfg, allocationService, log); err != nil {
			log.Error().Err(err).Msg("Server failed")
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (expected run or serve)\n", command)
		os.Exit(2)
	}
}

// newCache uses redis when an address is configured and an in-memory cache
// otherwise.
func newCache(cfg *config.Config, log zerolog.Logger) (repository.CacheRepository, func()) {
	if cfg.RedisAddr == "" {
		return repository.NewMemoryCache(), func() {}
	}

	redisCache := repository.NewRedisCache(cfg.RedisAddr, cfg.CacheTTL)
	log.Info().Str("addr", cfg.RedisAddr).Msg("Using redis report cache")
	return redisCache, func() {
		if err := redisCache.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
}

func runBatch(cfg *config.Config, svc *service.AllocationService, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source := repository.NewCSVBatchSource(repository.CSVPaths{
		Facilities: cfg.FacilitiesPath,
		Covenants:  cfg.CovenantsPath,
		Loans:      cfg.LoansPath,
		Banks:      cfg.BanksPath,
	})
	sink := repository.NewCSVReportSink(cfg.OutputDir)

	report, err := svc.Run(ctx, source, sink)
	if err != nil {
		return err
	}

	log.Info().
		Str("dir", sink.Dir()).
		Int("assignments", len(report.Assignments)).
		Int("yields", len(report.Yields)).
		Msg("Output files written")
	return nil
}

func serve(cfg *config.Config, svc *service.AllocationService, log zerolog.Logger) error {
	rateLimiter := httpLayer.NewRateLimiter(cfg.RateLimit, cfg.RateLimitWindow)
	defer rateLimiter.Stop()

	handler := httpLayer.NewAllocationHandler(svc, log)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      httpLayer.NewRouter(handler, rateLimiter, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	case <-quit:
		log.Info().Msg("Shutting down server...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info().Msg("Server exited")
	return nil
}
