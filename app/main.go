package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/rss-blend/app/aggregator"
	"github.com/lysyi3m/rss-blend/app/api"
	"github.com/lysyi3m/rss-blend/app/cache"
	"github.com/lysyi3m/rss-blend/app/cfg"
	"github.com/lysyi3m/rss-blend/app/feed"
	"github.com/lysyi3m/rss-blend/app/tasks"
	"github.com/lysyi3m/rss-blend/app/transport"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	setupLogger(appCfg.Debug)

	slog.Info("Starting RSS Blend", "version", appCfg.Version, "timezone", appCfg.Location.String())

	groupCache := feed.NewGroupCache(appCfg.GroupsDir)
	if err := groupCache.Run(); err != nil {
		slog.Error("Failed to load group configurations", "dir", appCfg.GroupsDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Group configurations loaded", "dir", appCfg.GroupsDir, "count", groupCache.GetGroupCount())

	backend, err := openBackend(appCfg)
	if err != nil {
		slog.Error("Failed to open cache backend", "backend", appCfg.CacheBackend, "error", err)
		os.Exit(1)
	}
	defer backend.Close()
	slog.Info("Cache backend ready", "backend", appCfg.CacheBackend)

	httpTransport := transport.NewHTTPTransport(appCfg.UserAgent,
		transport.WithTimeout(appCfg.RequestTimeout),
		transport.WithRetries(appCfg.MaxRetries, time.Second),
	)

	agg := aggregator.New(httpTransport, feed.NewDecoder(), cache.NewFeedCache(backend),
		aggregator.WithLocation(appCfg.Location),
		aggregator.WithWorkerCount(appCfg.FetchWorkers),
		aggregator.WithTimeout(appCfg.QueryTimeout),
	)

	if appCfg.Aggregate != "" {
		if err := aggregateOnce(agg, groupCache, appCfg.Aggregate); err != nil {
			slog.Error("Aggregation failed", "group", appCfg.Aggregate, "error", err)
			backend.Close()
			os.Exit(1)
		}
		return
	}

	scheduler := tasks.NewScheduler(groupCache, agg, backend, appCfg.WorkerCount,
		time.Duration(appCfg.SchedulerInterval)*time.Second)
	scheduler.Start()
	defer scheduler.Stop()

	apiHandler := api.NewHandler(groupCache, agg, backend, scheduler)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: appCfg.QueryTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func openBackend(c *cfg.Cfg) (cache.Backend, error) {
	switch c.CacheBackend {
	case cfg.CacheSQLite:
		return cache.OpenSQLite(c.SQLitePath)
	case cfg.CachePostgres:
		return cache.OpenPostgres(c.PostgresDSN)
	case cfg.CacheRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return cache.NewRedisBackend(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB)
	default:
		return cache.NewMemoryBackend(), nil
	}
}

// aggregateOnce prints the named group's result as JSON on stdout.
func aggregateOnce(agg *aggregator.Aggregator, groupCache *feed.GroupCache, name string) error {
	group, err := groupCache.GetGroup(name)
	if err != nil {
		return err
	}

	result, err := agg.Aggregate(context.Background(), group.Query)
	if err != nil {
		return err
	}

	for _, d := range result.Report.Diagnostics() {
		slog.Warn("Diagnostic", "kind", d.Kind, "source", d.Source, "message", d.Message)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
