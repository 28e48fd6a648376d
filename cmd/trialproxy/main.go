package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crosstrans/trialproxy"
	"github.com/crosstrans/trialproxy/ledger"
	"github.com/crosstrans/trialproxy/meter"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg := trialproxy.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = trialproxy.LoadConfig(*configPath)
		if err != nil {
			logger.Error("load config", "error", err)
			os.Exit(1)
		}
	}

	registry, err := trialproxy.NewRegistry(cfg.Descriptors())
	if err != nil {
		logger.Error("build registry", "error", err)
		os.Exit(1)
	}

	m := meter.NewLogMeter(logger)
	dispatcher := trialproxy.NewDispatcher(registry,
		trialproxy.WithAttemptTimeout(cfg.AttemptTimeout()),
		trialproxy.WithMeter(m),
	)
	led := ledger.NewMemory(cfg.DailyLimit)
	gateway := trialproxy.NewGateway(led, dispatcher,
		trialproxy.WithAnonymousCaller(cfg.AnonymousID),
		trialproxy.WithGatewayMeter(m),
	)

	mux := http.NewServeMux()
	mux.Handle("/v1/chat/completions", gateway)
	mux.HandleFunc("/quota", gateway.HandleQuota)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":           "ok",
			"active_providers": len(registry.Active()),
		})
	})

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Shut down gracefully on SIGINT/SIGTERM.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	logger.Info("listening",
		"addr", cfg.Listen,
		"active_providers", len(registry.Active()),
		"daily_limit", cfg.DailyLimit,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server", "error", err)
		os.Exit(1)
	}
}
