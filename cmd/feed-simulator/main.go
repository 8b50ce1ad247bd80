package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/sports-odds-core/internal/feedsim"
	"github.com/radieske/sports-odds-core/internal/shared/config"
	"github.com/radieske/sports-odds-core/internal/shared/logger"
	"github.com/radieske/sports-odds-core/internal/shared/metrics"
)

func main() {
	_ = godotenv.Load()
	if os.Getenv("SERVICE_NAME") == "" {
		_ = os.Setenv("SERVICE_NAME", "feed-simulator")
	}
	cfg := config.Load()

	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	sim := feedsim.New(feedsim.Config{
		APIKey:       os.Getenv("SIM_API_KEY"),
		Quota:        envInt("SIM_QUOTA", 500),
		FailRate:     envFloat("SIM_FAIL_RATE", 0.05),
		ThrottleRate: envFloat("SIM_THROTTLE_RATE", 0.05),
	}, log, prometheus.DefaultRegisterer)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, nil)
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           sim.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("feed simulator running",
			zap.String("addr", srv.Addr),
			zap.String("paths", "/v4/sports/{sport}/odds,/v4/sports/{sport}/scores"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("public server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return def
}
