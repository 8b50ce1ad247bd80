package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/radieske/sports-odds-core/internal/odds-ingest/cache"
	"github.com/radieske/sports-odds-core/internal/realtime/ws"
	sharedcache "github.com/radieske/sports-odds-core/internal/shared/cache"
	"github.com/radieske/sports-odds-core/internal/shared/config"
	"github.com/radieske/sports-odds-core/internal/shared/logger"
	"github.com/radieske/sports-odds-core/internal/shared/metrics"
)

func main() {
	_ = godotenv.Load()
	if os.Getenv("SERVICE_NAME") == "" {
		_ = os.Setenv("SERVICE_NAME", "realtime-gateway")
	}
	cfg := config.Load()

	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	origins := parseOrigins(os.Getenv("WS_ALLOWED_ORIGINS"))
	hub := ws.NewHub(allowOrigin(origins), cfg.Bus.SubscriberBuffer, log).
		WithSnapshots(cache.NewProjections(redisClient, cfg.Cache.Prefix, 0))

	sub := &ws.Subscriber{R: redisClient, Channel: cfg.RedisPubSubChannel, Hub: hub, Log: log}
	go func() {
		for {
			err := sub.Run(ctx)
			if ctx.Err() != nil {
				return
			}
			log.Warn("realtime subscriber stopped, retrying", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(3 * time.Second):
			}
		}
	}()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		MaxAge:         300,
	}))
	r.Get("/ws", hub.HandleWS)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})

	go func() {
		log.Info("realtime-gateway listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("gateway failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("realtime-gateway stopped")
}

// parseOrigins lê a lista separada por vírgula; vazia libera qualquer origem
func parseOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func allowOrigin(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		if _, ok := allowed["*"]; ok {
			return true
		}
		_, ok := allowed[r.Header.Get("Origin")]
		return ok
	}
}
