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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/sports-odds-core/internal/eventbus"
	"github.com/radieske/sports-odds-core/internal/ledger"
	"github.com/radieske/sports-odds-core/internal/lifecycle"
	"github.com/radieske/sports-odds-core/internal/odds-ingest/cache"
	"github.com/radieske/sports-odds-core/internal/odds-ingest/feed"
	"github.com/radieske/sports-odds-core/internal/odds-ingest/merge"
	"github.com/radieske/sports-odds-core/internal/odds-ingest/service"
	"github.com/radieske/sports-odds-core/internal/scheduler"
	"github.com/radieske/sports-odds-core/internal/settlement"
	sharedcache "github.com/radieske/sports-odds-core/internal/shared/cache"
	"github.com/radieske/sports-odds-core/internal/shared/config"
	"github.com/radieske/sports-odds-core/internal/shared/db"
	"github.com/radieske/sports-odds-core/internal/shared/kafka"
	"github.com/radieske/sports-odds-core/internal/shared/logger"
	"github.com/radieske/sports-odds-core/internal/shared/metrics"
	"github.com/radieske/sports-odds-core/internal/store"
	"github.com/radieske/sports-odds-core/internal/wagers"
	"github.com/radieske/sports-odds-core/pkg/contracts/events"
)

const (
	taskLifecycle  = "lifecycle-sweep"
	taskSettlement = "settlement-pass"
)

func main() {
	_ = godotenv.Load()
	if os.Getenv("SERVICE_NAME") == "" {
		_ = os.Setenv("SERVICE_NAME", "odds-pipeline")
	}
	cfg := config.Load()

	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	if cfg.Feed, err = config.LoadFeedFile(os.Getenv("FEED_CONFIG_PATH"), cfg.Feed); err != nil {
		log.Fatal("feed config", zap.Error(err))
	}

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Inicializa dependências: Postgres e Redis
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	if err := db.Migrate(ctx, pg); err != nil {
		log.Fatal("postgres migrate", zap.Error(err))
	}
	log.Info("postgres connected")

	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("redis connected")

	pm := metrics.NewPipeline(prometheus.DefaultRegisterer)
	st := store.NewPostgres(pg)

	// Barramento: Redis Pub/Sub para o realtime e Kafka como trilha durável
	bus := eventbus.New(cfg.Bus.SubscriberBuffer, log, pm)
	defer bus.Close()
	bus.Attach(ctx, eventbus.NewRedisSink(redisClient, cfg.RedisPubSubChannel))

	if cfg.KafkaSinkEnabled {
		if cfg.Env == "local" || cfg.Env == "dev" {
			kctx, kcancel := context.WithTimeout(ctx, 10*time.Second)
			err := kafka.EnsureTopics(kctx, cfg.KafkaBrokers,
				cfg.TopicBetPlaced, cfg.TopicBetPlacedDLQ, cfg.TopicOddsUpdated, cfg.TopicMatchLifecycle, cfg.TopicWagerSettled)
			kcancel()
			if err != nil {
				log.Warn("kafka topics not ensured", zap.Error(err))
			}
		}
		sink := eventbus.NewKafkaSink(kafka.NewWriter(cfg.KafkaBrokers), map[events.Type]string{
			events.TypeOddsUpdated:           cfg.TopicOddsUpdated,
			events.TypeMatchLifecycleChanged: cfg.TopicMatchLifecycle,
			events.TypeWagerSettled:          cfg.TopicWagerSettled,
		})
		defer sink.Close()
		bus.Attach(ctx, sink)
	}

	// Feed com cache read-through na frente
	client := feed.New(cfg.Feed, log, feed.WithMetrics(pm))
	source := cache.NewFeed(client, redisClient, cfg.Cache, log)
	projections := cache.NewProjections(redisClient, cfg.Cache.Prefix, 10*time.Minute)

	mergeEngine := merge.NewEngine(st.Odds, cfg.Merge, log, pm)
	ingestor := service.NewIngestor(source, mergeEngine, st.Matches, projections, bus, cfg.Feed, log, pm)

	settler := settlement.NewEngine(st.Wagers, st.Matches, ledger.New(cfg.LedgerURL), bus, source, log, pm)
	manager := lifecycle.NewManager(st.Matches, bus, cfg.Lifecycle.GraceWindow, log, pm)
	manager.SetVoider(settler)

	runner := scheduler.New(ctx, log, pm)
	for _, t := range ingestor.Tasks() {
		mustRegister(log, runner, t)
	}
	mustRegister(log, runner, scheduler.Task{
		Name:     taskLifecycle,
		Schedule: cfg.Lifecycle.Schedule,
		Timeout:  cfg.Lifecycle.Timeout,
		Run: func(ctx context.Context) error {
			_, err := manager.Sweep(ctx)
			return err
		},
	})
	mustRegister(log, runner, scheduler.Task{
		Name:     taskSettlement,
		Schedule: cfg.Settlement.Schedule,
		Timeout:  cfg.Settlement.Timeout,
		Run: func(ctx context.Context) error {
			_, err := settler.RunPending(ctx)
			return err
		},
	})

	// partida encerrada pelo relógio dispara uma passada de liquidação fora do cron
	bus.Handle(ctx, "settlement-trigger",
		settlement.OnFinished(func() { runner.Go(taskSettlement) }),
		events.TypeMatchLifecycleChanged)

	// Entrada de apostas (bet_placed)
	if !cfg.WagerConsumerDisabled {
		reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicBetPlaced, cfg.WagerConsumerGroupID)
		defer reader.Close()
		consumer := &wagers.Consumer{
			Log:     log.Named("wagers"),
			Reader:  reader,
			Store:   st.Wagers,
			Matches: st.Matches,
			Metrics: pm,
		}
		if cfg.TopicBetPlacedDLQ != "" {
			dlq := kafka.NewWriter(cfg.KafkaBrokers)
			defer dlq.Close()
			consumer.DLQ, consumer.DLQTopic = dlq, cfg.TopicBetPlacedDLQ
		}
		go func() {
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("wager consumer stopped", zap.Error(err))
			}
		}()
	}

	// Servidor HTTP para métricas e health check
	srv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})
	log.Info("metrics/health listening", zap.String("addr", srv.Addr))

	if client.Disabled() {
		log.Warn("ODDS_API_KEY not set, ingestion runs disabled")
	}

	runner.Start()
	log.Info("odds-pipeline started", zap.Strings("tasks", runner.Tasks()))

	// primeira passada completa sem esperar o cron
	for _, sport := range cfg.Feed.Sports {
		runner.Go(service.TaskName(sport))
	}
	runner.Go(taskLifecycle)

	<-ctx.Done()
	log.Info("shutting down")

	runner.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn("metrics server shutdown", zap.Error(err))
	}
	log.Info("odds-pipeline stopped")
}

func mustRegister(log *zap.Logger, r *scheduler.Runner, t scheduler.Task) {
	if err := r.Register(t); err != nil {
		log.Fatal("register task", zap.String("task", t.Name), zap.Error(err))
	}
}
