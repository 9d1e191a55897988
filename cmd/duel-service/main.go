package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/dlc-duel-platform-poc/internal/duel-service/cache"
	httpapi "github.com/radieske/dlc-duel-platform-poc/internal/duel-service/http"
	"github.com/radieske/dlc-duel-platform-poc/internal/duel-service/janitor"
	"github.com/radieske/dlc-duel-platform-poc/internal/duel-service/ledger"
	"github.com/radieske/dlc-duel-platform-poc/internal/duel-service/listener"
	"github.com/radieske/dlc-duel-platform-poc/internal/duel-service/producer"
	"github.com/radieske/dlc-duel-platform-poc/internal/duel-service/repo"
	"github.com/radieske/dlc-duel-platform-poc/internal/duel-service/resolver"
	"github.com/radieske/dlc-duel-platform-poc/internal/duel-service/watch"
	sharedcache "github.com/radieske/dlc-duel-platform-poc/internal/shared/cache"
	"github.com/radieske/dlc-duel-platform-poc/internal/shared/config"
	"github.com/radieske/dlc-duel-platform-poc/internal/shared/db"
	"github.com/radieske/dlc-duel-platform-poc/internal/shared/kafka"
	"github.com/radieske/dlc-duel-platform-poc/internal/shared/logger"
	"github.com/radieske/dlc-duel-platform-poc/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Postgres
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg connect", zap.Error(err))
	}
	defer pg.Close()

	repository := repo.NewPostgres(pg)
	if err := repository.Migrate(ctx); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	// Redis: marcador de atestação já vista + cache curto de counts
	redisClient, err := sharedcache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()
	rcache := cache.NewRedisCache(redisClient, 48*time.Hour, 30*time.Second)

	// Kafka writers dos eventos de ciclo de vida + DLQ de atestações
	createdW := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetCreated)
	defer createdW.Close()
	activeW := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetActive)
	defer activeW.Close()
	settledW := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetSettled)
	defer settledW.Close()
	dlqW := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicAttestationDLQ)
	defer dlqW.Close()

	publ := &producer.KafkaPublisher{
		Created: createdW,
		Active:  activeW,
		Settled: settledW,
		DLQ:     dlqW,
	}

	// Métricas Prometheus do caminho de liquidação
	received := prometheus.NewCounter(prometheus.CounterOpts{Name: "duel_attestations_received_total", Help: "atestações verificadas recebidas do relay"})
	discarded := prometheus.NewCounter(prometheus.CounterOpts{Name: "duel_attestations_discarded_total", Help: "eventos descartados por assinatura inválida"})
	timeouts := prometheus.NewCounter(prometheus.CounterOpts{Name: "duel_dispatch_timeouts_total", Help: "despachos que estouraram o prazo"})
	reconnects := prometheus.NewCounter(prometheus.CounterOpts{Name: "duel_relay_reconnects_total", Help: "reconexões com relay"})
	settled := prometheus.NewCounter(prometheus.CounterOpts{Name: "duel_bets_settled_total", Help: "apostas liquidadas com payout"})
	noPayout := prometheus.NewCounter(prometheus.CounterOpts{Name: "duel_bets_nopayout_total", Help: "apostas liquidadas no sentinela, sem payout"})
	published := prometheus.NewCounter(prometheus.CounterOpts{Name: "duel_payouts_published_total", Help: "notas de payout publicadas no relay"})
	swept := prometheus.NewCounter(prometheus.CounterOpts{Name: "duel_janitor_removed_total", Help: "apostas pendentes varridas"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "duel_resolver_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(received, discarded, timeouts, reconnects, settled, noPayout, published, swept, errorsBy)

	ldg := ledger.New(log, repository)

	// Live set de oracle_event_ids: semeia com as apostas ativas sem desfecho
	seed, err := ldg.UnresolvedEventIDs(ctx)
	if err != nil {
		log.Fatal("seed watch set", zap.Error(err))
	}
	watchSet := watch.NewSet(seed)
	log.Info("watch set seeded", zap.Int("events", len(seed)))

	res := &resolver.Resolver{
		Log:    log,
		Repo:   repository,
		Events: publ,

		OnSettled:   func() { settled.Inc() },
		OnNoPayout:  func() { noPayout.Inc() },
		OnPublished: func() { published.Inc() },
		OnError:     func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	lst := &listener.Listener{
		Log:      log,
		Relays:   cfg.RelayURLs,
		Watch:    watchSet,
		Resolver: res,
		Cache:    rcache,

		OnReceived:  func() { received.Inc() },
		OnDiscarded: func() { discarded.Inc() },
		OnTimeout:   func() { timeouts.Inc() },
		OnReconnect: func() { reconnects.Inc() },
	}
	go lst.Start(ctx)

	jan := &janitor.Janitor{
		Log:       log,
		Repo:      repository,
		Schedule:  cfg.JanitorSchedule,
		Retention: cfg.PendingRetention,
		OnSweep:   func(removed int64) { swept.Add(float64(removed)) },
	}
	if err := jan.Start(); err != nil {
		log.Fatal("janitor", zap.Error(err))
	}
	defer jan.Stop()

	// metrics/health em porta própria
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(hctx context.Context) error {
		if err := pg.PingContext(hctx); err != nil {
			return fmt.Errorf("pg: %w", err)
		}
		if err := redisClient.Ping(hctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})
	log.Info("metrics/health", zap.String("addr", ":"+cfg.MetricsPort))

	// HTTP público
	api := &httpapi.API{
		Log:    log,
		Ledger: ldg,
		Watch:  watchSet,
		Cache:  rcache,
		Events: publ,
	}
	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: api.Router(),
	}

	go func() {
		log.Info("duel-service listening",
			zap.String("addr", apiSrv.Addr),
			zap.Strings("relays", cfg.RelayURLs))
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("api", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	log.Info("duel-service stopped")
}
