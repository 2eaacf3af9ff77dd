package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	domrepo "FinFusion/internal/domain/repository"
	"FinFusion/internal/engine"
	"FinFusion/internal/handler/api"
	"FinFusion/internal/handler/ws"
	mid "FinFusion/internal/middleware"
	internalrepo "FinFusion/internal/repository"
	"FinFusion/internal/service/ratelimit"
	"FinFusion/internal/services/conditions"
	"FinFusion/internal/usecase"
	"FinFusion/pkg/cache"
	pkgch "FinFusion/pkg/clickhouse"
	"FinFusion/pkg/config"
	xhttp "FinFusion/pkg/http"
	pkgkafka "FinFusion/pkg/kafka"
	applogger "FinFusion/pkg/logger"
	pkgmetrics "FinFusion/pkg/metrics"
	"FinFusion/pkg/server"
)

// ProvideLogger builds the app logger. Error logs are folded into digests
// and shipped to the logs topic when one is configured.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	l = l.With(applogger.String("env", cfg.Environment))
	if cfg.Kafka.LogsTopic != "" && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			Interval:    30 * time.Second,
			MaxDistinct: 100,
			Publisher:   pkgkafka.NewTopic(producer, cfg.Kafka.LogsTopic, applogger.ErrorDigest.Symbol),
		})
	}
	return l, l.RemoveCollector, nil
}

// ProvideMetrics creates the Prometheus recorder for engine and pipeline
// metrics.
func ProvideMetrics() *pkgmetrics.Recorder {
	return pkgmetrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and applies the
// schema. It returns nil when the feature store is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(cfg.ClickHouse)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.Schema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideKafkaProducer creates the writer shared by the decisions and logs
// topics.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	k := cfg.Kafka
	producer, err := pkgkafka.NewProducer(pkgkafka.WriterConfig{
		Brokers:      k.Brokers,
		RequiredAcks: k.RequiredAcks,
		Compression:  k.Compression,
		MaxAttempts:  k.Producer.MaxAttempts,
		BatchSize:    k.Producer.BatchSize,
		BatchBytes:   int64(k.Producer.BatchBytes),
		Linger:       k.Producer.Linger,
		WriteTimeout: k.Producer.WriteTimeout,
		ReadTimeout:  k.Producer.ReadTimeout,
		Async:        k.Producer.Async,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideCache picks Redis behind an in-process L1 when Redis is enabled,
// and a bounded memory cache otherwise.
func ProvideCache(cfg *config.Config) (cache.Store, func(), error) {
	if !cfg.Redis.Enabled {
		mc := cache.NewMemoryCache(cfg.Cache.MemoryItems)
		return mc, func() { _ = mc.Close() }, nil
	}
	rc, err := cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   "finfusion",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	lc := cache.NewLayeredCache(rc, cfg.Cache.MemoryItems, 30*time.Second)
	return lc, func() { _ = lc.Close() }, nil
}

// ProvideFeatureStore returns nil when ClickHouse is disabled.
func ProvideFeatureStore(ch *pkgch.Client, l *applogger.Logger) *internalrepo.CHFeatureStore {
	if ch == nil {
		return nil
	}
	store := internalrepo.NewCHFeatureStore(ch)
	store.SetLogger(l)
	return store
}

// ProvideDecisionStore puts the retry pipeline in front of the ClickHouse
// decision table. It returns nil when ClickHouse is disabled.
func ProvideDecisionStore(ch *pkgch.Client, rec *pkgmetrics.Recorder) (*mid.DecisionPipeline, func()) {
	if ch == nil {
		return nil, func() {}
	}
	pipe := mid.NewDecisionPipeline(internalrepo.NewCHDecisionStore(ch), rec,
		mid.WithBufferSize(2000),
		mid.WithBackoff(100*time.Millisecond, 5*time.Second),
	)
	pipe.Start(context.Background())
	return pipe, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pipe.Stop(ctx)
	}
}

func ProvideDecisionPublisher(producer *pkgkafka.Producer, cfg *config.Config) *internalrepo.KafkaDecisionPublisher {
	return internalrepo.NewKafkaDecisionPublisher(producer, cfg.Kafka.DecisionsTopic)
}

// ProvideTrainingLimiter is shared by manual and automatic training.
func ProvideTrainingLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Training.PerHour, cfg.Training.Burst)
}

// ProvideEngineRegistry builds the per symbol/timeframe engine registry.
func ProvideEngineRegistry(cfg *config.Config, rec *pkgmetrics.Recorder, limiter *ratelimit.Limiter) *engine.Registry {
	return engine.NewRegistry(cfg.Engine,
		engine.WithCollector(rec),
		engine.WithTrainGate(usecase.LimiterGate(limiter)),
	)
}

func ProvideHistory(cfg *config.Config) *usecase.History {
	return usecase.NewHistory(cfg.History.Size)
}

func ProvideDeriver() *conditions.Deriver {
	return conditions.New(conditions.DefaultConfig())
}

func ProvideHub(cfg *config.Config, l *applogger.Logger) *ws.Hub {
	return ws.NewHub(ws.Config{
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		PingInterval: cfg.WebSocket.PingInterval,
		SendBuffer:   cfg.WebSocket.SendBuffer,
	}, l.With(applogger.String("component", "ws")))
}

// ProvideConfluenceUseCase assembles the ingest path. Optional sinks are
// only set when present so the use case never sees a typed nil.
func ProvideConfluenceUseCase(
	cfg *config.Config,
	registry *engine.Registry,
	history *usecase.History,
	deriver *conditions.Deriver,
	store *internalrepo.CHFeatureStore,
	decisions *mid.DecisionPipeline,
	publisher *internalrepo.KafkaDecisionPublisher,
	c cache.Store,
	hub *ws.Hub,
	rec *pkgmetrics.Recorder,
	l *applogger.Logger,
) *usecase.ConfluenceUseCase {
	deps := usecase.ConfluenceDeps{
		Registry:    registry,
		History:     history,
		Deriver:     deriver,
		Publisher:   publisher,
		Cache:       c,
		Broadcaster: hub,
		Metrics:     rec,
		Logger:      l.With(applogger.String("component", "confluence")),
	}
	if store != nil {
		deps.Store = store
		deps.Writer = store
	}
	if decisions != nil {
		deps.Decisions = decisions
	}
	return usecase.NewConfluenceUseCase(deps, cfg.Cache.DecisionTTL, cfg.History.Samples)
}

func ProvideTrainingUseCase(
	cfg *config.Config,
	registry *engine.Registry,
	history *usecase.History,
	store *internalrepo.CHFeatureStore,
	limiter *ratelimit.Limiter,
	c cache.Store,
	l *applogger.Logger,
) (*usecase.TrainingUseCase, func()) {
	var fs domrepo.FeatureStore
	if store != nil {
		fs = store
	}
	uc := usecase.NewTrainingUseCase(registry, history, fs, limiter, c, cfg.Training.LockTTL,
		l.With(applogger.String("component", "training")))
	return uc, uc.Close
}

// ProvideKafkaConsumer creates the candle consumer. Handler panics become
// dead letters, trace ids follow the record, and failed or slow attempts
// are logged.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	k := cfg.Kafka.Consumer
	kl := l.With(applogger.String("component", "kafka"))
	consumer, err := pkgkafka.NewConsumer(pkgkafka.ReaderConfig{
		Brokers:    cfg.Kafka.Brokers,
		GroupID:    k.GroupID,
		Lanes:      k.Lanes,
		LaneBuffer: k.LaneBuffer,
		RetryMax:   k.RetryMax,
		BackoffMin: k.BackoffMin,
		BackoffMax: k.BackoffMax,
		DLQTopic:   k.DLQTopic,
		MinBytes:   k.MinBytes,
		MaxBytes:   k.MaxBytes,
	}, kl,
		pkgkafka.Recover(),
		pkgkafka.Trace(),
		pkgkafka.Log(kl, 250*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaCandlesHandler registers the handler for the candles topic.
func ProvideKafkaCandlesHandler(cfg *config.Config, uc *usecase.ConfluenceUseCase, rec *pkgmetrics.Recorder) pkgkafka.MessageHandler {
	return usecase.NewKafkaCandlesHandler(cfg.Kafka.CandlesTopic, uc, rec)
}

func ProvideConfluenceHandler(l *applogger.Logger, confluence *usecase.ConfluenceUseCase, training *usecase.TrainingUseCase) *api.ConfluenceEchoHandler {
	return api.NewConfluenceEchoHandler(l.With(applogger.String("component", "api")), confluence, training)
}

// ProvideHTTPServer mounts the REST handler and the decision stream.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, h *api.ConfluenceEchoHandler, hub *ws.Hub) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l.With(applogger.String("component", "http"))),
	}
	path := ""
	if cfg.Metrics.Enabled {
		path = cfg.Metrics.Path
	}
	opts = append(opts, xhttp.WithMetrics(path, prometheus.DefaultRegisterer, prometheus.DefaultGatherer))
	return xhttp.NewServer([]xhttp.Handler{h, hub}, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	registry *engine.Registry,
	confluence *usecase.ConfluenceUseCase,
	training *usecase.TrainingUseCase,
	hub *ws.Hub,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	httpServer *xhttp.Server,
) *server.App {
	return server.New(cfg, l, registry, confluence, training, hub, consumer, kh, httpServer)
}
