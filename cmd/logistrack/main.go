package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/davicafu/logistrack/internal/config"
	followupApp "github.com/davicafu/logistrack/internal/followup/application"
	followupDomain "github.com/davicafu/logistrack/internal/followup/domain"
	followupChannel "github.com/davicafu/logistrack/internal/followup/infra/inbound/channel"
	followupKafka "github.com/davicafu/logistrack/internal/followup/infra/inbound/kafka"
	followupLmstfy "github.com/davicafu/logistrack/internal/followup/infra/inbound/lmstfy"
	"github.com/davicafu/logistrack/internal/followup/infra/outbound/analytics/clickhouse"
	followupMongo "github.com/davicafu/logistrack/internal/followup/infra/outbound/ledger/mongodb"
	ingestApp "github.com/davicafu/logistrack/internal/ingest/application"
	"github.com/davicafu/logistrack/internal/ingest/infra/inbound/envelope"
	opsHttp "github.com/davicafu/logistrack/internal/ingest/infra/inbound/http"
	"github.com/davicafu/logistrack/internal/ingest/infra/inbound/redisstream"
	"github.com/davicafu/logistrack/internal/ingest/infra/outbound/dispatch"
	orderApp "github.com/davicafu/logistrack/internal/order/application"
	orderDomain "github.com/davicafu/logistrack/internal/order/domain"
	orderCache "github.com/davicafu/logistrack/internal/order/infra/outbound/cache"
	"github.com/davicafu/logistrack/internal/order/infra/outbound/db/sqldb"
	"github.com/davicafu/logistrack/pkg/logger"
	sharedDomain "github.com/davicafu/logistrack/shared/domain"
	sharedBus "github.com/davicafu/logistrack/shared/platform/bus"
	sharedCache "github.com/davicafu/logistrack/shared/platform/cache"
	"github.com/davicafu/logistrack/shared/utils"
)

// runner es cualquier bucle de fondo que termina al cancelar el contexto.
type runner interface {
	Run(ctx context.Context)
}

// ---------------- Main ----------------
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		// El logger aún no existe: inicializamos uno por defecto para informar.
		logger.Init("info")
		logger.Logger().Fatal("invalid configuration", zap.Error(err))
	}

	logger.Init(cfg.LogLevel)
	log := logger.Logger()
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------- DB ----------------
	dialect, err := sqldb.ParseDialect(cfg.DBDriver)
	if err != nil {
		log.Fatal("invalid db driver", zap.Error(err))
	}
	dsn := cfg.SQLitePath
	if dialect == sqldb.Postgres {
		dsn = cfg.DatabaseURL
	}

	var db *sql.DB
	err = utils.Retry(ctx, 5, 2*time.Second, func() error {
		var openErr error
		db, openErr = sqldb.Open(ctx, dialect, dsn)
		if openErr != nil {
			log.Warn("⚠️ Database not ready, retrying", zap.Error(openErr))
		}
		return openErr
	})
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	if err := sqldb.InitSchema(ctx, db, dialect); err != nil {
		log.Fatal("failed to initialize schema", zap.Error(err))
	}
	store := sqldb.NewStore(db, dialect)

	// ---------------- Redis ----------------
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	var cacheInstance sharedCache.Cache
	if err := rdb.Ping(ctx).Err(); err != nil {
		// El consumidor reintentará por su cuenta; la cache no puede esperar.
		log.Warn("⚠️ Redis no disponible, cache en memoria", zap.Error(err))
		mem := orderCache.NewInMemoryCache(cfg.CacheTTL, 3*cfg.CacheTTL)
		defer mem.Stop()
		cacheInstance = mem
	} else {
		cacheInstance = orderCache.NewRedisCache(rdb, cfg.CacheTTL)
		log.Info("✅ Redis conectado, cache habilitado")
	}

	// ---------------- Dispatch ----------------
	var (
		dispatcher sharedBus.Dispatcher
		memoryBus  *dispatch.InMemoryBus
		lmstfyCli  = dispatch.NewLmstfyClient(cfg.LmstfyHost, cfg.LmstfyPort, cfg.LmstfyNamespace, cfg.LmstfyToken)
	)
	switch cfg.DispatchBackend {
	case "lmstfy":
		log.Info("🚀 Dispatching follow-up jobs to lmstfy", zap.String("queue", cfg.LmstfyQueue))
		dispatcher = dispatch.NewLmstfyDispatcher(lmstfyCli, dispatch.LmstfyOptions{
			Queue: cfg.LmstfyQueue,
			TTL:   cfg.LmstfyTTL,
			Tries: cfg.LmstfyTries,
			Delay: cfg.LmstfyDelay,
		}, log)
	case "kafka":
		log.Info("🚀 Dispatching follow-up jobs to Kafka", zap.String("topic", cfg.KafkaTaskTopic))
		writer := dispatch.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTaskTopic)
		defer writer.Close()
		dispatcher = dispatch.NewKafkaDispatcher(writer, log)
	case "memory":
		log.Info("⚡️ Dispatching follow-up jobs to the in-memory bus")
		memoryBus = dispatch.NewInMemoryBus()
		defer memoryBus.Close()
		dispatcher = memoryBus
	default:
		log.Info("Follow-up dispatch disabled")
	}

	// --------------- Pipeline --------------
	stats := ingestApp.NewStats()
	orderService := orderApp.NewOrderService(cacheInstance, log)
	pipeline := ingestApp.NewPipeline(envelope.NewDecoder(cfg.EnvelopeFields...), store, dispatcher, stats, log).
		Register(orderService, orderDomain.EventTypes()...)

	source := redisstream.NewSource(rdb, redisstream.Options{
		Stream:           cfg.Stream,
		Group:            cfg.Group,
		Consumer:         cfg.Consumer,
		GroupStart:       cfg.GroupStart,
		Count:            cfg.ReadCount,
		Block:            cfg.ReadBlock,
		ReclaimMinIdle:   cfg.ReclaimMinIdle,
		ReclaimInterval:  cfg.ReclaimInterval,
		DeadLetterStream: cfg.DeadLetterStream,
	}, log.With(zap.String("stream", cfg.Stream), zap.String("group", cfg.Group)))

	consumer := ingestApp.NewConsumer(source, pipeline, stats, log.With(zap.String("consumer", source.Consumer())),
		ingestApp.WithErrorBackoff(cfg.ErrorBackoff),
		ingestApp.WithMaxDeliveries(cfg.MaxDeliveries),
	)

	var wg sync.WaitGroup

	// ------------ Follow-up worker ------------
	if cfg.FollowupEnabled && dispatcher != nil {
		worker, cleanup := buildFollowupWorker(ctx, cfg, db, dialect, log)
		defer cleanup()

		var jobSource runner
		switch cfg.DispatchBackend {
		case "lmstfy":
			jobSource = followupLmstfy.NewJobSource(lmstfyCli, worker, followupLmstfy.Options{
				Queue:        cfg.LmstfyQueue,
				ErrorBackoff: cfg.ErrorBackoff,
				JobTimeout:   cfg.FollowupTimeout,
			}, log)
		case "kafka":
			reader := followupKafka.NewReader(cfg.KafkaBrokers, cfg.KafkaTaskTopic, cfg.KafkaGroupID)
			defer reader.Close()
			jobSource = followupKafka.NewJobReader(reader, worker, cfg.FollowupTimeout, log)
		case "memory":
			jobSource = followupChannel.NewJobConsumer(memoryBus.Subscribe(100), worker, cfg.FollowupTimeout, log)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			jobSource.Run(ctx)
		}()
	}

	// ---------------- HTTP ----------------
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	opsHttp.RegisterOpsRoutes(router, opsHttp.NewOpsHandler(stats, map[string]opsHttp.Check{
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		"database": db.PingContext,
	}))
	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: router}
	go func() {
		log.Info("🚀 Ops server running", zap.String("url", "http://localhost:"+cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("ops server failed", zap.Error(err))
		}
	}()

	// ---------------- Consumer ----------------
	if err := consumer.Run(ctx); err != nil {
		log.Error("consumer stopped with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("ops server shutdown failed", zap.Error(err))
	}
	wg.Wait()
	log.Info("🛑 Shutdown complete", zap.Any("stats", stats.Snapshot()))
}

// buildFollowupWorker elige el ledger del worker y, si hay dirección, el sink de ClickHouse.
func buildFollowupWorker(ctx context.Context, cfg *config.Config, db *sql.DB, dialect sqldb.Dialect, log *zap.Logger) (*followupApp.Worker, func()) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var ledger sharedDomain.Ledger = sqldb.NewFollowupLedger(db, dialect)
	if cfg.FollowupLedger == "mongo" {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatal("failed to connect to MongoDB", zap.Error(err))
		}
		if err := client.Ping(ctx, nil); err != nil {
			log.Fatal("failed to ping MongoDB", zap.Error(err))
		}
		cleanups = append(cleanups, func() { _ = client.Disconnect(context.Background()) })
		ledger = followupMongo.NewLedgerRepoMongoDB(client, cfg.MongoDB)
		log.Info("✅ Follow-up ledger on MongoDB", zap.String("db", cfg.MongoDB))
	}

	var sink followupDomain.AnalyticsSink
	if cfg.ClickHouseAddr != "" {
		eventLog, err := clickhouse.NewEventLog(ctx, cfg.ClickHouseAddr, cfg.ClickHouseDB)
		if err != nil {
			log.Warn("⚠️ ClickHouse no disponible, analítica desactivada", zap.Error(err))
		} else if err := eventLog.InitSchema(ctx); err != nil {
			log.Warn("⚠️ ClickHouse schema failed, analítica desactivada", zap.Error(err))
			eventLog.Close()
		} else {
			cleanups = append(cleanups, func() { eventLog.Close() })
			sink = eventLog
		}
	}

	return followupApp.NewWorker(ledger, sink, log.Named("followup")), cleanup
}
