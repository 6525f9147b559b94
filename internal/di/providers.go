package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sentioracle/internal/domain/models"
	domrepo "sentioracle/internal/domain/repository"
	domsvc "sentioracle/internal/domain/service"
	"sentioracle/internal/handler/api"
	internalrepo "sentioracle/internal/repository"
	"sentioracle/internal/service/chain"
	"sentioracle/internal/service/credentials"
	"sentioracle/internal/service/dedup"
	"sentioracle/internal/service/manipulation"
	"sentioracle/internal/service/ratelimit"
	"sentioracle/internal/service/scorer"
	"sentioracle/internal/service/signer"
	"sentioracle/internal/service/submitter"
	"sentioracle/internal/services/collectors"
	"sentioracle/internal/usecase"
	pkgcache "sentioracle/pkg/cache"
	pkgch "sentioracle/pkg/clickhouse"
	"sentioracle/pkg/config"
	pkgkafka "sentioracle/pkg/kafka"
	applogger "sentioracle/pkg/logger"
	"sentioracle/pkg/metrics"
	"sentioracle/pkg/server"
)

// ProvideLogger builds the process-wide structured logger every other
// component threads through.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	format := "console"
	if cfg.Environment == "production" {
		format = "json"
	}
	return applogger.New(&applogger.Config{Level: "info", Format: format, Output: "stdout"})
}

// ProvideLogAggregation attaches a LogCollector to the process logger when
// logging.aggregate_errors is set: identical warn/error lines within the
// flush window are deduplicated and the rollup is republished to Kafka,
// rather than a noisy collector retry loop spamming stdout once per asset.
func ProvideLogAggregation(logger *applogger.Logger, producer *pkgkafka.Producer, cfg *config.Config) error {
	if !cfg.Logging.AggregateErrors {
		return nil
	}
	logger.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   cfg.Logging.FlushInterval,
		CountThreshold: cfg.Logging.CountThreshold,
		Topic:          cfg.Logging.Topic,
		Publisher:      kafkaLogPublisher{producer: producer},
	})
	return nil
}

type kafkaLogPublisher struct {
	producer *pkgkafka.Producer
}

func (k kafkaLogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return k.producer.Publish(ctx, topic, nil, payload)
}

// ProvideMetrics creates the Prometheus metrics recorder covering every
// counter/gauge named in the pipeline's observable surface.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient connects to ClickHouse. Schema creation is the
// responsibility of each repository's own Init(ctx), called once from
// server.App.Run, so this provider only opens the pool.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates the Kafka producer backing the confirmed-
// update Publisher.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvidePublisher fans confirmed updates out to downstream consumers over
// Kafka.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.Publisher {
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

// ProvideTxLogStore persists the Submitter's transaction-watcher log to
// ClickHouse.
func ProvideTxLogStore(ch *pkgch.Client, cfg *config.Config) domrepo.TxLogStore {
	return internalrepo.NewClickHouseTxLog(ch.DB(), cfg.ClickHouse.Database+".tx_log")
}

// ProvideCycleMetricsStore persists one audit row per completed cycle.
func ProvideCycleMetricsStore(ch *pkgch.Client, cfg *config.Config) domrepo.CycleMetricsStore {
	return internalrepo.NewClickHouseCycleMetrics(ch.DB(), cfg.ClickHouse.Database+".cycle_metrics")
}

// ProvideScoreCache builds the cache backing the Scorer's lookaside for
// repeat text, layered over Redis when the dedup Redis companion is
// enabled (the same Redis deployment, distinguished by key prefix),
// otherwise purely in-memory.
func ProvideScoreCache(cfg *config.Config) pkgcache.Service {
	if !cfg.Dedup.Redis.Enabled {
		return pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(50_000))
	}
	redisCache, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Dedup.Redis.Addr),
		pkgcache.WithRedisPrefix(cfg.Dedup.Redis.Prefix+":cache"),
	)
	if err != nil {
		return pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(50_000))
	}
	return pkgcache.NewLayeredCache(redisCache, pkgcache.WithLayeredMemorySize(10_000))
}

// ProvideDedupIndex builds the in-memory dedup Index.
func ProvideDedupIndex(cfg *config.Config) *dedup.Index {
	return dedup.New(time.Duration(cfg.Dedup.HorizonSeconds)*time.Second, cfg.Dedup.Capacity)
}

// ProvideDedupCompanion optionally wraps the in-memory Index with a
// Redis-backed durable mirror, rehydrating the in-memory Index from Redis
// at startup so a restart does not re-score a full horizon.
func ProvideDedupCompanion(cfg *config.Config, idx *dedup.Index, log *applogger.Logger) *dedup.RedisCompanion {
	if !cfg.Dedup.Redis.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Dedup.Redis.Addr})
	companion := dedup.NewRedisCompanion(client, cfg.Dedup.Redis.Prefix, time.Duration(cfg.Dedup.HorizonSeconds)*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if n, err := companion.Rehydrate(ctx, idx); err != nil {
		log.Warn("dedup rehydrate failed", applogger.Error(err))
	} else {
		log.Info("dedup rehydrated from redis", applogger.Int("count", n))
	}
	return companion
}

// ProvideRateLimiter builds the shared per-source token-bucket gate every
// Collector consults before an outbound request.
func ProvideRateLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideCredentialStore builds the secret-volume-backed CredentialStore
// collector API keys and the signer key resolve through, falling back to
// the YAML-inlined values for any source the volume doesn't cover (dev
// and test deployments with cfg.Secrets.Dir unset resolve entirely from
// fallback). Loaded once at init per domain/repository.CredentialStore's
// contract; pkg/server.App re-reads it on SIGHUP.
func ProvideCredentialStore(cfg *config.Config) (domrepo.CredentialStore, error) {
	fallback := make(map[models.Source]string, len(cfg.Collectors))
	for _, cc := range cfg.Collectors {
		if cc.APIKey != "" {
			fallback[models.Source(cc.Source)] = cc.APIKey
		}
	}
	store := credentials.NewFileStore(cfg.Secrets.Dir, cfg.Secrets.SignerKeyFile, fallback, cfg.Signer.PrivateKeyHex)
	if err := store.Load(context.Background()); err != nil {
		return nil, fmt.Errorf("credential store: %w", err)
	}
	return store, nil
}

// ProvideCollectors builds one Collector per configured source: an
// HTTPPoll for "poll" mode, a WebSocketStream for "stream" mode. Stream
// collectors are also returned separately so the caller can start their
// process-lifetime Run loop independent of the Orchestrator's cadence.
func ProvideCollectors(cfg *config.Config, limiter *ratelimit.Limiter, creds domrepo.CredentialStore, log *applogger.Logger) ([]domsvc.Collector, []server.StreamRunner, error) {
	var all []domsvc.Collector
	var streams []server.StreamRunner

	for _, cc := range cfg.Collectors {
		source := models.Source(cc.Source)
		switch cc.Mode {
		case "poll":
			all = append(all, collectors.NewHTTPPoll(source, cc.BaseURL, cc.Timeout, limiter, cc.RateCapacity, cc.RateRefillS))
		case "stream":
			apiKey, err := creds.CollectorCredential(context.Background(), source)
			if err != nil {
				return nil, nil, fmt.Errorf("collector %s: %w", cc.Source, err)
			}
			ws := collectors.NewWebSocketStream(source, cc.StreamURL, apiKey, cc.Channels, cc.ReconnectDelay, cc.PingInterval, log)
			all = append(all, ws)
			streams = append(streams, ws)
		case "kafka":
			brokers := cfg.Kafka.Brokers
			topic := cc.Topic
			if topic == "" {
				topic = cfg.Kafka.Topic
			}
			ks, err := collectors.NewKafkaStream(source, brokers, topic, cc.GroupID, log)
			if err != nil {
				return nil, nil, fmt.Errorf("collector %s: %w", cc.Source, err)
			}
			all = append(all, ks)
			streams = append(streams, ks)
		default:
			return nil, nil, fmt.Errorf("collector %s: unknown mode %q", cc.Source, cc.Mode)
		}
	}
	return all, streams, nil
}

// alwaysDegraded satisfies scorer.Primary for deployments with no
// configured primary classifier URL, forcing the ensemble into
// lexicon-only degraded mode every call rather than attempting a network
// call against an empty URL.
type alwaysDegraded struct{}

func (alwaysDegraded) Score(_ context.Context, _ string) (float64, float64, error) {
	return 0, 0, fmt.Errorf("scorer: no primary classifier configured")
}

// ProvideScorer builds the ensemble Scorer: a deterministic lexicon
// fallback always present, an HTTP-backed primary classifier when
// configured, fused per the weighted-fusion rule, wrapped in a cache
// lookaside.
func ProvideScorer(cfg *config.Config, cache pkgcache.Service, log *applogger.Logger) domsvc.Scorer {
	lexicon := scorer.NewLexicon()

	var primary scorer.Primary
	if cfg.Scorer.PrimaryURL != "" {
		primary = scorer.NewPrimaryHTTP(cfg.Scorer.PrimaryURL, cfg.Scorer.Timeout)
	} else {
		primary = alwaysDegraded{}
	}

	weight := cfg.Scorer.PrimaryWeight
	if weight == 0 {
		weight = 0.7
	}
	degraded := cfg.Scorer.DegradedFactor
	if degraded == 0 {
		degraded = 0.6
	}

	ensemble := scorer.NewEnsemble(primary, lexicon, weight, degraded, log)
	return scorer.NewCached(ensemble, cache)
}

// ProvideManipulationDetector builds the multi-signal manipulation screen.
func ProvideManipulationDetector() domsvc.ManipulationDetector {
	return manipulation.New()
}

// ProvideAggregator builds the per-asset weighted-fold aggregator.
func ProvideAggregator() *usecase.Aggregator {
	return usecase.NewAggregator()
}

// ProvideChainClient connects to the configured chain RPC endpoint, or
// builds an in-process Simulator when cfg.Chain.Simulate is set — useful
// for development and for exercising the Submitter's state machine
// without a live node.
func ProvideChainClient(ctx context.Context, cfg *config.Config) (domsvc.ChainClient, error) {
	if cfg.Chain.Simulate {
		return chain.NewSimulator(cfg.Chain.ChainID, func() int64 { return time.Now().Unix() }), nil
	}
	client, err := chain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.ContractAddress)
	if err != nil {
		return nil, fmt.Errorf("chain dial: %w", err)
	}
	return client, nil
}

// ProvideSigner builds the local or remote ECDSA signer per
// cfg.Signer.Kind. The local signer's key comes from the CredentialStore
// rather than cfg directly, so a file-mounted key takes precedence over
// the YAML-inlined fallback.
func ProvideSigner(ctx context.Context, cfg *config.Config, creds domrepo.CredentialStore) (domsvc.Signer, error) {
	switch cfg.Signer.Kind {
	case "remote":
		return signer.NewRemote(ctx, cfg.Signer.RemoteURL, 5*time.Second)
	default:
		key, err := creds.SignerKey(ctx)
		if err != nil {
			return nil, fmt.Errorf("signer: %w", err)
		}
		return signer.NewLocal(string(key))
	}
}

// ProvideSubmitter builds the batching/nonce/gas/retry state machine that
// turns surviving AssetSamples into confirmed on-chain transactions.
func ProvideSubmitter(chainClient domsvc.ChainClient, sign domsvc.Signer, m domrepo.Metrics, txLog domrepo.TxLogStore, log *applogger.Logger, cfg *config.Config) domsvc.Submitter {
	return submitter.New(chainClient, sign, m, txLog, log, submitter.Config{
		MaxScoreChangeFP: cfg.Submitter.MaxScoreChangeFP,
		GasCeilingWei:    cfg.Submitter.GasCeilingWei,
	})
}

// ProvideOrchestrator wires every pipeline stage into one cohort driver.
func ProvideOrchestrator(
	cfg *config.Config,
	coll []domsvc.Collector,
	dedupIdx *dedup.Index,
	dedupCompanion *dedup.RedisCompanion,
	sc domsvc.Scorer,
	agg *usecase.Aggregator,
	det domsvc.ManipulationDetector,
	sub domsvc.Submitter,
	pub domrepo.Publisher,
	m domrepo.Metrics,
	cycleStore domrepo.CycleMetricsStore,
	log *applogger.Logger,
) *usecase.Orchestrator {
	o := usecase.New(usecase.Config{
		Cohort:        "default",
		Assets:        cfg.Cycle.Assets,
		Period:        time.Duration(cfg.Cycle.PeriodSeconds) * time.Second,
		VetoThreshold: cfg.Manipulation.Threshold,
		ChainID:       cfg.Chain.ChainID,
		ContractAddr:  cfg.Chain.ContractAddress,
		GasCeiling:    cfg.Submitter.GasCeilingWei,
		ScoreWorkers:  0,
		ScoreBufSize:  1024,
	}, coll, dedupIdx, sc, agg, det, sub, pub, m, cycleStore, log)
	o.SetDedupCompanion(dedupCompanion)
	return o
}

// ProvideAdminHandler builds the out-of-band operator HTTP surface.
func ProvideAdminHandler(log *applogger.Logger, ch *pkgch.Client, txLog domrepo.TxLogStore, sign domsvc.Signer) *api.AdminHandler {
	return api.NewAdminHandler(log, ch, txLog, sign.Address())
}

// ProvideApp assembles the process-lifetime App: the Orchestrator, the
// Submitter (for nonce reconciliation at startup), infra clients to close
// on shutdown, the streaming collectors, and the admin HTTP handler.
func ProvideApp(
	cfg *config.Config,
	orchestrator *usecase.Orchestrator,
	sub domsvc.Submitter,
	chClient *pkgch.Client,
	txLog domrepo.TxLogStore,
	cycleMetrics domrepo.CycleMetricsStore,
	pub domrepo.Publisher,
	log *applogger.Logger,
	handler *api.AdminHandler,
	streams []server.StreamRunner,
	creds domrepo.CredentialStore,
) *server.App {
	app := server.New(cfg, orchestrator, sub, chClient, txLog, cycleMetrics, pub, log)
	app.SetHTTPHandler(handler)
	app.SetStreams(streams)
	app.SetCredentialStore(creds)
	return app
}
