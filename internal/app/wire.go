// Package app wires every control-plane component into a running process
// and owns its lifecycle, adapted from the teacher's internal/app/{app,wire,
// modes}.go: Wire builds concrete dependencies from config.Config, Dependencies
// bundles them, and App.Run/Close mirror the teacher's start/reverse-order-
// teardown shape generalized to this domain's three CLI subcommands
// (serve/once/explain) instead of five trading modes.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/crossfluxx/rebalancer/internal/aggregator"
	s3blob "github.com/crossfluxx/rebalancer/internal/blob/s3"
	redisCache "github.com/crossfluxx/rebalancer/internal/cache/redis"
	"github.com/crossfluxx/rebalancer/internal/chainclients"
	"github.com/crossfluxx/rebalancer/internal/config"
	"github.com/crossfluxx/rebalancer/internal/crypto"
	"github.com/crossfluxx/rebalancer/internal/domain"
	"github.com/crossfluxx/rebalancer/internal/eventbus"
	"github.com/crossfluxx/rebalancer/internal/feed"
	"github.com/crossfluxx/rebalancer/internal/httpclient"
	"github.com/crossfluxx/rebalancer/internal/metrics"
	"github.com/crossfluxx/rebalancer/internal/notify"
	"github.com/crossfluxx/rebalancer/internal/orchestrator"
	"github.com/crossfluxx/rebalancer/internal/platform/priceapi"
	"github.com/crossfluxx/rebalancer/internal/platform/yieldapi"
	"github.com/crossfluxx/rebalancer/internal/server"
	"github.com/crossfluxx/rebalancer/internal/server/handler"
	"github.com/crossfluxx/rebalancer/internal/signalagent"
	"github.com/crossfluxx/rebalancer/internal/store/memstore"
	"github.com/crossfluxx/rebalancer/internal/store/pgstore"
	"github.com/crossfluxx/rebalancer/internal/strategyagent"
	"github.com/crossfluxx/rebalancer/internal/supervisor"
	"github.com/crossfluxx/rebalancer/internal/upkeep"
	"github.com/crossfluxx/rebalancer/internal/voting"
)

// Dependencies bundles every wired component the CLI entry point drives.
type Dependencies struct {
	Bus          *eventbus.Bus
	Feed         *feed.Feed
	Aggregator   *aggregator.Aggregator
	SignalAgent  *signalagent.Agent
	StrategyEngine *strategyagent.Engine
	VotingLoop   *voting.Loop
	Upkeep       *upkeep.Engine
	Orchestrator *orchestrator.Engine
	Notify       *notify.Subscriber
	Supervisor   *supervisor.Supervisor

	History     domain.HistoryStore
	Checkpoints domain.CheckpointStore
	Archiver    *s3blob.Archiver

	// SnapshotCache and Relay are nil unless cfg.Redis.Enabled: they are the
	// optional distributed cache/pubsub layer (spec.md's Redis-backed
	// distributed caching/pubsub expansion), never required for a single
	// rebalancer instance to run.
	SnapshotCache *redisCache.PoolCache
	Relay         *eventbus.RedisRelay

	Metrics *metrics.Memory
	// Server is nil unless cfg.Server.Enabled.
	Server *server.Server
	// ComponentNames lists every supervised component in startup order, for
	// internal/server's /healthz to report on.
	ComponentNames []string

	// Pairs is the configured set of price pairs the feed polls, needed by
	// OnceMode to rebuild a snapshot without the event-driven Run loop.
	Pairs []string
}

// Degraded forwards to Supervisor, letting Dependencies itself satisfy
// handler.ComponentStatus without internal/server needing to import
// internal/supervisor directly.
func (d *Dependencies) Degraded(name string) bool {
	return d.Supervisor.Degraded(name)
}

// Wire constructs every concrete dependency from cfg and returns them bundled
// together with a cleanup function that releases every acquired resource in
// reverse order (the same contract the teacher's Wire returns).
// listenAddr, when non-empty, overrides cfg.Server.Port as the full bind
// address for the debug/health HTTP server (serve --listen); an empty value
// falls back to fmt.Sprintf(":%d", cfg.Server.Port).
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger, listenAddr string) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	registry := domain.NewChainRegistry(chainParams(cfg))

	signer, err := crypto.NewSigner(cfg.Wallet.PrivateKey)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("app: wire signer: %w", err)
	}

	clients := chainclients.NewClientSet(registry, signer)
	vaultAddrs, executorAddrs := contractAddresses(cfg)
	vault := chainclients.NewVaultClient(clients, vaultAddrs)
	executor := chainclients.NewExecutorClient(clients, executorAddrs)
	bridge := chainclients.NewBridgeClient(clients, signer, executor)
	watcher := chainclients.NewWatcher(clients)
	gasTracker := chainclients.NewGasTracker(clients, registry, 15*time.Second, logger)

	walletAddr := signer.Address().Hex()

	deps := &Dependencies{Bus: eventbus.New(0)}

	if cfg.Redis.Enabled {
		rdb, err := redisCache.New(ctx, redisCache.ClientConfig{
			Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize, MaxRetries: cfg.Redis.MaxRetries, TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("app: wire redis: %w", err)
		}
		closers = append(closers, func() { _ = rdb.Close() })
		deps.SnapshotCache = redisCache.NewPoolCache(rdb)
		deps.Relay = eventbus.NewRedisRelay(rdb.Underlying(), deps.Bus)
	}

	history, checkpoints, storeCleanup, err := wireStore(ctx, cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("app: wire store: %w", err)
	}
	if storeCleanup != nil {
		closers = append(closers, storeCleanup)
	}
	deps.History = history
	deps.Checkpoints = checkpoints

	if cfg.S3.Enabled {
		blobClient, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint: cfg.S3.Endpoint, Region: cfg.S3.Region, Bucket: cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey, SecretKey: cfg.S3.SecretKey,
			UseSSL: cfg.S3.UseSSL, ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("app: wire s3: %w", err)
		}
		if archiveStore, ok := history.(s3blob.HistoryArchiveStore); ok {
			deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(blobClient), archiveStore)
		}
	}

	httpCfg := httpClientConfig()
	priceSrc := priceapi.New(cfg.Feed.PriceAPIBaseURL, httpCfg, logger)
	yieldSrc := yieldapi.New(cfg.Feed.YieldAPIBaseURL, httpCfg, logger)
	pairs, chainIDs := feedTargets(cfg)
	deps.Pairs = pairs

	deps.Feed = feed.New(priceSrc, yieldSrc, deps.Bus, feed.Config{
		PriceInterval:       cfg.Feed.PollInterval.Duration,
		DegradedInterval:    cfg.Feed.DegradedInterval.Duration,
		MaxStaleness:        cfg.Feed.MaxPriceAge.Duration,
		SignificantDeltaBps: cfg.Feed.SignificantDeltaBps,
	}, pairs, chainIDs, logger)

	deps.Aggregator = aggregator.New(deps.Feed, deps.Bus, aggregator.Config{}, logger)

	deps.SignalAgent = signalagent.New(deps.Aggregator, deps.Bus, signalagent.Config{
		AprDeltaThresholdBps:  int64(cfg.Signal.AprDriftThresholdBps),
		UtilizationCeilingBps: cfg.Signal.UtilizationAlertBps,
	}, logger)

	registryAgent := strategyagent.NewRegistry()
	registryAgent.Register(strategyagent.HigherAprGenerator{})
	tracker := strategyagent.NewAprTracker(24 * time.Hour)
	deps.StrategyEngine = strategyagent.NewEngine(registryAgent, vaultFeeAdapter{bridge}, tracker, strategyagent.Config{
		TopK: cfg.Strategy.TopK,
	}, logger)

	coordinator := voting.New(voting.Config{
		SignalWeightPpm:       cfg.Voting.SignalWeightPpm,
		StrategyWeightPpm:     cfg.Voting.StrategyWeightPpm,
		ConsensusThresholdPpm: cfg.Voting.MinConsensusPpm,
		MinConfidencePpm:      cfg.Voting.MinConfidencePpm,
		EmergencyThresholdBps: cfg.Voting.EmergencyThresholdBps,
		SafePool: domain.PoolKey{
			ChainId:      domain.ChainId(cfg.Voting.SafePoolChainId),
			PoolAddress:  cfg.Voting.SafePoolAddress,
			Protocol:     domain.Protocol(cfg.Voting.SafePoolProtocol),
		},
	}, logger, nil, nil)

	deps.VotingLoop = voting.NewLoop(coordinator, deps.StrategyEngine, deps.Aggregator, vaultPositionSource{vault, cfg, walletAddr}, deps.Bus, voting.LoopConfig{}, logger)

	deps.Orchestrator = orchestrator.New(bridge, bridge, watcher, watcher, registry, deps.Bus, orchestrator.Config{
		RetryBaseBackoff:     cfg.Orchestrator.RetryBaseBackoff.Duration,
		MaxSubmissionRetries: cfg.Orchestrator.MaxSubmissionRetries,
		ConfirmationPoll:     cfg.Orchestrator.ConfirmationPoll.Duration,
		SourceTimeout:        cfg.Orchestrator.SourceTimeout.Duration,
		DestinationTimeout:   cfg.Orchestrator.DestinationTimeout.Duration,
		ParallelPerSource:    cfg.Orchestrator.ParallelPerSource,
	}, walletAddr, logger)
	if deps.Checkpoints != nil {
		deps.Orchestrator.WithCheckpoints(deps.Checkpoints)
	}

	deps.Upkeep = upkeep.New(deps.Aggregator, gasTracker, deps.VotingLoop, deps.Orchestrator, deps.Bus, upkeep.Config{
		EvalInterval:     cfg.Upkeep.EvalInterval.Duration,
		MaxSubmitRetries: cfg.Upkeep.MaxSubmitRetries,
		RetryBaseBackoff: cfg.Upkeep.RetryBaseBackoff.Duration,
		PauseDuration:    cfg.Upkeep.PauseDuration.Duration,
	}, logger)
	deps.Upkeep.Register(defaultUpkeep(cfg))

	notifier, err := wireNotifier(cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("app: wire notify: %w", err)
	}
	deps.Notify = notify.NewSubscriber(deps.Bus, notifier, logger)

	deps.Metrics = metrics.New()

	components := []supervisor.Component{
		{Name: "feed", Run: deps.Feed.Run},
		{Name: "aggregator", Run: deps.Aggregator.Run},
		{Name: "signal_agent", Run: deps.SignalAgent.Run},
		{Name: "voting", Run: deps.VotingLoop.Run},
		{Name: "upkeep", Run: deps.Upkeep.Run},
	}
	if deps.Relay != nil {
		components = append(components,
			supervisor.Component{Name: "redis_relay_decision", Run: func(ctx context.Context) error {
				return deps.Relay.Forward(ctx, eventbus.TopicDecision)
			}},
			supervisor.Component{Name: "redis_relay_health", Run: func(ctx context.Context) error {
				return deps.Relay.Forward(ctx, eventbus.TopicHealthReport)
			}},
		)
	}
	if deps.SnapshotCache != nil {
		components = append(components, supervisor.Component{
			Name: "redis_snapshot_cache",
			Run:  bridgeSnapshotCache(deps.Bus, deps.SnapshotCache, deps.Metrics, logger),
		})
	}
	components = append(components, supervisor.Component{
		Name: "history_recorder",
		Run:  bridgeHistoryRecorder(deps.Bus, deps.History, deps.Metrics, logger),
	})

	if cfg.Server.Enabled {
		addr := listenAddr
		if addr == "" {
			addr = fmt.Sprintf(":%d", cfg.Server.Port)
		}
		health := handler.NewHealthHandler(deps, componentNamesOf(components))
		snapshot := func() any { return deps.Metrics.Snapshot() }
		metricsHandler := handler.NewMetricsHandler(snapshot)
		deps.Server = server.New(addr, server.Handlers{
			Health:  health,
			Metrics: metricsHandler,
		}, logger)
		components = append(components, supervisor.Component{Name: "http_server", Run: deps.Server.Run})
	}

	deps.ComponentNames = componentNamesOf(components)
	deps.Supervisor = supervisor.New(components, deps.Bus, supervisor.Config{}, logger)

	return deps, cleanup, nil
}

func componentNamesOf(components []supervisor.Component) []string {
	names := make([]string, len(components))
	for i, c := range components {
		names[i] = c.Name
	}
	return names
}

func wireStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.HistoryStore, domain.CheckpointStore, func(), error) {
	if !cfg.Postgres.Enabled {
		m := memstore.New(memstore.DefaultCapacity)
		return m, m, nil, nil
	}

	pool, err := pgstore.Connect(ctx, pgstore.ClientConfig{
		DSN: cfg.Postgres.DSN, Host: cfg.Postgres.Host, Port: cfg.Postgres.Port,
		Database: cfg.Postgres.Database, User: cfg.Postgres.User, Password: cfg.Postgres.Password,
		SSLMode: cfg.Postgres.SSLMode, MaxConns: cfg.Postgres.PoolMaxConns, MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	s := pgstore.New(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	return s, s, pool.Close, nil
}

func wireNotifier(cfg *config.Config, logger *slog.Logger) (*notify.Notifier, error) {
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	return notify.NewNotifier(senders, cfg.Notify.Events, logger), nil
}

func chainParams(cfg *config.Config) []domain.ChainParams {
	out := make([]domain.ChainParams, len(cfg.Chains))
	for i, c := range cfg.Chains {
		out[i] = domain.ChainParams{
			ChainId:           domain.ChainId(c.ChainId),
			Name:              c.Name,
			RPCURL:            c.RPCURL,
			RouterAddress:     c.RouterAddress,
			ConfirmationDepth: c.ConfirmationDepth,
			GasCeilingWei:     c.GasCeilingWei,
		}
	}
	return out
}

func contractAddresses(cfg *config.Config) (vault map[domain.ChainId]string, executor map[domain.ChainId]string) {
	vault = make(map[domain.ChainId]string)
	executor = make(map[domain.ChainId]string)
	for _, c := range cfg.Chains {
		vault[domain.ChainId(c.ChainId)] = c.RouterAddress
		executor[domain.ChainId(c.ChainId)] = c.RouterAddress
	}
	return vault, executor
}

func feedTargets(cfg *config.Config) (pairs []string, chains []domain.ChainId) {
	for _, c := range cfg.Chains {
		chains = append(chains, domain.ChainId(c.ChainId))
	}
	return cfg.Feed.Pairs, chains
}

func defaultUpkeep(cfg *config.Config) domain.UpkeepConfig {
	var targetChain domain.ChainId
	if len(cfg.Chains) > 0 {
		targetChain = domain.ChainId(cfg.Chains[0].ChainId)
	}
	return domain.UpkeepConfig{
		Id:                   "default",
		TargetChain:          targetChain,
		Active:               true,
		MinConfidencePpm:     cfg.Voting.MinConfidencePpm,
		MinConsensusPpm:      cfg.Voting.MinConsensusPpm,
		AprDeltaThresholdBps: cfg.Upkeep.AprDeltaThresholdBps,
		Interval:             cfg.Upkeep.EvalInterval.Duration,
		TvlDeltaThresholdBps: cfg.Upkeep.TvlDeltaThresholdBps,
	}
}

func httpClientConfig() httpclient.Config {
	return httpclient.Config{}
}

// bridgeSnapshotCache subscribes to every published MarketSnapshot and
// writes each pool's latest observation into the distributed PoolCache, so
// a standby instance or dashboard reading only from Redis stays current.
func bridgeSnapshotCache(bus *eventbus.Bus, cache *redisCache.PoolCache, sink *metrics.Memory, logger *slog.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		ch := bus.Subscribe(ctx, eventbus.TopicSnapshot)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev, ok := <-ch:
				if !ok {
					return nil
				}
				snap, ok := ev.(domain.MarketSnapshot)
				if !ok {
					continue
				}
				for _, pool := range snap.Pools {
					if err := cache.Set(ctx, pool); err != nil {
						logger.Warn("redis snapshot cache write failed", slog.String("pool", pool.Key.PoolAddress), slog.String("error", err.Error()))
						continue
					}
					sink.IncCounter("redis_snapshot_cache_writes", 1, nil)
				}
			}
		}
	}
}

// bridgeHistoryRecorder subscribes to every published Decision and appends
// it to the HistoryStore under its own Id, so the `explain` CLI subcommand
// can look one up later by id.
func bridgeHistoryRecorder(bus *eventbus.Bus, history domain.HistoryStore, sink *metrics.Memory, logger *slog.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		ch := bus.Subscribe(ctx, eventbus.TopicDecision)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev, ok := <-ch:
				if !ok {
					return nil
				}
				decision, ok := ev.(domain.Decision)
				if !ok {
					continue
				}
				id := decision.Id
				if id == "" {
					id = uuid.NewString()
				}
				payload, err := json.Marshal(decision)
				if err != nil {
					logger.Warn("history record marshal failed", slog.String("error", err.Error()))
					continue
				}
				rec := domain.HistoryRecord{Id: id, Kind: "decision", PayloadJSON: payload, RecordedAt: decision.ReachedAt}
				if err := history.AppendRecord(ctx, rec); err != nil {
					logger.Warn("history record append failed", slog.String("id", id), slog.String("error", err.Error()))
					continue
				}
				sink.IncCounter("decisions_recorded", 1, map[string]string{"action": string(decision.Action)})
			}
		}
	}
}

// vaultFeeAdapter narrows chainclients.BridgeClient down to
// strategyagent.FeeEstimator so the strategy package never imports
// chainclients directly.
type vaultFeeAdapter struct {
	bridge *chainclients.BridgeClient
}

func (v vaultFeeAdapter) EstimateFeeBps(ctx context.Context, step domain.ReallocationStep) (int64, error) {
	fee, _, err := v.bridge.EstimateFee(ctx, step)
	if err != nil {
		return 0, err
	}
	if step.AmountSmallest == nil || step.AmountSmallest.IsZero() || fee == nil {
		return 0, nil
	}
	bps := new(big.Int).Mul(fee.Int(), big.NewInt(10000))
	bps.Quo(bps, step.AmountSmallest.Int())
	return bps.Int64(), nil
}

// vaultPositionSource narrows chainclients.VaultClient + chain config down
// to voting.PositionSource.
type vaultPositionSource struct {
	vault      *chainclients.VaultClient
	cfg        *config.Config
	walletAddr string
}

func (v vaultPositionSource) Positions(ctx context.Context) ([]strategyagent.Position, error) {
	var out []strategyagent.Position
	for _, c := range v.cfg.Chains {
		amount, err := v.vault.GetUserDeposit(ctx, domain.ChainId(c.ChainId), v.walletAddr, "")
		if err != nil {
			continue
		}
		if amount == nil || amount.IsZero() {
			continue
		}
		out = append(out, strategyagent.Position{
			Pool:           domain.PoolKey{ChainId: domain.ChainId(c.ChainId), PoolAddress: c.RouterAddress},
			AmountSmallest: amount,
		})
	}
	return out, nil
}
