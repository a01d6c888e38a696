// Package config defines the top-level configuration for the rebalancer
// control plane and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by REBAL_* environment variables.
type Config struct {
	Wallet       WalletConfig       `toml:"wallet"`
	Chains       []ChainConfig      `toml:"chain"`
	Feed         FeedConfig         `toml:"feed"`
	Signal       SignalConfig       `toml:"signal"`
	Strategy     StrategyConfig     `toml:"strategy"`
	Voting       VotingConfig       `toml:"voting"`
	Upkeep       UpkeepConfig       `toml:"upkeep"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Postgres     PostgresConfig     `toml:"postgres"`
	Redis        RedisConfig        `toml:"redis"`
	S3           S3Config           `toml:"s3"`
	Server       ServerConfig       `toml:"server"`
	Notify       NotifyConfig       `toml:"notify"`
	Mode         string             `toml:"mode"`
	LogLevel     string             `toml:"log_level"`
}

// WalletConfig holds the signer credentials used to submit bridge
// transactions on behalf of the controlled vault.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig describes one chain the rebalancer observes and can act on.
// One entry per chain; the chain registry is built from this list at
// startup (internal/domain.NewChainRegistry).
type ChainConfig struct {
	ChainId           uint64 `toml:"chain_id"`
	Name              string `toml:"name"`
	Selector          string `toml:"selector"`
	RouterAddress     string `toml:"router_address"`
	LinkTokenAddress  string `toml:"link_token_address"`
	ExplorerURL       string `toml:"explorer_url"`
	NativeDecimals    int    `toml:"native_decimals"`
	RPCURL            string `toml:"rpc_url"`
	WebSocketURL      string `toml:"websocket_url"`
	ConfirmationDepth uint64 `toml:"confirmation_depth"`
	GasCeilingWei     uint64 `toml:"gas_ceiling_wei"`
}

// FeedConfig controls the Price/Yield Data Feed's polling cadences and
// upstream endpoints.
type FeedConfig struct {
	YieldAPIBaseURL     string   `toml:"yield_api_base_url"`
	PriceAPIBaseURL     string   `toml:"price_api_base_url"`
	Pairs               []string `toml:"pairs"`
	PollInterval        duration `toml:"poll_interval"`
	DegradedInterval    duration `toml:"degraded_interval"`
	MaxPriceAge         duration `toml:"max_price_age"`
	SignificantDeltaBps int64    `toml:"significant_delta_bps"`
}

// SignalConfig controls the Signal Agent's rule thresholds.
type SignalConfig struct {
	AprDriftThresholdBps   int32 `toml:"apr_drift_threshold_bps"`
	PriceDeltaThresholdBps int64 `toml:"price_delta_threshold_bps"`
	UtilizationAlertBps    int32 `toml:"utilization_alert_bps"`
	MinConfidencePpm       int32 `toml:"min_confidence_ppm"`
}

// StrategyConfig controls the Strategy Agent's candidate generation and
// ranking.
type StrategyConfig struct {
	TopK              int     `toml:"top_k"`
	MinEdgeBps        int64   `toml:"min_edge_bps"`
	MaxStepsPerPlan    int    `toml:"max_steps_per_plan"`
	RiskAversionPpm   int32   `toml:"risk_aversion_ppm"`
	GasCostBufferBps  int64   `toml:"gas_cost_buffer_bps"`
}

// VotingConfig controls the Voting Coordinator's consensus thresholds.
type VotingConfig struct {
	MinConsensusPpm       int32  `toml:"min_consensus_ppm"`
	SignalWeightPpm       int32  `toml:"signal_weight_ppm"`
	StrategyWeightPpm     int32  `toml:"strategy_weight_ppm"`
	MinConfidencePpm      int32  `toml:"min_confidence_ppm"`
	EmergencyDropBps      int32  `toml:"emergency_drop_bps"`
	EmergencyThresholdBps int64  `toml:"emergency_threshold_bps"`
	SafePoolChainId       uint64 `toml:"safe_pool_chain_id"`
	SafePoolProtocol      string `toml:"safe_pool_protocol"`
	SafePoolAddress       string `toml:"safe_pool_address"`
}

// UpkeepConfig controls the Automation/Upkeep Engine's trigger thresholds —
// the engine-wide tuning knobs shared by every domain.UpkeepConfig entity,
// not to be confused with that per-registration entity (internal/domain).
type UpkeepConfig struct {
	EvalInterval           duration `toml:"eval_interval"`
	AprDeltaThresholdBps   int32    `toml:"apr_delta_threshold_bps"`
	TvlDeltaThresholdBps   int32    `toml:"tvl_delta_threshold_bps"`
	MaxConsecutiveFailures int      `toml:"max_consecutive_failures"`
	PauseDuration          duration `toml:"pause_duration"`
	MaxSubmitRetries       int      `toml:"max_submit_retries"`
	RetryBaseBackoff       duration `toml:"retry_base_backoff"`
}

// OrchestratorConfig controls the Cross-Chain Execution Orchestrator's
// retry and confirmation behavior.
type OrchestratorConfig struct {
	RetryBaseBackoff     duration `toml:"retry_base_backoff"`
	MaxSubmissionRetries int      `toml:"max_submission_retries"`
	ConfirmationPoll     duration `toml:"confirmation_poll"`
	SourceTimeout        duration `toml:"source_timeout"`
	DestinationTimeout   duration `toml:"destination_timeout"`
	ParallelPerSource    bool     `toml:"parallel_per_source"`
}

// PostgresConfig holds the durable history/checkpoint store's connection
// parameters.
type PostgresConfig struct {
	DSN          string `toml:"dsn"`
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Database     string `toml:"database"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	SSLMode      string `toml:"ssl_mode"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
	Enabled      bool   `toml:"enabled"`
}

// RedisConfig holds the event bus's optional Redis relay connection
// parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	Enabled    bool   `toml:"enabled"`
}

// S3Config holds the cold-archive object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Enabled        bool   `toml:"enabled"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds the health/metrics HTTP server parameters.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chains: []ChainConfig{
			{ChainId: 1, Name: "ethereum", Selector: "5009297550715157269", NativeDecimals: 18, ConfirmationDepth: 12},
			{ChainId: 42161, Name: "arbitrum", Selector: "4949039107694359620", NativeDecimals: 18, ConfirmationDepth: 1},
		},
		Feed: FeedConfig{
			Pairs:               []string{"ETH/USDC"},
			PollInterval:        duration{30 * time.Second},
			DegradedInterval:    duration{2 * time.Minute},
			MaxPriceAge:         duration{5 * time.Minute},
			SignificantDeltaBps: 50,
		},
		Signal: SignalConfig{
			AprDriftThresholdBps:   75,
			PriceDeltaThresholdBps: 50,
			UtilizationAlertBps:    9000,
			MinConfidencePpm:       600_000,
		},
		Strategy: StrategyConfig{
			TopK:             8,
			MinEdgeBps:       25,
			MaxStepsPerPlan:  4,
			RiskAversionPpm:  300_000,
			GasCostBufferBps: 10,
		},
		Voting: VotingConfig{
			MinConsensusPpm:       700_000,
			SignalWeightPpm:       400_000,
			StrategyWeightPpm:     600_000,
			MinConfidencePpm:      600_000,
			EmergencyThresholdBps: 2000,
			SafePoolChainId:       1,
			SafePoolProtocol:      "aave",
			SafePoolAddress:       "0x0000000000000000000000000000000000000000",
			EmergencyDropBps:  500,
		},
		Upkeep: UpkeepConfig{
			EvalInterval:           duration{60 * time.Second},
			AprDeltaThresholdBps:   75,
			TvlDeltaThresholdBps:   500,
			MaxConsecutiveFailures: 5,
			PauseDuration:          duration{30 * time.Minute},
			MaxSubmitRetries:       5,
			RetryBaseBackoff:       duration{2 * time.Second},
		},
		Orchestrator: OrchestratorConfig{
			RetryBaseBackoff:     duration{2 * time.Second},
			MaxSubmissionRetries: 3,
			ConfirmationPoll:     duration{15 * time.Second},
			SourceTimeout:        duration{15 * time.Minute},
			DestinationTimeout:   duration{60 * time.Minute},
			ParallelPerSource:    false,
		},
		Postgres: PostgresConfig{
			Host:         "localhost",
			Port:         5432,
			Database:     "postgres",
			User:         "postgres",
			SSLMode:      "disable",
			PoolMaxConns: 10,
			PoolMinConns: 2,
			Enabled:      false,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			Enabled:    false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "rebalancer-history",
			UseSSL:         false,
			ForcePathStyle: true,
			Enabled:        false,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8000,
		},
		Notify: NotifyConfig{
			Events: []string{"emergency_exit", "upkeep_failed", "component_down"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode, set by the CLI
// subcommand the user invoked (cmd/rebalancer serve|once|explain).
var validModes = map[string]bool{
	"serve":   true,
	"once":    true,
	"explain": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, once, explain)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		errs = append(errs, "wallet: either private_key or encrypted_key_path must be set")
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	if len(c.Chains) < 2 {
		errs = append(errs, "chain: at least two chains must be configured for cross-chain rebalancing")
	}
	seenID := map[uint64]bool{}
	seenSel := map[string]bool{}
	for _, ch := range c.Chains {
		if ch.Name == "" {
			errs = append(errs, "chain: name must not be empty")
		}
		if ch.RPCURL == "" {
			errs = append(errs, fmt.Sprintf("chain %s: rpc_url must not be empty", ch.Name))
		}
		if seenID[ch.ChainId] {
			errs = append(errs, fmt.Sprintf("chain %s: duplicate chain_id %d", ch.Name, ch.ChainId))
		}
		seenID[ch.ChainId] = true
		if seenSel[ch.Selector] {
			errs = append(errs, fmt.Sprintf("chain %s: duplicate selector %s", ch.Name, ch.Selector))
		}
		seenSel[ch.Selector] = true
	}

	if c.Feed.YieldAPIBaseURL == "" {
		errs = append(errs, "feed: yield_api_base_url must not be empty")
	}
	if c.Feed.PriceAPIBaseURL == "" {
		errs = append(errs, "feed: price_api_base_url must not be empty")
	}

	if c.Signal.MinConfidencePpm < 0 || c.Signal.MinConfidencePpm > 1_000_000 {
		errs = append(errs, "signal: min_confidence_ppm must be 0-1000000")
	}

	if c.Strategy.TopK < 1 {
		errs = append(errs, "strategy: top_k must be >= 1")
	}
	if c.Strategy.MaxStepsPerPlan < 1 {
		errs = append(errs, "strategy: max_steps_per_plan must be >= 1")
	}

	if c.Voting.MinConsensusPpm < 0 || c.Voting.MinConsensusPpm > 1_000_000 {
		errs = append(errs, "voting: min_consensus_ppm must be 0-1000000")
	}
	if c.Voting.SignalWeightPpm+c.Voting.StrategyWeightPpm == 0 {
		errs = append(errs, "voting: signal_weight_ppm and strategy_weight_ppm must not both be zero")
	}
	if c.Voting.MinConfidencePpm < 0 || c.Voting.MinConfidencePpm > 1_000_000 {
		errs = append(errs, "voting: min_confidence_ppm must be 0-1000000")
	}
	if c.Voting.SafePoolProtocol == "" || c.Voting.SafePoolAddress == "" {
		errs = append(errs, "voting: safe_pool_protocol and safe_pool_address are required for emergency_exit")
	}

	if c.Upkeep.MaxConsecutiveFailures < 1 {
		errs = append(errs, "upkeep: max_consecutive_failures must be >= 1")
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when enabled")
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
