package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies REBAL_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known REBAL_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file. Per-chain entries are not override-able this way;
// the TOML chain list is authoritative.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "REBAL_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "REBAL_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "REBAL_WALLET_KEY_PASSWORD")

	// ── Feed ──
	setStr(&cfg.Feed.YieldAPIBaseURL, "REBAL_FEED_YIELD_API_BASE_URL")
	setStr(&cfg.Feed.PriceAPIBaseURL, "REBAL_FEED_PRICE_API_BASE_URL")
	setDuration(&cfg.Feed.PollInterval, "REBAL_FEED_POLL_INTERVAL")
	setDuration(&cfg.Feed.DegradedInterval, "REBAL_FEED_DEGRADED_INTERVAL")
	setInt64(&cfg.Feed.SignificantDeltaBps, "REBAL_FEED_SIGNIFICANT_DELTA_BPS")

	// ── Signal ──
	setInt32(&cfg.Signal.AprDriftThresholdBps, "REBAL_SIGNAL_APR_DRIFT_THRESHOLD_BPS")
	setInt64(&cfg.Signal.PriceDeltaThresholdBps, "REBAL_SIGNAL_PRICE_DELTA_THRESHOLD_BPS")
	setInt32(&cfg.Signal.UtilizationAlertBps, "REBAL_SIGNAL_UTILIZATION_ALERT_BPS")
	setInt32(&cfg.Signal.MinConfidencePpm, "REBAL_SIGNAL_MIN_CONFIDENCE_PPM")

	// ── Strategy ──
	setInt(&cfg.Strategy.TopK, "REBAL_STRATEGY_TOP_K")
	setInt64(&cfg.Strategy.MinEdgeBps, "REBAL_STRATEGY_MIN_EDGE_BPS")
	setInt(&cfg.Strategy.MaxStepsPerPlan, "REBAL_STRATEGY_MAX_STEPS_PER_PLAN")
	setInt32(&cfg.Strategy.RiskAversionPpm, "REBAL_STRATEGY_RISK_AVERSION_PPM")

	// ── Voting ──
	setInt32(&cfg.Voting.MinConsensusPpm, "REBAL_VOTING_MIN_CONSENSUS_PPM")
	setInt32(&cfg.Voting.SignalWeightPpm, "REBAL_VOTING_SIGNAL_WEIGHT_PPM")
	setInt32(&cfg.Voting.StrategyWeightPpm, "REBAL_VOTING_STRATEGY_WEIGHT_PPM")
	setInt32(&cfg.Voting.MinConfidencePpm, "REBAL_VOTING_MIN_CONFIDENCE_PPM")
	setInt32(&cfg.Voting.EmergencyDropBps, "REBAL_VOTING_EMERGENCY_DROP_BPS")
	setInt64(&cfg.Voting.EmergencyThresholdBps, "REBAL_VOTING_EMERGENCY_THRESHOLD_BPS")
	setStr(&cfg.Voting.SafePoolProtocol, "REBAL_VOTING_SAFE_POOL_PROTOCOL")
	setStr(&cfg.Voting.SafePoolAddress, "REBAL_VOTING_SAFE_POOL_ADDRESS")

	// ── Upkeep ──
	setDuration(&cfg.Upkeep.EvalInterval, "REBAL_UPKEEP_EVAL_INTERVAL")
	setInt32(&cfg.Upkeep.AprDeltaThresholdBps, "REBAL_UPKEEP_APR_DELTA_THRESHOLD_BPS")
	setInt32(&cfg.Upkeep.TvlDeltaThresholdBps, "REBAL_UPKEEP_TVL_DELTA_THRESHOLD_BPS")
	setInt(&cfg.Upkeep.MaxConsecutiveFailures, "REBAL_UPKEEP_MAX_CONSECUTIVE_FAILURES")
	setDuration(&cfg.Upkeep.PauseDuration, "REBAL_UPKEEP_PAUSE_DURATION")
	setInt(&cfg.Upkeep.MaxSubmitRetries, "REBAL_UPKEEP_MAX_SUBMIT_RETRIES")
	setDuration(&cfg.Upkeep.RetryBaseBackoff, "REBAL_UPKEEP_RETRY_BASE_BACKOFF")

	// ── Orchestrator ──
	setDuration(&cfg.Orchestrator.RetryBaseBackoff, "REBAL_ORCHESTRATOR_RETRY_BASE_BACKOFF")
	setInt(&cfg.Orchestrator.MaxSubmissionRetries, "REBAL_ORCHESTRATOR_MAX_SUBMISSION_RETRIES")
	setDuration(&cfg.Orchestrator.ConfirmationPoll, "REBAL_ORCHESTRATOR_CONFIRMATION_POLL")
	setDuration(&cfg.Orchestrator.SourceTimeout, "REBAL_ORCHESTRATOR_SOURCE_TIMEOUT")
	setDuration(&cfg.Orchestrator.DestinationTimeout, "REBAL_ORCHESTRATOR_DESTINATION_TIMEOUT")
	setBool(&cfg.Orchestrator.ParallelPerSource, "REBAL_ORCHESTRATOR_PARALLEL_PER_SOURCE")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "REBAL_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "REBAL_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "REBAL_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "REBAL_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "REBAL_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "REBAL_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "REBAL_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "REBAL_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "REBAL_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "REBAL_POSTGRES_POOL_MIN_CONNS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "REBAL_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "REBAL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REBAL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REBAL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REBAL_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "REBAL_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "REBAL_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "REBAL_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "REBAL_S3_REGION")
	setStr(&cfg.S3.Bucket, "REBAL_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "REBAL_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "REBAL_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "REBAL_S3_USE_SSL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "REBAL_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "REBAL_SERVER_PORT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "REBAL_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "REBAL_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "REBAL_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "REBAL_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "REBAL_MODE")
	setStr(&cfg.LogLevel, "REBAL_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
