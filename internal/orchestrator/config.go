package orchestrator

import "time"

// Config mirrors config.OrchestratorConfig's tuning constants plus the two
// named timeouts spec.md §4.8 calls out individually (source confirmation,
// destination delivery) and the sequential/parallel submission flag.
type Config struct {
	MaxSubmissionRetries int
	RetryBaseBackoff     time.Duration
	ConfirmationPoll     time.Duration
	SourceTimeout        time.Duration
	DestinationTimeout   time.Duration
	ParallelPerSource    bool
}

func (c Config) withDefaults() Config {
	if c.MaxSubmissionRetries == 0 {
		c.MaxSubmissionRetries = 3
	}
	if c.RetryBaseBackoff == 0 {
		c.RetryBaseBackoff = 2 * time.Second
	}
	if c.ConfirmationPoll == 0 {
		c.ConfirmationPoll = 15 * time.Second
	}
	if c.SourceTimeout == 0 {
		c.SourceTimeout = 15 * time.Minute
	}
	if c.DestinationTimeout == 0 {
		c.DestinationTimeout = 60 * time.Minute
	}
	return c
}
