package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/crossfluxx/rebalancer/internal/domain"
)

// ServeMode starts every supervised component and blocks until ctx is
// cancelled, matching the teacher's long-running mode shape.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")
	return deps.Supervisor.Run(ctx)
}

// OnceMode runs exactly one snapshot + decision + (optional) upkeep cycle
// and prints the resulting Decision, per spec.md §6. Unlike ServeMode it
// never starts the supervisor's background loops — every step here runs
// synchronously, once, then returns.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting once mode", slog.Bool("dry_run", a.DryRun))

	deps.Feed.PollOnce(ctx)
	snap := deps.Aggregator.RebuildNow(deps.Pairs)
	a.logger.InfoContext(ctx, "snapshot built",
		slog.Int("pools", len(snap.Pools)),
		slog.Int("prices", len(snap.Prices)),
	)

	decision, err := deps.VotingLoop.EvaluateOnce(ctx)
	if err != nil {
		return fmt.Errorf("app: evaluate decision: %w", err)
	}

	if !a.DryRun && decision.Action != domain.ActionHold {
		deps.Upkeep.EvaluateOnce(ctx)
	}

	return printDecision(decision)
}

// ExplainMode reads a decision from the history store by id and prints its
// reasoning, per spec.md §6.
func (a *App) ExplainMode(ctx context.Context, deps *Dependencies) error {
	if a.ExplainID == "" {
		return fmt.Errorf("app: explain mode requires --id")
	}

	rec, err := deps.History.RecordByID(ctx, a.ExplainID)
	if err != nil {
		return fmt.Errorf("app: load record %s: %w", a.ExplainID, err)
	}
	if rec.Kind != "decision" {
		return fmt.Errorf("app: record %s is a %q record, not a decision", a.ExplainID, rec.Kind)
	}

	var decision domain.Decision
	if err := json.Unmarshal(rec.PayloadJSON, &decision); err != nil {
		return fmt.Errorf("app: decode decision %s: %w", a.ExplainID, err)
	}

	return printDecision(decision)
}

// printDecision renders a Decision as indented JSON to stdout, including its
// full reasoning trail — the `once` and `explain` subcommands share this
// output shape so scripts can parse either the same way.
func printDecision(d domain.Decision) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("app: encode decision: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
