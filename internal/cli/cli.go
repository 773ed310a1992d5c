// Package cli is the playoutctl command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Nixie-Tech-LLC/playout/internal/app"
	"github.com/Nixie-Tech-LLC/playout/internal/http/api/endpoints"
	"github.com/Nixie-Tech-LLC/playout/internal/model"
	"github.com/Nixie-Tech-LLC/playout/internal/scheduler"
)

// Env supplies the engine to commands. main wires it to the real
// configuration; tests wire it to an in-memory store.
type Env struct {
	Open    func(ctx context.Context) (*app.App, error)
	Migrate func(ctx context.Context) error
}

func BuildCLI(env Env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "playoutctl",
		Short:         "Build and maintain playout schedules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		buildMigrateCommand(env),
		buildBuildCommand(env),
		buildAssignPoolCommand(env),
		buildReflowCommand(env),
		buildExportCommand(env),
		buildHoldCommand(env),
		buildReleaseHoldCommand(env),
	)
	return rootCmd
}

// withApp opens the engine for one command and closes it afterwards.
func withApp(env Env, fn func(ctx context.Context, a *app.App, out io.Writer, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := env.Open(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a, cmd.OutOrStdout(), args)
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func buildMigrateCommand(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := env.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func buildBuildCommand(env Env) *cobra.Command {
	var (
		channel string
		start   string
		hours   float64
		days    int
		pattern string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Fill a schedule for a channel",
		Args:  cobra.NoArgs,
		RunE: withApp(env, func(ctx context.Context, a *app.App, out io.Writer, _ []string) error {
			startAt, err := time.Parse(time.RFC3339, start)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			target := time.Duration(hours * float64(time.Hour))
			if days > 0 {
				target = time.Duration(days) * 24 * time.Hour
			}

			req := scheduler.BuildRequest{Channel: channel, StartAt: startAt, Target: target}
			if pattern != "" {
				if req.Pattern, err = scheduler.ParsePattern(pattern); err != nil {
					return err
				}
			}

			res, err := a.Builder.BuildSchedule(ctx, req)
			if err != nil {
				return err
			}
			if err := printJSON(out, res); err != nil {
				return err
			}
			if res.Status == model.ScheduleFailed {
				return fmt.Errorf("build %s failed: %w", res.ScheduleID, res.Err)
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&channel, "channel", "", "channel to build for")
	cmd.Flags().StringVar(&start, "start", "", "schedule start (RFC 3339)")
	cmd.Flags().Float64Var(&hours, "hours", 24, "target length in hours")
	cmd.Flags().IntVar(&days, "days", 0, "target length in days, overrides --hours")
	cmd.Flags().StringVar(&pattern, "pattern", "", "rotation pattern, e.g. short,medium,pool:2,long")
	_ = cmd.MarkFlagRequired("channel")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func buildAssignPoolCommand(env Env) *cobra.Command {
	var (
		pool      int
		startDate string
		numDays   int
		perDay    int
	)

	cmd := &cobra.Command{
		Use:   "assign-pool",
		Short: "Assign rotation pool members to days",
		Args:  cobra.NoArgs,
		RunE: withApp(env, func(ctx context.Context, a *app.App, out io.Writer, _ []string) error {
			start, err := endpoints.ParseDay(startDate)
			if err != nil {
				return fmt.Errorf("--start-date: %w", err)
			}
			days, err := a.Assigner.Assign(ctx, pool, start, numDays, perDay)
			if err != nil {
				return err
			}
			return printJSON(out, days)
		}),
	}

	cmd.Flags().IntVar(&pool, "pool", 0, "rotation pool id")
	cmd.Flags().StringVar(&startDate, "start-date", "", "first day (YYYY-MM-DD)")
	cmd.Flags().IntVar(&numDays, "days", 7, "number of days")
	cmd.Flags().IntVar(&perDay, "per-day", 1, "members per day")
	_ = cmd.MarkFlagRequired("pool")
	_ = cmd.MarkFlagRequired("start-date")
	return cmd
}

func buildReflowCommand(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "reflow <schedule-id>",
		Short: "Recompute item offsets from current asset durations",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(env, func(ctx context.Context, a *app.App, out io.Writer, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid schedule id: %w", err)
			}
			sc, err := a.Builder.Reflow(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(out, sc)
		}),
	}
}

func buildExportCommand(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "export <schedule-id>",
		Short: "Export a schedule's as-run plan",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(env, func(ctx context.Context, a *app.App, out io.Writer, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid schedule id: %w", err)
			}
			location, err := a.Exporter.Export(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, location)
			return nil
		}),
	}
}

func buildHoldCommand(env Env) *cobra.Command {
	var (
		asset  int
		reason string
		until  string
	)

	cmd := &cobra.Command{
		Use:   "hold",
		Short: "Block an asset from selection",
		Args:  cobra.NoArgs,
		RunE: withApp(env, func(ctx context.Context, a *app.App, out io.Writer, _ []string) error {
			var untilAt *time.Time
			if until != "" {
				t, err := time.Parse(time.RFC3339, until)
				if err != nil {
					return fmt.Errorf("--until: %w", err)
				}
				untilAt = &t
			}
			hold, err := a.Store.PlaceHold(ctx, asset, reason, untilAt)
			if err != nil {
				return err
			}
			return printJSON(out, hold)
		}),
	}

	cmd.Flags().IntVar(&asset, "asset", 0, "asset id")
	cmd.Flags().StringVar(&reason, "reason", "", "why the asset is held")
	cmd.Flags().StringVar(&until, "until", "", "hold expiry (RFC 3339), open-ended when empty")
	_ = cmd.MarkFlagRequired("asset")
	return cmd
}

func buildReleaseHoldCommand(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "release-hold <hold-id>",
		Short: "Release a scheduling hold",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(env, func(ctx context.Context, a *app.App, out io.Writer, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid hold id: %w", err)
			}
			if err := a.Store.ReleaseHold(ctx, id, a.Clock.Now()); err != nil {
				return err
			}
			fmt.Fprintf(out, "hold %d released\n", id)
			return nil
		}),
	}
}
