package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const commandTimeout = 2 * time.Minute

// withRuntime opens the runtime, runs fn and closes it.
func withRuntime(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, rt *Runtime, f *OutputFormatter) error) error {
	f := formatter(opts, cmd)
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	rt, err := opts.Open(ctx)
	if err != nil {
		return fail(f, ExitCommandError, "failed to open store", err)
	}
	defer rt.Close()
	return fn(ctx, rt, f)
}

// NewRecheckCommand re-evaluates every achievement for one user against the
// current stats and fans out any new unlocks.
func NewRecheckCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recheck <user-id>",
		Short: "Re-evaluate achievements for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(opts, cmd, func(ctx context.Context, rt *Runtime, f *OutputFormatter) error {
				userID, err := uuid.Parse(args[0])
				if err != nil {
					return fail(f, ExitCommandError, "invalid user id", err)
				}

				out, err := rt.Game.Recheck(ctx, userID)
				if err != nil {
					return fail(f, ExitFailure, "recheck failed", err)
				}
				return f.Success(out, func(w io.Writer) {
					fmt.Fprintf(w, "user %s: %d newly unlocked, current streak %d\n", userID, len(out.Unlocked), out.Stats.CurrentStreak)
					for _, u := range out.Unlocked {
						fmt.Fprintf(w, "  %s (%s)\n", u.ID, u.Rarity)
					}
					if out.NotificationFailures > 0 {
						fmt.Fprintf(w, "  %d notification(s) pending retry\n", out.NotificationFailures)
					}
				})
			})
		},
	}
}

type sweepOutput struct {
	Delivered int `json:"delivered"`
}

func NewSweepCommand(opts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Retry notifications for unlocks and milestones that were never marked sent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(opts, cmd, func(ctx context.Context, rt *Runtime, f *OutputFormatter) error {
				if limit <= 0 {
					limit = rt.Config.NotifySweepBatch
				}
				n, err := rt.Fanout.RetryPending(ctx, limit)
				if err != nil {
					return fail(f, ExitFailure, "sweep failed", err)
				}
				return f.Success(sweepOutput{Delivered: n}, func(w io.Writer) {
					fmt.Fprintf(w, "%d notification(s) delivered\n", n)
				})
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum pending notifications to retry (default NOTIFY_SWEEP_BATCH)")
	return cmd
}

type migrator interface {
	Migrate(ctx context.Context) error
}

func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the gamification schema to the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(opts, cmd, func(ctx context.Context, rt *Runtime, f *OutputFormatter) error {
				m, ok := rt.Store.(migrator)
				if !ok {
					return fail(f, ExitCommandError, "migrate requires the postgres backend", nil)
				}
				if err := m.Migrate(ctx); err != nil {
					return fail(f, ExitFailure, "migration failed", err)
				}
				return f.Success("schema applied", nil)
			})
		},
	}
}
