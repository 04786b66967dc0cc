// Package cli implements fitquestctl, the operator tool for the
// gamification engine.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

var ValidFormats = []string{"text", "json"}

// RootOptions holds global flags and the runtime factory.
type RootOptions struct {
	Format string
	Open   OpenFunc
}

func NewRootCommand(opts *RootOptions) *cobra.Command {
	if opts.Open == nil {
		opts.Open = OpenFromEnv
	}

	cmd := &cobra.Command{
		Use:   "fitquestctl",
		Short: "Operate the fitQuest gamification engine",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewCatalogCommand(opts))
	cmd.AddCommand(NewStreakCommand(opts))
	cmd.AddCommand(NewRecheckCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
}

// fail reports err on the command output and returns it with code.
func fail(f *OutputFormatter, code int, message string, err error) error {
	exitErr := WrapExitError(code, message, err)
	_ = f.Error(exitErr)
	return exitErr
}
