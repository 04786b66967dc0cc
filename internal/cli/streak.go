package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"fitQuestAPI/internal/streak"
)

const dateLayout = "2006-01-02"

type streakOutput struct {
	Policy    string `json:"policy"`
	Reference string `json:"reference"`
	streak.Result
}

// NewStreakCommand runs a streak policy over dates given on the command line.
// It does not touch the store.
func NewStreakCommand(opts *RootOptions) *cobra.Command {
	var policyName, ref string

	cmd := &cobra.Command{
		Use:   "streak DATE...",
		Short: "Compute a streak for a list of workout dates (YYYY-MM-DD)",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(opts, cmd)

			policy, err := streak.ByName(policyName)
			if err != nil {
				return fail(f, ExitCommandError, "invalid policy", err)
			}

			reference := time.Now().UTC()
			if ref != "" {
				if reference, err = time.Parse(dateLayout, ref); err != nil {
					return fail(f, ExitCommandError, "invalid --ref", err)
				}
			}

			dates := make([]time.Time, 0, len(args))
			for _, a := range args {
				d, err := time.Parse(dateLayout, a)
				if err != nil {
					return fail(f, ExitCommandError, "invalid date", err)
				}
				dates = append(dates, d)
			}

			out := streakOutput{
				Policy:    policy.Name(),
				Reference: reference.Format(dateLayout),
				Result:    streak.Compute(policy, dates, reference),
			}
			return f.Success(out, func(w io.Writer) {
				fmt.Fprintf(w, "policy=%s ref=%s current=%d longest=%d\n", out.Policy, out.Reference, out.Current, out.Longest)
			})
		},
	}

	cmd.Flags().StringVar(&policyName, "policy", streak.PolicyStrict, "streak policy (strict|rest-tolerant)")
	cmd.Flags().StringVar(&ref, "ref", "", "reference date, defaults to today (UTC)")
	return cmd
}
