package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/prefeitura-rio/app-scim-sync/internal/app"
	"github.com/prefeitura-rio/app-scim-sync/internal/jobstore"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
	"github.com/spf13/cobra"
)

// JobsOptions holds flags for the jobs command group.
type JobsOptions struct {
	*RootOptions
	Limit int
}

// NewJobsCommand creates the jobs command group.
func NewJobsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JobsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and revive queued jobs",
	}

	abandoned := &cobra.Command{
		Use:   "abandoned",
		Short: "List jobs past the retry ceiling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Limit < 1 {
				return WrapExitError(ExitCommandError, "--limit must be positive", nil)
			}
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app.App) error {
				jobs, err := a.Store.ListAbandoned(ctx, opts.Limit)
				if err != nil {
					return err
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).Success(jobs, func(w io.Writer) {
					writeJobTable(w, jobs)
				})
			})
		},
	}
	abandoned.Flags().IntVarP(&opts.Limit, "limit", "n", 100, "maximum number of jobs to list")
	cmd.AddCommand(abandoned)

	cmd.AddCommand(&cobra.Command{
		Use:   "revive <job-id>",
		Short: "Reset an abandoned job so the next drain retries it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app.App) error {
				job, err := a.Store.Revive(ctx, args[0])
				switch {
				case errors.Is(err, models.ErrJobNotFound):
					return WrapExitError(ExitCommandError, fmt.Sprintf("job %s", args[0]), err)
				case errors.Is(err, jobstore.ErrDuplicateDue):
					return WrapExitError(ExitConflict, fmt.Sprintf("job %s", args[0]), err)
				case err != nil:
					return err
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).Success(job, func(w io.Writer) {
					fmt.Fprintf(w, "revived %s (%s)\n", job.ID, job.Action)
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Count due and abandoned jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, a *app.App) error {
				stats, err := a.Store.Stats(ctx)
				if err != nil {
					return err
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).Success(stats, func(w io.Writer) {
					fmt.Fprintf(w, "due=%d abandoned=%d\n", stats.Due, stats.Abandoned)
				})
			})
		},
	})

	return cmd
}

func writeJobTable(w io.Writer, jobs []*models.SyncJob) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "no abandoned jobs")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tACTION\tREALM\tUSER\tGROUP\tROLE\tRETRIES\tCREATED")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			j.ID, j.Action, j.RealmID, dash(j.UserID), dash(j.GroupID), dash(j.RoleID),
			j.RetryCount, j.CreatedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
