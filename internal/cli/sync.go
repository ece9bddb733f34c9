package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prefeitura-rio/app-scim-sync/internal/app"
	"github.com/prefeitura-rio/app-scim-sync/internal/models"
	"github.com/prefeitura-rio/app-scim-sync/internal/services"
	"github.com/spf13/cobra"
)

// RunReport is the result of a sweep or drain
type RunReport struct {
	Mode     string              `json:"mode"`
	RealmID  string              `json:"realm_id,omitempty"`
	Counters models.SyncCounters `json:"counters"`
	Duration string              `json:"duration"`
}

// NewSyncCommand creates the sync command group.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a full sweep or drain the job queue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "full <realm>",
		Short: "Provision every eligible user of a realm",
		Long: `Sweep the realm's enabled users that are linked to a SCIM configuration
and create or update their remote records. Membership changes are queued and
applied by the next drain.

Example:
  scimctl sync full acme
  scimctl sync full acme --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			realmID := args[0]
			return runAndReport(cmd, opts, services.ModeFullSync, realmID, func(ctx context.Context, a *app.App) (models.SyncCounters, error) {
				return a.Sync.RunFullSync(ctx, realmID)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "drain",
		Short: "Execute the due jobs, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAndReport(cmd, opts, services.ModeDrain, "", func(ctx context.Context, a *app.App) (models.SyncCounters, error) {
				return a.Sync.RunDrain(ctx)
			})
		},
	})

	return cmd
}

func runAndReport(cmd *cobra.Command, opts *RootOptions, mode, realmID string, run func(ctx context.Context, a *app.App) (models.SyncCounters, error)) error {
	return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
		start := time.Now()
		counters, err := run(ctx, a)
		switch {
		case errors.Is(err, services.ErrRunInProgress):
			return WrapExitError(ExitConflict, "run skipped", err)
		case errors.Is(err, models.ErrRealmNotFound):
			return WrapExitError(ExitCommandError, fmt.Sprintf("realm %q", realmID), err)
		case err != nil:
			return WrapExitError(ExitFailure, mode+" failed", err)
		}

		report := RunReport{Mode: mode, RealmID: realmID, Counters: counters, Duration: time.Since(start).Round(time.Millisecond).String()}
		if err := newFormatter(opts, cmd.OutOrStdout()).Success(report, func(w io.Writer) {
			fmt.Fprintf(w, "%s finished in %s: added=%d updated=%d removed=%d failed=%d\n",
				mode, report.Duration, counters.Added, counters.Updated, counters.Removed, counters.Failed)
		}); err != nil {
			return err
		}

		if counters.Failed > 0 {
			return WrapExitError(ExitFailure, fmt.Sprintf("%d job(s) failed", counters.Failed), nil)
		}
		return nil
	})
}
