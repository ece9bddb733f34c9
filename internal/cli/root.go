// Package cli implements scimctl, the operator command line of the sync engine.
package cli

import (
	"context"
	"fmt"

	"github.com/prefeitura-rio/app-scim-sync/internal/app"
	"github.com/prefeitura-rio/app-scim-sync/internal/config"
	"github.com/prefeitura-rio/app-scim-sync/internal/logging"
	"github.com/spf13/cobra"
)

// Opener builds the engine a command runs against. The returned func releases it.
type Opener func(ctx context.Context) (*app.App, func(), error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Open    Opener
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command. open defaults to OpenFromEnv.
func NewRootCommand(open Opener) *cobra.Command {
	if open == nil {
		open = OpenFromEnv
	}
	opts := &RootOptions{Open: open}

	cmd := &cobra.Command{
		Use:   "scimctl",
		Short: "Operate the SCIM sync engine",
		Long: `scimctl runs full sweeps and queue drains, inspects the job queue and
imports directory seeds. It reads the same environment variables as the api.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewJobsCommand(opts))
	cmd.AddCommand(NewDirectoryCommand(opts))

	return cmd
}

// OpenFromEnv loads the configuration, connects to the configured backends and builds the engine
func OpenFromEnv(ctx context.Context) (*app.App, func(), error) {
	if err := logging.InitLogger(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := config.LoadConfig(); err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg := config.AppConfig

	if cfg.JobStoreBackend == config.BackendMongo || cfg.DirectoryBackend == config.BackendMongo {
		if err := config.InitMongoDB(ctx); err != nil {
			return nil, nil, err
		}
	}
	if err := config.InitRedis(ctx); err != nil {
		config.CloseMongoDB(context.Background())
		return nil, nil, err
	}

	engine, err := app.New(ctx, cfg, app.Deps{Mongo: config.MongoDB, Redis: config.Redis}, logging.Logger)
	if err != nil {
		config.CloseMongoDB(context.Background())
		return nil, nil, err
	}

	return engine, func() {
		_ = engine.Close()
		if config.Redis != nil {
			_ = config.Redis.Close()
		}
		config.CloseMongoDB(context.Background())
		logging.Logger.Sync()
	}, nil
}

// withApp opens the engine for the duration of fn
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, closeFn, err := opts.Open(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open sync engine", err)
	}
	defer closeFn()
	return fn(ctx, a)
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
