package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/planbuilder/internal/config"
	"github.com/roach88/planbuilder/internal/ir"
)

// RootOptions holds global flags for all commands. Config and Logger are
// resolved before any subcommand runs.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string
	Actor      string

	Config config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the planbuilder CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "planbuilder",
		Short:   "planbuilder - ordered plans and queues",
		Version: ir.ClientVersion,
		Long: `Build plans and queues of fragments.

Reorders are applied locally at once and written in one batch after a quiet
period. Deleting or adding a fragment runs a cascade that keeps the parent's
item count and thumbnail consistent.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.resolve(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ./"+config.DefaultFile+" if present)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Actor, "actor", "", "acting user id (overrides config)")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewMoveCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewScenarioCommand(opts))

	return cmd
}

// resolve loads the config file and applies flag overrides, then installs
// the logger. An explicit --config must exist; the default file is optional.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	var (
		cfg config.Config
		err error
	)
	if o.ConfigPath != "" {
		cfg, err = config.Load(o.ConfigPath)
	} else {
		cfg, err = config.LoadOptional(config.DefaultFile)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database = o.Database
	}
	if flags.Changed("actor") {
		cfg.Actor = o.Actor
	}
	if o.Verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	o.Config = cfg

	o.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(o.Logger)
	return nil
}

// collectionArgs splits args into the collection id and the remaining
// rest arguments. The collection may be omitted when the config names one.
func (o *RootOptions) collectionArgs(args []string, rest int) (string, []string, error) {
	if len(args) == rest+1 {
		return args[0], args[1:], nil
	}
	if o.Config.Collection == "" {
		return "", nil, NewExitError(ExitCommandError, "collection required: pass it or set collection in the config file")
	}
	return o.Config.Collection, args, nil
}

// formatter returns an OutputFormatter bound to the command's writers.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
