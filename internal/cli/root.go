// Package cli provides the command-line interface for the simulator.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"gpwsim/internal/config"
	"gpwsim/internal/csvdata"
	"gpwsim/internal/logging"
	"gpwsim/internal/market"
	"gpwsim/internal/store"
	"gpwsim/pkg/utils"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-16"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	ConfigDir string
	Logger    zerolog.Logger

	store store.DataStore
}

// Store opens the SQLite store on first use.
func (a *App) Store() (store.DataStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	path := a.Config.Store.Path
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	s, err := utils.RetryWithResult(context.Background(), storeRetry(), func() (*store.SQLiteStore, error) {
		return store.NewSQLiteStore(path)
	})
	if err != nil {
		return nil, err
	}
	a.Logger.Debug().Str("path", path).Msg("SQLite store initialized")
	a.store = s
	return s, nil
}

// storeRetry retries operations that hit a locked database file.
func storeRetry() utils.RetryConfig {
	cfg := utils.DefaultRetryConfig()
	cfg.Retryable = store.IsBusy
	return cfg
}

// CSV returns a loader over the configured data directory.
func (a *App) CSV() *csvdata.Loader {
	return csvdata.NewLoader(a.Config.Data.Dir, a.Config.Separator(), a.Config.Data.DateFormat)
}

// Provider resolves instruments by source: "store", "csv", or "auto"
// (imported quotes first, then the CSV directory).
func (a *App) Provider(source string) (market.Provider, error) {
	switch source {
	case "csv":
		return a.CSV(), nil
	case "store":
		return a.Store()
	case "", "auto":
		s, err := a.Store()
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Store unavailable, using CSV files only")
			return a.CSV(), nil
		}
		return market.NewChainProvider(s, a.CSV()), nil
	default:
		return nil, fmt.Errorf("unknown source %q (want auto, csv or store)", source)
	}
}

// Close releases the store.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// NewRootCmd creates the root command for the CLI. A --config flag reloads
// the configuration from that directory before any command runs; a nil cfg
// loads the default directory.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config:    cfg,
		ConfigDir: config.DefaultConfigDir(),
		Logger:    logger,
	}

	rootCmd := &cobra.Command{
		Use:   "gpwsim",
		Short: "GPW portfolio simulator",
		Long: `gpwsim replays daily closing prices of Warsaw Stock Exchange instruments
and simulates a portfolio one trading day at a time.

Buy shares on a session day, set stop-loss and take-profit levels, and
advance the calendar manually or automatically.

Use 'gpwsim help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if dir, _ := cmd.Flags().GetString("config"); dir != "" {
				loaded, err := config.Load(dir)
				if err != nil {
					return err
				}
				app.Config = loaded
				app.ConfigDir = dir
				app.Logger = logging.NewLoggerWithConfig(loaded.LogConfig())
			}
			if app.Config == nil {
				loaded, err := config.Load("")
				if err != nil {
					return err
				}
				app.Config = loaded
				app.Logger = logging.NewLoggerWithConfig(loaded.LogConfig())
			}

			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(logging.WithLogger(ctx, app.Logger))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/gpwsim)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addDataCommands(rootCmd, app)
	addSimulationCommands(rootCmd, app)
	addRunsCommands(rootCmd, app)
	addExportCommands(rootCmd, app)
	addHelpCommands(rootCmd, app)

	return rootCmd
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	return NewRootCmd(cfg, logger).ExecuteContext(ctx)
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("gpwsim v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": app.ConfigDir})
			} else {
				output.Println(app.ConfigDir)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Data")
	output.Printf("  Directory:     %s\n", cfg.Data.Dir)
	output.Printf("  Separator:     %q\n", cfg.Data.Separator)
	output.Printf("  Date format:   %s\n", cfg.Data.DateFormat)
	output.Println()

	output.Bold("Store")
	output.Printf("  Path:          %s\n", cfg.Store.Path)
	output.Println()

	output.Bold("Simulation")
	output.Printf("  Tick interval: %s\n", cfg.Simulation.TickInterval)
	output.Printf("  Max steps:     %d\n", cfg.Simulation.MaxSteps)
	output.Println()

	output.Bold("Logging")
	output.Printf("  Level:         %s\n", cfg.Log.Level)
	output.Printf("  Console:       %v\n", cfg.Log.Console)
	output.Printf("  File:          %v (%s)\n", cfg.Log.File, cfg.Log.FilePath)
	output.Println()

	output.Bold("UI")
	output.Printf("  Color:         %v\n", cfg.UI.ColorEnabled)
	output.Printf("  Chart:         %dx%d\n", cfg.UI.ChartWidth, cfg.UI.ChartHeight)
}

// newCmdOutput applies the UI colour setting to a command's output.
func newCmdOutput(cmd *cobra.Command, app *App) *Output {
	output := NewOutput(cmd)
	if !app.Config.UI.ColorEnabled {
		output.SetColor(false)
	}
	return output
}
