// Package cli provides the Cobra CLI commands for flatstore.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tmeurs/flatstore/internal/config"
	"github.com/tmeurs/flatstore/internal/lock"
	"github.com/tmeurs/flatstore/internal/logging"
	"github.com/tmeurs/flatstore/internal/store"
)

// Version information set at build time
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Global flags
var (
	envFile string
	dataDir string
	output  string
	verbose int
)

// Shared by every command of one invocation, set up in PersistentPreRunE.
var (
	docs  *store.Store
	locks *lock.Manager
	conf  *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "flatstore",
	Short: "Inspect and edit locked JSON documents",
	Long: `flatstore - locked, atomic access to flat-file JSON documents

Reads and writes the documents shared by the school management server
(class rosters, planning configuration, supervisor mappings) with the same
locking as the server: a per-file in-process lock, an OS advisory lock on
<file>.lock, and temp-file-plus-rename writes.

Relative file names are resolved against the data directory
(--data-dir or FLATSTORE_DATA_DIR).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, warnings, err := config.LoadConfig(envFile)
		if err != nil {
			return err
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		// verbose is a count: 0 = default, 1 = -v, 2+ = -vv
		if err := logging.Init(logging.Config{
			LogFile:       cfg.LogFile,
			Verbosity:     verbose,
			ConsoleOutput: true,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to initialize logging: %v\n", err)
		}
		log := logging.Get()
		for _, w := range warnings {
			log.Warn().Msg(w)
		}

		conf = cfg
		docs, locks = newStore(cfg, log)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		// Close the logger to ensure all logs are flushed
		logging.Close()
	},
}

// newStore builds the document store described by cfg and its lock manager.
func newStore(cfg *config.Config, log *logging.Logger) (*store.Store, *lock.Manager) {
	mgr := lock.NewManager(
		lock.WithLogger(log.Component("lock")),
		lock.WithPollInterval(cfg.PollInterval),
	)
	s := store.New(
		store.WithManager(mgr),
		store.WithLogger(log.Component("store")),
		store.WithBaseDir(cfg.DataDir),
		store.WithReadTimeout(cfg.ReadTimeout),
		store.WithWriteTimeout(cfg.WriteTimeout),
		store.WithFileMode(cfg.FileMode),
	)
	return s, mgr
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logging.Get().Error().Err(err).Msg("Command failed")
		if IsJSONOutput() {
			PrintJSONError(err)
		} else {
			fmt.Fprintln(os.Stderr, Styles.Error.Render("Error: "+err.Error()))
		}
		os.Exit(exitCode(err))
	}
}

// exitCode lets scripts tell a busy document (retry later) from a real failure.
func exitCode(err error) int {
	if errors.Is(err, lock.ErrLockTimeout) {
		return 75 // EX_TEMPFAIL
	}
	return 1
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a .env file (default: ./.env if present)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory relative document names resolve against")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "Verbose logging (-v for info, -vv for debug)")
}

// SetVersion sets the version information for the version command
func SetVersion(version, commit, date string) {
	Version = version
	Commit = commit
	Date = date
}
