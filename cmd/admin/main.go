package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tendant/simple-music/internal/logging"
	"github.com/tendant/simple-music/pkg/simplemusic/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand
type globalFlags struct {
	configFile string
	envPrefix  string
	logLevel   string
	jsonOutput bool
}

func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "admin",
		Short: "Simple Music Admin CLI",
		Long: `Simple Music Admin CLI

Maintenance commands that talk to the database and blob store directly.
Configuration is read the same way as the server: an optional config file
followed by environment variables (DATABASE_URL, STORAGE_URL, ...).

A .env file in the current directory is loaded first when present.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "config file (optional)")
	rootCmd.PersistentFlags().StringVar(&flags.envPrefix, "env-prefix", "", "prefix for environment variables")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flags.jsonOutput, "json", false, "output as JSON")

	rootCmd.AddCommand(NewReconcileCommand(flags))
	rootCmd.AddCommand(NewRecentCommand(flags))
	rootCmd.AddCommand(NewStripSongCommand(flags))
	rootCmd.AddCommand(NewMigrateCommand(flags))

	return rootCmd
}

func (f *globalFlags) logger() *slog.Logger {
	return logging.Setup(f.logLevel, "text", os.Stderr)
}

func (f *globalFlags) load(extra ...config.Option) (*config.ServerConfig, error) {
	var opts []config.Option
	if f.configFile != "" {
		opts = append(opts, config.WithFile(f.configFile))
	}
	opts = append(opts, config.WithEnv(f.envPrefix))
	opts = append(opts, extra...)

	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
