package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Hexploration-Inc/orai/internal/config"
	"github.com/Hexploration-Inc/orai/internal/db"
	"github.com/Hexploration-Inc/orai/internal/display"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	configPath string
	dbPath     string
	jsonOutput bool
	quietFlag  bool

	cfg    config.Config
	logger *slog.Logger
	store  *db.DB
)

var rootCmd = &cobra.Command{
	Use:           "orai",
	Short:         "orai - personal mail server backed by Gmail",
	Long:          "orai syncs a Gmail mailbox into a local cache and serves it over HTTP.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.DatabasePath = dbPath
		}
		logger = newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
		slog.SetDefault(logger)

		// serve owns its resources and lifecycle.
		if cmd.Name() == "serve" {
			return nil
		}
		store, err = db.Open(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			store.Close()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "orai version %s\n", Version)
	},
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Optional YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides DATABASE_PATH)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		display.ErrorMsg(os.Stderr, "%v", err)
		stop()
		os.Exit(1)
	}
}
