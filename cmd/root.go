package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brensch/sitereports/internal/config"
	"github.com/brensch/sitereports/internal/db"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver
	"github.com/spf13/cobra"
)

// logFileName receives logs while the progress view owns the terminal.
const logFileName = "sitereports.log"

var (
	cfgFile   string
	logFormat string
	logLevel  string
	logOutput string

	// Global instances populated in PersistentPreRunE
	rootLogger *slog.Logger
	dbConn     *sql.DB
	appConfig  *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sitereports",
	Short: "Retrieve site report bundles and mail each report to its recipients.",
	Long: `sitereports downloads report bundles from the CRM portal, extracts the most
recent one and mails every workbook it contains, in throttled batches.
Every download and send is recorded in a DuckDB ledger.

The primary command is 'run', which performs one complete cycle. Schedule it
with cron or a systemd timer. Other commands preview a bundle, show the
ledger, export it, or edit the download history.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// --- 1. Load and validate configuration ---
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if err := cfg.EnsureDirectories(); err != nil {
			return err
		}
		appConfig = cfg

		// --- 2. Initialize Logger ---
		var level slog.Level
		switch strings.ToLower(logLevel) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		output := strings.ToLower(logOutput)
		if tui, _ := cmd.Flags().GetBool("tui"); tui && (output == "" || output == "stderr" || output == "stdout") {
			logOutput = filepath.Join(cfg.Paths.DownloadDir, logFileName)
			output = logOutput
		}
		var logWriter io.Writer = os.Stderr
		if output != "" && output != "stderr" {
			if output == "stdout" {
				logWriter = os.Stdout
			} else {
				f, err := os.OpenFile(logOutput, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
				if err != nil {
					return fmt.Errorf("failed to open log file %s: %w", logOutput, err)
				}
				logWriter = f
			}
		}

		opts := &slog.HandlerOptions{Level: level}
		var handler slog.Handler
		if logFormat == "json" {
			handler = slog.NewJSONHandler(logWriter, opts)
		} else {
			handler = slog.NewTextHandler(logWriter, opts)
		}
		rootLogger = slog.New(handler)
		slog.SetDefault(rootLogger)
		rootLogger.Debug("Logger initialized", "level", level.String(), "format", logFormat, "output", logOutput)
		rootLogger.Debug("Configuration loaded", slog.String("download_dir", cfg.Paths.DownloadDir), slog.Int("recipients", len(cfg.Delivery.Recipients)))

		// --- 3. Initialize DuckDB Connection & Schema ---
		dbConn, err = sql.Open("duckdb", cfg.Paths.DbPath)
		if err != nil {
			return fmt.Errorf("failed to open duckdb database (%s): %w", cfg.Paths.DbPath, err)
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err = dbConn.PingContext(pingCtx); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to ping duckdb database (%s): %w", cfg.Paths.DbPath, err)
		}
		if err := db.InitializeSchema(dbConn); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to initialize database schema: %w", err)
		}
		rootLogger.Debug("Delivery ledger ready.", slog.String("path", cfg.Paths.DbPath))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if dbConn != nil {
			if err := dbConn.Close(); err != nil {
				rootLogger.Error("Failed to close DuckDB connection cleanly", "error", err)
			}
		}
		return nil
	},
}

// Execute adds all child commands to the root command and runs it.
// This is called by main.main(). A failed command exits with status 1.
func Execute() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(saveCmd)

	err := rootCmd.Execute()
	if err != nil {
		// PersistentPostRunE does not run after a failed RunE.
		if dbConn != nil {
			dbConn.Close()
		}
		if rootLogger != nil {
			rootLogger.Error("Command execution failed", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "Command execution failed: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./sitereports.toml when present)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log output format (text or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "stderr", "Log output destination (stderr, stdout, or file path)")

	rootCmd.Version = "1.0.0"
}

func getLogger() *slog.Logger {
	if rootLogger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return rootLogger
}

func getDB() *sql.DB {
	return dbConn
}

func getConfig() *config.Config {
	return appConfig
}
