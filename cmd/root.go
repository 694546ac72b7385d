// Package cmd holds the arc CLI.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/arclabs/arc/internal/config"
)

// Version is set at build time via -ldflags "-X github.com/arclabs/arc/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "arc",
	Short: "Arc — a personal agent in your terminal",
	Long: "Arc is a local-first agent runtime: an interactive chat session backed by " +
		"skills, background workers, scheduled jobs, and capability-based permissions.",
	Run: func(cmd *cobra.Command, args []string) {
		runChat(false)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.arc/config.toml, then ./arc.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(workersCmd())
	rootCmd.AddCommand(logsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("arc %s\n", Version)
		},
	}
}

// setupLogging writes structured logs to ~/.arc/logs/arc_YYYYMMDD.log
// so the terminal stays readable; --verbose mirrors debug output to
// stderr as well.
func setupLogging() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	logDir := filepath.Join(config.Dir(), "logs")
	if err := os.MkdirAll(logDir, 0o755); err == nil {
		path := filepath.Join(logDir, "arc_"+time.Now().Format("20060102")+".log")
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			if verbose {
				w = io.MultiWriter(f, os.Stderr)
			} else {
				w = f
			}
		}
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
