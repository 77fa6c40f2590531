// greplay replays stored packet captures out one or two network
// interfaces, reproducing original capture timing or a controlled
// rate, for exercising firewalls, IDS/IPS, and switches under
// realistic traffic.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/greplay/greplay/internal/config"
	"github.com/greplay/greplay/internal/runctl"
	appversion "github.com/greplay/greplay/internal/version"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "greplay",
		Short: "Replay stored packet captures onto live network interfaces",
		// Silence cobra's built-in usage/error printing so we control it.
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(runCmd())
	cmd.AddCommand(versionCmd())

	return cmd
}

func runCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a replay from a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runReplay(configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to configuration file (YAML); required")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runReplay(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config from %s: %w", configPath, err)
	}

	logger := newLogger(cfg.Log)

	logger.Info("greplay starting",
		slog.String("version", appversion.Version),
		slog.String("iface_a", cfg.Replay.IfaceA),
		slog.String("iface_b", cfg.Replay.IfaceB),
		slog.Int("sources", len(cfg.Sources)),
	)

	if err := runctl.Run(cfg, logger); err != nil {
		return fmt.Errorf("run replay: %w", err)
	}

	logger.Info("greplay stopped")
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print greplay build information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(appversion.Full("greplay"))
		},
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.Level)}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
