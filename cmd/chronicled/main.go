// chronicled is the Claude Code observability daemon: it captures hook
// events into a local SQLite database and streams them to dashboards
// over WebSocket and SSE.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/memyselfandm/chronicle-sub000/internal/cli"
	"github.com/memyselfandm/chronicle-sub000/internal/config"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "chronicled",
		Short:         "Local observability daemon for Claude Code sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.chronicle/config.yaml)")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newInitCmd(&configPath))
	root.AddCommand(newCleanupCmd(&configPath))
	root.AddCommand(newVersionCmd())

	// Bare `chronicled` serves, matching how hook setups invoke it.
	root.RunE = newServeCmd(&configPath).RunE
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	var addr, dbPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the capture daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return cli.Serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&dbPath, "db", "", "database path (overrides config)")
	return cmd
}

func newInitCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the config file with a generated admin key",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, created, err := cli.InitConfig(*configPath)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "admin key generated: %s\n", key)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "config already initialized; keeping existing admin key")
			}
			return nil
		},
	}
}

func newCleanupCmd(configPath *string) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove terminated sessions older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if days == 0 {
				days = cfg.RetentionDays
			}
			n, err := cli.RunCleanup(cfg.DBPath, days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d sessions older than %d days\n", n, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "retention window in days (default from config)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the chronicled version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chronicled %s\n", version)
		},
	}
}
