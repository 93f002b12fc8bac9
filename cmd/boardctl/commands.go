package main

import (
	"log"
	"time"

	"github.com/npezzotti/earth-board/internal/api"
	"github.com/npezzotti/earth-board/internal/config"
	"github.com/npezzotti/earth-board/internal/repair"
	"github.com/spf13/cobra"
)

const (
	defaultDSN        = "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"
	defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="
)

func buildRootCmd(logger *log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "boardctl",
		Short:        "Operate the daily board",
		SilenceUsage: true,
	}
	cmd.AddCommand(
		buildRolloverCmd(logger),
		buildTokenCmd(),
		buildRepairCmd(logger),
		buildMigrateCmd(logger),
	)
	return cmd
}

func buildRolloverCmd(logger *log.Logger) *cobra.Command {
	var (
		baseURL    string
		signingKey string
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "rollover",
		Short: "Archive yesterday's canvas and open today's",
		Long: `Calls the server's rollover endpoint with a short-lived service token.

Intended for an external scheduler when the server runs with -scheduler=false.
A failed rollover is not retried.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollover(cmd, logger, baseURL, signingKey, timeout)
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", config.Getenv("BOARD_URL", "http://localhost:8000"), "Base URL of the server")
	cmd.Flags().StringVar(&signingKey, "signing-key", config.Getenv("BOARD_SIGNING_KEY", defaultSigningKey), "Base64 encoded signing key")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	return cmd
}

func buildTokenCmd() *cobra.Command {
	var (
		signingKey string
		ttl        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a service token for administrative endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd, signingKey, ttl)
		},
	}
	cmd.Flags().StringVar(&signingKey, "signing-key", config.Getenv("BOARD_SIGNING_KEY", defaultSigningKey), "Base64 encoded signing key")
	cmd.Flags().DurationVar(&ttl, "ttl", api.DefaultServiceTokenTTL, "Token lifetime")
	return cmd
}

func buildRepairCmd(logger *log.Logger) *cobra.Command {
	var (
		dsn    string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Repair canvas data",
		Long: `Repair canvas data that drifted from its invariants.

  counts      recompute object and participant counters
  objects     move objects onto the canvas of the day they were created
  duplicates  archive extra active canvases`,
	}
	cmd.PersistentFlags().StringVar(&dsn, "dsn", config.Getenv("BOARD_DSN", defaultDSN), "Database connection string")
	cmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Report changes without writing them")

	countsCmd := &cobra.Command{
		Use:   "counts",
		Short: "Recompute object and participant counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepairCounts(cmd, logger, dsn, dryRun)
		},
	}

	objectsCmd := &cobra.Command{
		Use:   "objects",
		Short: "Move objects filed under the wrong day's canvas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepairObjects(cmd, logger, dsn, dryRun)
		},
	}

	var keep string
	duplicatesCmd := &cobra.Command{
		Use:   "duplicates",
		Short: "Archive stale and duplicate active canvases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := repair.ParseKeepPolicy(keep)
			if err != nil {
				return err
			}
			return runRepairDuplicates(cmd, logger, dsn, dryRun, policy)
		},
	}
	duplicatesCmd.Flags().StringVar(&keep, "keep", string(repair.KeepLatest), "Which of today's canvases survives (latest, earliest)")

	cmd.AddCommand(countsCmd, objectsCmd, duplicatesCmd)
	return cmd
}

func buildMigrateCmd(logger *log.Logger) *cobra.Command {
	var (
		dsn string
		dir string
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(logger, dsn, dir)
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", config.Getenv("BOARD_DSN", defaultDSN), "Database connection string")
	cmd.Flags().StringVar(&dir, "dir", config.Getenv("BOARD_MIGRATIONS", "db/migrations"), "Migrations directory")
	return cmd
}
