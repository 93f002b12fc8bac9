package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/npezzotti/earth-board/internal/api"
	"github.com/npezzotti/earth-board/internal/config"
	"github.com/npezzotti/earth-board/internal/database"
	"github.com/npezzotti/earth-board/internal/repair"
	"github.com/npezzotti/earth-board/internal/types"
	"github.com/spf13/cobra"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runRollover(cmd *cobra.Command, logger *log.Logger, baseURL, signingKey string, timeout time.Duration) error {
	key, err := config.DecodeSigningKey(signingKey)
	if err != nil {
		return fmt.Errorf("decode signing key: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	res, err := triggerRollover(ctx, http.DefaultClient, baseURL, key)
	if err != nil {
		return err
	}

	logger.Println(res.Message)
	return printJSON(cmd.OutOrStdout(), res)
}

// triggerRollover calls the rollover endpoint once. A non-2xx answer is
// returned as an error carrying the server's message.
func triggerRollover(ctx context.Context, client *http.Client, baseURL string, key []byte) (types.RolloverResponse, error) {
	var res types.RolloverResponse

	token, err := api.NewServiceToken(key, api.DefaultServiceTokenTTL)
	if err != nil {
		return res, fmt.Errorf("service token: %w", err)
	}

	url := strings.TrimRight(baseURL, "/") + "/api/admin/rollover"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return res, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return res, fmt.Errorf("rollover request: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil && resp.StatusCode < 300 {
		return res, fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= 300 || !res.Success {
		msg := res.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return res, fmt.Errorf("rollover failed (%d): %s", resp.StatusCode, msg)
	}

	return res, nil
}

func runToken(cmd *cobra.Command, signingKey string, ttl time.Duration) error {
	key, err := config.DecodeSigningKey(signingKey)
	if err != nil {
		return fmt.Errorf("decode signing key: %w", err)
	}

	token, err := api.NewServiceToken(key, ttl)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}

func openRepairer(logger *log.Logger, dsn string, dryRun bool) (*repair.Repairer, func(), error) {
	db, err := database.NewPgBoardRepository(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("db open: %w", err)
	}

	r := repair.NewRepairer(logger, db)
	r.DryRun = dryRun
	if dryRun {
		logger.Println("dry run, no changes will be written")
	}

	return r, func() {
		if err := db.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}, nil
}

func runRepairCounts(cmd *cobra.Command, logger *log.Logger, dsn string, dryRun bool) error {
	r, closeDB, err := openRepairer(logger, dsn, dryRun)
	if err != nil {
		return err
	}
	defer closeDB()

	fixes, err := r.ReconcileCounts(cmd.Context())
	if err != nil {
		return err
	}

	logger.Printf("%d canvases fixed", len(fixes))
	return printJSON(cmd.OutOrStdout(), fixes)
}

func runRepairObjects(cmd *cobra.Command, logger *log.Logger, dsn string, dryRun bool) error {
	r, closeDB, err := openRepairer(logger, dsn, dryRun)
	if err != nil {
		return err
	}
	defer closeDB()

	report, err := r.RelocateObjects(cmd.Context())
	if err != nil {
		return err
	}

	logger.Printf("%d moved, %d without a canvas, %d orphaned",
		len(report.Moved), len(report.Unmatched), len(report.Orphaned))
	if len(report.Moved) > 0 && !dryRun {
		logger.Println("counters may be stale, run `boardctl repair counts`")
	}
	return printJSON(cmd.OutOrStdout(), report)
}

func runRepairDuplicates(cmd *cobra.Command, logger *log.Logger, dsn string, dryRun bool, keep repair.KeepPolicy) error {
	r, closeDB, err := openRepairer(logger, dsn, dryRun)
	if err != nil {
		return err
	}
	defer closeDB()

	report, err := r.ArchiveDuplicates(cmd.Context(), keep)
	if err != nil {
		return err
	}

	logger.Printf("%d canvases archived", len(report.Archived))
	return printJSON(cmd.OutOrStdout(), report)
}

func runMigrate(logger *log.Logger, dsn, dir string) error {
	db, err := database.NewPgBoardRepository(dsn)
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer db.Close()

	return db.Migrate(logger, dir)
}
