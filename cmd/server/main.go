package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/npezzotti/earth-board/internal/api"
	"github.com/npezzotti/earth-board/internal/config"
	"github.com/npezzotti/earth-board/internal/database"
	"github.com/npezzotti/earth-board/internal/jobs"
	"github.com/npezzotti/earth-board/internal/lifecycle"
	"github.com/npezzotti/earth-board/internal/realtime"
	"github.com/npezzotti/earth-board/internal/stats"
	"github.com/npezzotti/earth-board/internal/storage"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingKey     string
	allowedOrigins stringSliceFlag
	migrationsDir  string
	runMigrations  bool
	scheduler      bool
	schedule       string
	snapshotCfg    config.SnapshotConfig
)

func main() {
	logger := log.New(os.Stderr, "[earth-board] ", log.LstdFlags)

	if err := config.LoadEnv(); err != nil {
		logger.Fatal("load .env:", err)
	}

	flag.StringVar(&addr, "addr", config.Getenv("BOARD_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&dsn, "dsn", config.Getenv("BOARD_DSN", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"), "database connection string")
	flag.StringVar(&signingKey, "signing-key", config.Getenv("BOARD_SIGNING_KEY", defaultSigningKey), "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.StringVar(&migrationsDir, "migrations", config.Getenv("BOARD_MIGRATIONS", "db/migrations"), "migrations directory")
	flag.BoolVar(&runMigrations, "migrate", config.GetenvBool("BOARD_MIGRATE", false), "apply pending migrations on startup")
	flag.BoolVar(&scheduler, "scheduler", config.GetenvBool("BOARD_SCHEDULER", true), "run the daily rollover in process")
	flag.StringVar(&schedule, "schedule", config.Getenv("BOARD_SCHEDULE", jobs.DefaultRolloverSpec), "rollover cron expression, evaluated in EST")
	flag.StringVar(&snapshotCfg.Bucket, "snapshot-bucket", config.Getenv("BOARD_SNAPSHOT_BUCKET", ""), "S3 bucket for canvas snapshots")
	flag.StringVar(&snapshotCfg.Region, "snapshot-region", config.Getenv("BOARD_SNAPSHOT_REGION", ""), "S3 region")
	flag.StringVar(&snapshotCfg.Endpoint, "snapshot-endpoint", config.Getenv("BOARD_SNAPSHOT_ENDPOINT", ""), "S3-compatible endpoint")
	flag.StringVar(&snapshotCfg.PublicBaseURL, "snapshot-base-url", config.Getenv("BOARD_SNAPSHOT_BASE_URL", ""), "public base URL of snapshot objects")
	flag.BoolVar(&snapshotCfg.UsePathStyle, "snapshot-path-style", config.GetenvBool("BOARD_SNAPSHOT_PATH_STYLE", false), "use path-style S3 addressing")
	flag.Parse()

	if len(allowedOrigins) == 0 {
		if v := os.Getenv("BOARD_ALLOWED_ORIGINS"); v != "" {
			allowedOrigins.Set(v)
		}
	}

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins,
		config.WithMigrationsDir(migrationsDir),
		config.WithScheduler(scheduler, schedule),
		config.WithSnapshots(snapshotCfg),
	)
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgBoardRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if runMigrations {
		if err := dbConn.Migrate(logger, cfg.MigrationsDir); err != nil {
			logger.Fatal("migrate:", err)
		}
	}

	var snapshots api.SnapshotUploader
	if cfg.Snapshots.Enabled() {
		store, err := storage.NewSnapshotStore(context.Background(), storage.Config{
			Bucket:          cfg.Snapshots.Bucket,
			Region:          cfg.Snapshots.Region,
			Endpoint:        cfg.Snapshots.Endpoint,
			PublicBaseURL:   cfg.Snapshots.PublicBaseURL,
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			UsePathStyle:    cfg.Snapshots.UsePathStyle,
		})
		if err != nil {
			logger.Fatal("snapshot store:", err)
		}
		snapshots = store
	} else {
		logger.Println("snapshot storage disabled")
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	hub := realtime.NewHub(logger, dbConn, statsUpdater)
	manager := lifecycle.NewManager(logger, dbConn)

	srv := api.NewBoardApp(mux, logger, hub, dbConn, manager, snapshots, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go hub.Run()

	var sched *jobs.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = jobs.NewScheduler(logger, cfg.Scheduler.Spec, jobs.NewRolloverJob(logger, manager))
		if err != nil {
			logger.Fatal("scheduler:", err)
		}
		sched.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if sched != nil {
		if err := sched.Stop(shutDownCtx); err != nil {
			logger.Println("scheduler shutdown:", err)
		}
	}

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down realtime hub...")
	if err := hub.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("hub shutdown:", err)
	}

	logger.Println("shutdown complete")
}
