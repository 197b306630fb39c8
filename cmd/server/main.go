// Package main is the entry point for the back-office access control server.
// It dispatches four subcommands (serve, migrate, purge, version) via a simple
// switch on os.Args so the binary's full CLI surface is readable in one place.
// The serve command runs auto-migration on startup so freshly deployed
// containers never need a separate migration step.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/netimobiliaria/admin-core/internal/api"
	"github.com/netimobiliaria/admin-core/internal/audit"
	"github.com/netimobiliaria/admin-core/internal/auth"
	"github.com/netimobiliaria/admin-core/internal/config"
	"github.com/netimobiliaria/admin-core/internal/db"
	"github.com/netimobiliaria/admin-core/internal/db/repositories"
	"github.com/netimobiliaria/admin-core/internal/services"
	"github.com/netimobiliaria/admin-core/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const (
	version = "0.1.0"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg, configPath)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down|force VERSION>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2], os.Args[3:])
	case "purge":
		return runPurge(cfg, os.Args[2:])
	case "version":
		fmt.Printf("admin-core v%s\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, purge, version", command)
	}
}

func serve(cfg *config.Config, configPath string) error {
	// Initialise structured logger as early as possible so all subsequent log output
	// uses the configured format (json / text) and level.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if err := config.Watch(configPath, func(updated *config.Config) {
		telemetry.SetLevel(updated.Logging.Level)
	}); err != nil {
		slog.Warn("config watch unavailable", "error", err)
	}

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Fails in production if NIA_JWT_SECRET is not set
	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	slog.Info("connecting to database",
		"host", cfg.Database.Host, "port", cfg.Database.Port,
		"name", cfg.Database.Name, "user", cfg.Database.User, "sslmode", cfg.Database.SSLMode)

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	telemetry.StartDBStatsCollector(database)

	slog.Info("running database migrations")
	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if v, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema ready", "version", v, "dirty", dirty)
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Address, err)
		}
		slog.Info("connected to redis", "addr", cfg.Redis.Address)
	}

	// Start Prometheus metrics endpoint on a dedicated port so it is not reachable
	// through the public API ingress path.
	if cfg.Telemetry.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("starting Prometheus metrics server", "addr", metricsAddr)
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	router, bgServices := api.NewRouter(cfg, database, rdb)

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("starting server", "addr", cfg.Server.GetAddress(),
			"environment", cfg.Environment, "redis", cfg.Redis.Enabled)

		var err error
		if cfg.Security.TLS.Enabled {
			slog.Info("TLS enabled", "cert", cfg.Security.TLS.CertFile)
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Stop background jobs, flush the audit bus and close shippers
	bgServices.Shutdown()

	slog.Info("server stopped gracefully")
	return nil
}

func runMigrations(cfg *config.Config, direction string, args []string) error {
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if direction == "force" {
		// Repairs a dirty schema_migrations row after an interrupted run.
		if len(args) != 1 {
			return fmt.Errorf("usage: %s migrate force VERSION", os.Args[0])
		}
		target, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid migration version %q: %w", args[0], err)
		}
		if err := db.ForceMigrationVersion(database, target); err != nil {
			return err
		}
		log.Printf("Migration version forced to %d", target)
		return nil
	}

	log.Printf("Running migrations: %s", direction)

	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	v, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	log.Printf("Migration completed successfully. Current version: %d (dirty: %v)", v, dirty)
	return nil
}

// runPurge performs a one-off purge from the command line:
//
//	server purge [days] [--archive]
//
// days defaults to audit.retention_days. The purge writes its own audit entry
// exactly as the HTTP purge does.
func runPurge(cfg *config.Config, args []string) error {
	days := cfg.Audit.RetentionDays
	archive := false
	for _, arg := range args {
		if arg == "--archive" {
			archive = true
			continue
		}
		n, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("usage: %s purge [days] [--archive]", os.Args[0])
		}
		days = n
	}

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	var archiver audit.Shipper
	if archive {
		if cfg.Audit.ArchivePath == "" {
			return fmt.Errorf("--archive requires audit.archive_path")
		}
		fs, err := audit.NewFileShipper(&config.AuditFileConfig{Path: cfg.Audit.ArchivePath})
		if err != nil {
			return fmt.Errorf("failed to open audit archive: %w", err)
		}
		defer fs.Close()
		archiver = fs
	}

	purge := services.NewPurgeService(repositories.NewAuditRepository(database), archiver)
	result, err := purge.Purge(context.Background(), days, archive, auth.Actor{Username: "cli"})
	if err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}

	log.Printf("Purge completed: %d audit rows and %d login rows older than %d days removed",
		result.AuditDeleted, result.LoginDeleted, days)
	return nil
}
