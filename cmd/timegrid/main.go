package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	v1 "github.com/hydrograph-lab/timegrid/internal/api/v1"
	"github.com/hydrograph-lab/timegrid/internal/config"
	"github.com/hydrograph-lab/timegrid/internal/flags"
	"github.com/hydrograph-lab/timegrid/internal/migrations"
	"github.com/hydrograph-lab/timegrid/internal/server"
	"github.com/hydrograph-lab/timegrid/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "timegrid.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"resolution", cfg.Series.Resolution,
		"periodicity", cfg.Series.Periodicity,
		"database_enabled", cfg.Database.Enabled,
	)

	// 2. Initialize Result Store (optional)
	var (
		db    *sql.DB
		store v1.ResultStore
	)
	if cfg.Database.Enabled {
		db, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

		if err := migrations.RunMigrations(db, cfg.Database.AutoMigrate); err != nil {
			slog.Error("Failed to run database migrations", "error", err)
			os.Exit(1)
		}
		store = postgres.NewResultStore(db)
	} else {
		slog.Info("Result store disabled by config")
	}

	// 3. Load Flag Systems
	var flagManager *flags.Manager
	if cfg.Flags.SystemsPath != "" {
		data, err := os.ReadFile(cfg.Flags.SystemsPath)
		if err != nil {
			slog.Error("Failed to read flag systems file", "path", cfg.Flags.SystemsPath, "error", err)
			os.Exit(1)
		}
		systems, err := flags.LoadSystems(data)
		if err != nil {
			slog.Error("Failed to load flag systems", "path", cfg.Flags.SystemsPath, "error", err)
			os.Exit(1)
		}
		flagManager = flags.NewManager()
		for _, reg := range systems {
			if err := flagManager.RegisterSystem(reg); err != nil {
				slog.Error("Failed to register flag system", "system", reg.Name(), "error", err)
				os.Exit(1)
			}
		}
		slog.Info("Flag systems loaded", "count", len(systems))
	}

	// 4. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), db, cfg.Server.Mode)
	v1.NewHandler(cfg, store, flagManager).Register(srv.Engine)

	// 5. Start
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
