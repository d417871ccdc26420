package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/claude/gbinsight/internal/config"
	"github.com/claude/gbinsight/internal/ingest"
	gbmcp "github.com/claude/gbinsight/internal/mcp"
	"github.com/claude/gbinsight/internal/report"
	"github.com/claude/gbinsight/internal/server"
	"github.com/claude/gbinsight/internal/storage"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"tailscale.com/tsnet"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	mcpStdio := flag.Bool("mcp-stdio", false, "serve MCP on stdin/stdout instead of HTTP")
	remote := flag.String("remote", "", "with -mcp-stdio: read reports from this server URL instead of the database")
	flag.Parse()

	// stdout belongs to the MCP transport in stdio mode
	logOut := os.Stdout
	if *mcpStdio {
		logOut = os.Stderr
	}
	log := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("gbinsight starting", "version", Version)

	if *mcpStdio && *remote != "" {
		log.Info("serving MCP over stdio", "remote", *remote)
		if err := mcpserver.ServeStdio(gbmcp.New(gbmcp.NewHTTPClient(*remote), Version, log)); err != nil {
			log.Error("mcp stdio failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Run migrations
	dsn := cfg.Database.DSN()
	if err := storage.RunMigrations(dsn, "migrations"); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied")

	if *migrateOnly {
		log.Info("migrate-only: exiting")
		return
	}

	// Connect database
	ctx := context.Background()
	db, err := storage.New(ctx, dsn)
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database connected")

	reports, err := report.New(db, reportOptions(cfg), log)
	if err != nil {
		log.Error("invalid analysis settings", "error", err)
		os.Exit(1)
	}
	mcpSrv := gbmcp.New(reports, Version, log)

	if *mcpStdio {
		log.Info("serving MCP over stdio")
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			log.Error("mcp stdio failed", "error", err)
			os.Exit(1)
		}
		return
	}

	provider := ingest.NewProvider(db, reports, log)
	srv := server.New(reports, provider, db, cfg.Auth.APIKey, log)
	srv.SetMCP(mcpserver.NewStreamableHTTPServer(mcpSrv))

	// Start server: tsnet or plain HTTP
	var listener net.Listener
	var tsServer *tsnet.Server

	if cfg.Tailscale.Enabled {
		tsServer = &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		lc, err := tsServer.LocalClient()
		if err != nil {
			log.Error("tsnet local client failed", "error", err)
			os.Exit(1)
		}
		srv.SetTailscale(lc)

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "mode", "dev (no tailscale)")
	}

	httpSrv := &http.Server{Handler: srv, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	log.Info("server stopped")
}

func reportOptions(cfg *config.Config) report.Options {
	a := cfg.Analysis
	opts := report.DefaultOptions()
	opts.Steps = a.StepConfig()
	opts.Sleep = a.SleepConfig()
	opts.HeartRate = a.HeartRateConfig()
	opts.Stress = cfg.StressConfig
	opts.Location = a.Location()
	opts.SleepDayOffset = -time.Duration(a.Sleep.DayOffsetHours) * time.Hour
	opts.SampleSeconds = int64(a.SampleSeconds)
	opts.CacheSize = a.CacheSize
	opts.CacheTTL = time.Duration(a.CacheTTLMin) * time.Minute
	return opts
}
