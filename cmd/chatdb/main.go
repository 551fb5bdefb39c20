package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"chatdb/internal/retention"
	"chatdb/pkg/api"
	"chatdb/pkg/banner"
	"chatdb/pkg/chat"
	"chatdb/pkg/config"
	"chatdb/pkg/logger"
	"chatdb/pkg/settings"
	"chatdb/pkg/state"
	"chatdb/pkg/store"
)

// build metadata - set via ldflags during build/release
var (
	version = "dev"
	commit  = "none"
)

func main() {
	addrFlag := flag.String("addr", "", "listen address (overrides config)")
	dbFlag := flag.String("db", "", "database path (overrides config)")
	cfgFlag := flag.String("config", "chatdb.yaml", "config file path")
	flag.Parse()

	_ = godotenv.Load(".env")

	cfg, err := config.Load(*cfgFlag)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger.InitWithLevel(cfg.Logging.Level)
	logger.Info("starting", "version", version, "commit", commit)

	dbPath := cfg.Storage.DBPath
	if *dbFlag != "" {
		dbPath = *dbFlag
	}
	addr := cfg.Addr()
	if *addrFlag != "" {
		addr = *addrFlag
	}

	paths, err := state.EnsureStateDirs(dbPath)
	if err != nil {
		log.Fatalf("failed to prepare state dirs: %v", err)
	}
	st, err := store.Open(paths.Store)
	if err != nil {
		log.Fatalf("failed to open store at %s: %v", paths.Store, err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("store_close_failed", "error", err)
		}
	}()

	c := chat.New(st)
	if err := c.LoadConversations(); err != nil {
		log.Fatalf("failed to load conversations: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cancelRetention, err := retention.Start(ctx, cfg.Retention, c)
	if err != nil {
		log.Fatalf("failed to start retention: %v", err)
	}
	defer cancelRetention()

	srv := &http.Server{
		Addr: addr,
		Handler: api.Handler(api.Deps{
			Chat:      c,
			Settings:  settings.NewManager(st),
			RateLimit: cfg.Security.RateLimit,
			Version:   version,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	banner.Print(cfg, addr, dbPath, version)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal_received")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			logger.Error("http_shutdown_failed", "error", err)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}
}
