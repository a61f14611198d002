package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/lockledger/lockledger/config"
	"github.com/lockledger/lockledger/internal/bank"
	"github.com/lockledger/lockledger/internal/ledger"
	"github.com/lockledger/lockledger/internal/server"
	"github.com/lockledger/lockledger/internal/store"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Ledger daemon exited: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "config/config.json", "Path to config.json")
	port := flag.Int("port", 0, "HTTP port (0 = use config)")
	storageDir := flag.String("storage-dir", "", "LevelDB directory (overrides config)")
	flag.Parse()

	// Load config first (primary source of truth)
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("No usable config at %s (%v), using defaults", *configPath, err)
		cfg = config.Default()
	}

	// Flags and environment override the file
	if *port != 0 {
		cfg.Port = *port
	}
	if envPort := os.Getenv("PORT"); envPort != "" {
		if p, err := strconv.Atoi(envPort); err == nil {
			cfg.Port = p
		}
	}
	if *storageDir != "" {
		cfg.StorageDir = *storageDir
	}
	if envDir := os.Getenv("LEDGER_STORAGE_DIR"); envDir != "" {
		cfg.StorageDir = envDir
	}
	if envAdmin := os.Getenv("LEDGER_ADMIN"); envAdmin != "" {
		cfg.Administrator = envAdmin
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	st, err := store.Open(cfg.StorageDir, cfg.CacheMB)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	balances, err := bank.Load(st)
	if err != nil {
		return fmt.Errorf("load balances: %w", err)
	}
	paused, err := st.Paused()
	if err != nil {
		return fmt.Errorf("load pause flag: %w", err)
	}

	l, err := ledger.New(st, balances, bank.NewBreaker(paused), ledger.Config{
		Administrator:   cfg.AdministratorAddress(),
		AutoUnlock:      cfg.AutoUnlock,
		MaxLockDuration: cfg.MaxLockDuration(),
	})
	if err != nil {
		return fmt.Errorf("start ledger: %w", err)
	}

	srv := server.NewServer(l, cfg.SnapshotInterval())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(cfg.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Printf("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
