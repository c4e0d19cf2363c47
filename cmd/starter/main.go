package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/soaringjerry/Procus/internal/config"
	"github.com/soaringjerry/Procus/internal/db"
	"github.com/soaringjerry/Procus/internal/logger"
	"github.com/soaringjerry/Procus/internal/services"
	"github.com/soaringjerry/Procus/internal/sms"
	"github.com/soaringjerry/Procus/internal/utils"
)

func main() {
	cfgPath := flag.String("config", utils.SafeEnv("PROCUS_CONFIG", "procus.yaml"), "path to the YAML config")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	zl, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zl.Sync()

	sqlDB, err := db.Open(cfg.SQLitePath)
	if err != nil {
		zl.Fatal("open database", "path", cfg.SQLitePath, "error", err)
	}
	defer func() { _ = sqlDB.Close() }()

	if err := db.RunMigrations(sqlDB); err != nil {
		zl.Fatal("run migrations", "error", err)
	}
	store, err := db.NewLedgerStore(sqlDB)
	if err != nil {
		zl.Fatal("init ledger store", "error", err)
	}

	sender := sms.NewClient(sms.Options{
		URL:         cfg.Gateway.URL,
		Token:       cfg.Gateway.Token,
		Timeout:     cfg.Gateway.Timeout.Std(),
		MaxFailures: cfg.Gateway.MaxFailures,
	}, zl)

	starter := services.NewStarterService(store, sender, zl, cfg.Actor)

	zl.Info("starter running", "scan_interval", cfg.ScanInterval.Std().String())
	for {
		opened, err := starter.OpenDueIterations(context.Background())
		if err != nil {
			// The whole scan is retried on the next pass; this is the
			// system's sole retry mechanism.
			zl.Error("scheduling pass failed", "error", err)
		} else if opened > 0 {
			zl.Info("scheduling pass complete", "opened", opened)
		}
		time.Sleep(cfg.ScanInterval.Std())
	}
}
