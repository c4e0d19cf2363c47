package main

import (
	"context"
	"flag"
	"log"
	"net/http"

	"github.com/soaringjerry/Procus/internal/api"
	"github.com/soaringjerry/Procus/internal/config"
	"github.com/soaringjerry/Procus/internal/db"
	"github.com/soaringjerry/Procus/internal/logger"
	"github.com/soaringjerry/Procus/internal/middleware"
	"github.com/soaringjerry/Procus/internal/services"
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

	index := services.NewAwaitingIndex()
	if err := index.Rebuild(context.Background(), store); err != nil {
		zl.Fatal("rebuild awaiting index", "error", err)
	}
	zl.Info("awaiting index rebuilt", "entries", index.Len())

	engine := services.NewConversationEngine(store, index, zl, services.ConversationOptions{
		AnswerMin:               cfg.AnswerMin,
		AnswerMax:               cfg.AnswerMax,
		RestartReopensIteration: cfg.RestartReopensIteration,
		Actor:                   cfg.Actor,
	})

	mux := http.NewServeMux()
	api.NewRouter(engine, cfg.WebhookToken, zl).Register(mux)
	handler := middleware.RequestLog(zl, mux)

	zl.Info("procus server listening", "addr", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		zl.Fatal("server error", "error", err)
	}
}
