package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/leca/autoscale-bat/internal/config"
	"github.com/leca/autoscale-bat/internal/database"
	"github.com/leca/autoscale-bat/internal/router"
	"github.com/leca/autoscale-bat/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.LoadMimic()

	db, err := database.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := storage.NewFileSystem(cfg.StoragePath)

	srv := router.New(db, store, cfg)

	slog.Info("starting mimic cloud", "addr", cfg.ListenAddr, "region", cfg.Region, "base_url", cfg.BaseURL)
	if err := http.ListenAndServe(cfg.ListenAddr, srv.Router); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
