package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"keyward/internal/api"
	"keyward/internal/config"
	"keyward/internal/database"
	"keyward/internal/store"
	"keyward/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := database.Migrate(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		slog.Info("Migration error (may be safe if no changes)", "error", err)
	}

	ctx := context.Background()
	pool, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	productStore := store.NewPostgresProductStore(pool)
	licenseStore := store.NewPostgresLicenseStore(pool)
	registrationStore := store.NewPostgresRegistrationStore(pool)
	customerStore := store.NewPostgresCustomerStore(pool)
	logStore := store.NewPostgresLogStore(pool)
	statsStore := store.NewPostgresStatsStore(pool)
	syncStore := store.NewFileSyncStore(cfg.SyncDir)

	server := api.NewServer(cfg, pool, productStore, licenseStore, registrationStore, customerStore, logStore, statsStore, syncStore)

	slog.Info("Keyward ("+version.Version+") is now on duty", "port", cfg.Port)
	if err := server.Router.Run(":" + cfg.Port); err != nil {
		slog.Error("Failed to run server", "error", err)
		os.Exit(1)
	}
}
