package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/intervue/backend/repository"
	"github.com/intervue/backend/services"
)

func main() {
	// Setup structured logging with JSON format
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	config := services.LoadConfig()

	if config.Database.URL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := repository.OpenPostgres(ctx, repository.DatabaseOptions{
		URL:             config.Database.URL,
		LogLevel:        config.Database.LogLevel,
		MaxIdleConns:    config.Database.MaxIdleConns,
		MaxOpenConns:    config.Database.MaxOpenConns,
		ConnMaxLifetime: config.Database.ConnMaxLifetime,
	})
	cancel()
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := repository.NewGORMRepository(db.Gorm)
	if config.Database.AutoMigrate {
		if err := repo.AutoMigrate(); err != nil {
			slog.Error("Failed to run database migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("Database migrations completed")
	}

	server := services.NewServer(config)
	server.SetDatabase(db, repo)
	if err := server.InitializeServices(context.Background()); err != nil {
		slog.Error("Failed to initialize services", "error", err)
		os.Exit(1)
	}

	server.Start()
}
