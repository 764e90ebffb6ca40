package database

import (
	"os"

	"immich-service/config"

	"github.com/jmoiron/sqlx"
	"github.com/umakantv/go-utils/db"
	"github.com/umakantv/go-utils/db/migrations"
	"github.com/umakantv/go-utils/logger"
	"go.uber.org/zap"
)

func InitializeDatabase(cfg config.Config) *sqlx.DB {
	// ":memory:" is handy for local runs; it gets the embedded schema instead of the migrations dir
	if cfg.DatabasePath == MemoryPath {
		dbConn, err := OpenInMemory()
		if err != nil {
			logger.Error("Error while opening in-memory database", zap.Error(err))
			os.Exit(1)
		}
		logger.Info("In-memory database initialized")
		return dbConn
	}

	// Database configuration for SQLite
	dbConfig := db.DatabaseConfig{
		DRIVER: "sqlite3",
		DB:     cfg.DatabasePath,
	}

	dbConn := db.GetDBConnection(dbConfig)

	err := migrations.Migrate(dbConn, cfg.MigrationsDir)
	if err != nil {
		logger.Error("Error while running migration", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Database initialized successfully", zap.String("path", cfg.DatabasePath))
	return dbConn
}
