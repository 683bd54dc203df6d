package database

import (
	"fmt"
	"os"
	"path/filepath"

	"pairsurvey/internal/config"
	logging "pairsurvey/internal/logging"
	"pairsurvey/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the configured session-state database and runs migrations.
func Open(dbConf config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dbConf.Driver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			dbConf.Host, dbConf.User, dbConf.Password, dbConf.DBName, dbConf.Port, dbConf.SSLMode)
		dialector = postgres.Open(dsn)
	case "sqlite":
		if dbConf.Path != ":memory:" && !isMemoryDSN(dbConf.Path) {
			if err := os.MkdirAll(filepath.Dir(dbConf.Path), 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		dialector = sqlite.Open(dbConf.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dbConf.Driver)
	}

	gormLogger := logging.NewGormZapLogger(log)
	gormLogger.LogLevel = logger.Warn

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("connect to %s database: %w", dbConf.Driver, err)
	}
	log.Info("Database connection established successfully.", zap.String("driver", dbConf.Driver))

	if err := runMigrations(db, log); err != nil {
		return nil, err
	}
	return db, nil
}

func isMemoryDSN(dsn string) bool {
	return len(dsn) >= 5 && dsn[:5] == "file:"
}

func runMigrations(db *gorm.DB, log *zap.Logger) error {
	if err := db.AutoMigrate(&models.SessionState{}); err != nil {
		return fmt.Errorf("run database migrations: %w", err)
	}

	// The janitor deletes by last update.
	staleIndex := `CREATE INDEX IF NOT EXISTS idx_survey_sessions_updated ON survey_sessions (updated_at);`
	if err := db.Exec(staleIndex).Error; err != nil {
		return fmt.Errorf("create session index: %w", err)
	}
	log.Info("Database migrations completed successfully.")
	return nil
}
