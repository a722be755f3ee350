package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"trackd/internal/config"
	"trackd/internal/logging"
	"trackd/internal/models"
)

// InitDB initializes the database connection using the provided configuration.
// "postgres" is the production driver; "sqlite" (DBName 为文件路径或 ":memory:") 用于本地开发和测试。
func InitDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Type {
	case "postgres":
		dsn := PostgresDSN(cfg)
		log.Debug().Str("host", cfg.Host).Int("port", cfg.Port).Str("db", cfg.DBName).Msg("连接 PostgreSQL")
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(cfg.DBName)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	level := logger.Warn
	if cfg.LogSQL {
		level = logger.Info
	}
	newLogger := logger.New(
		logging.GormWriter{},
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Type == "sqlite" {
		// 内存数据库每个连接都是独立的库，只保留一个连接
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

// PostgresDSN builds a libpq keyword/value DSN, or returns cfg.URL when set.
func PostgresDSN(cfg config.DatabaseConfig) string {
	if cfg.URL != "" {
		return cfg.URL
	}
	var dsnParts []string
	dsnParts = append(dsnParts, fmt.Sprintf("host=%s", cfg.Host))
	dsnParts = append(dsnParts, fmt.Sprintf("port=%d", cfg.Port))
	dsnParts = append(dsnParts, fmt.Sprintf("user=%s", cfg.User))
	dsnParts = append(dsnParts, fmt.Sprintf("dbname=%s", cfg.DBName))
	if cfg.Password != "" {
		dsnParts = append(dsnParts, fmt.Sprintf("password=%s", cfg.Password))
	}
	dsnParts = append(dsnParts, fmt.Sprintf("sslmode=%s", cfg.SSLMode))
	return strings.Join(dsnParts, " ")
}

// AutoMigrateTables runs GORM's auto-migration feature for all defined models.
func AutoMigrateTables(db *gorm.DB) error {
	log.Info().Msg("开始数据库表结构迁移...")
	err := db.AutoMigrate(
		&models.User{},
		&models.WatchItem{},
		&models.Friend{},
		&models.Invitation{},
		&models.Suggestion{},
	)
	if err != nil {
		log.Error().Err(err).Msg("数据库迁移失败")
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	log.Info().Msg("数据库迁移完成。")
	return nil
}
