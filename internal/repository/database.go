package repository

import (
	"fmt"
	"time"

	"go-alias-scanner/internal/config"
	"go-alias-scanner/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

type Database struct {
	*gorm.DB
}

// NewDatabase opens the MySQL history database and migrates its tables when
// AutoMigrate is set
func NewDatabase(cfg config.DatabaseConfig) (*Database, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
		Logger:                 logger.Default.LogMode(cfg.GormLogLevel()),
		SkipDefaultTransaction: true,
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	sqlDB.SetMaxIdleConns(poolSize / 2)
	sqlDB.SetMaxOpenConns(poolSize)
	sqlDB.SetConnMaxLifetime(cfg.GetConnMaxLifetime())
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	database := &Database{db}
	if cfg.AutoMigrate {
		if err := database.Migrate(); err != nil {
			_ = database.Close()
			return nil, err
		}
	}
	return database, nil
}

// Migrate creates or updates the history tables
func (db *Database) Migrate() error {
	if err := db.AutoMigrate(&models.ScanRecord{}, &models.TransferRecord{}); err != nil {
		return fmt.Errorf("failed to migrate history tables: %w", err)
	}
	return nil
}

func (db *Database) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (db *Database) Ping() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
