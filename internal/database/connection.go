// internal/database/connection.go
package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/freshshare/freshshare-api/internal/config"
	"github.com/freshshare/freshshare-api/internal/models"
)

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}

	// Configure GORM logger
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool. SQLite serializes writers anyway and
	// reports "database is locked" when several connections race.
	if cfg.Driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.WithField("driver", cfg.Driver).Info("Database connection established")
	return db, nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Error("Error getting underlying sql.DB")
		return
	}

	if err := sqlDB.Close(); err != nil {
		logrus.WithError(err).Error("Error closing database connection")
	} else {
		logrus.Info("Database connection closed")
	}
}

func RunMigrations(db *gorm.DB) error {
	logrus.Info("Running database migrations")

	err := db.AutoMigrate(
		&models.Group{},
		&models.GroupMember{},
		&models.RankedProduct{},
		&models.Listing{},
		&models.QuickOrder{},
		&models.QuickOrderItem{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logrus.Info("Database migrations completed")
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_ranked_products_group_position ON ranked_products(group_id, position)",
		"CREATE INDEX IF NOT EXISTS idx_listings_status_created ON listings(status, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_quick_orders_user_created ON quick_orders(user_id, created_at)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			// Continue with other indexes instead of failing completely
			logrus.WithError(err).Warnf("Failed to create index: %s", index)
		}
	}

	return nil
}

// SeedInitialData creates a demo group and listing on an empty database.
func SeedInitialData(db *gorm.DB, defaultMaxActive int) error {
	logrus.Info("Seeding initial data")

	var groupCount int64
	if err := db.Model(&models.Group{}).Count(&groupCount).Error; err != nil {
		return fmt.Errorf("failed to count groups: %w", err)
	}
	if groupCount > 0 {
		return nil
	}

	now := time.Now().UTC()
	group := &models.Group{
		Name:              "Neighbourhood Pantry",
		Description:       "Demo buying group",
		CreatedBy:         "seed-admin",
		MaxActiveProducts: defaultMaxActive,
	}
	group.EnsureID()
	group.AddMember("seed-admin", models.MemberRoleAdmin, now)
	for i, name := range []string{"Oat milk", "Free-range eggs", "Sourdough flour"} {
		group.Products = append(group.Products, models.RankedProduct{
			GroupID:        group.ID,
			Name:           name,
			CreatedBy:      "seed-admin",
			Status:         models.ProductStatusActive,
			Upvoters:       models.UserSet{},
			Downvoters:     models.UserSet{},
			LastActivityAt: &now,
			Position:       i,
		})
	}
	if err := db.Create(group).Error; err != nil {
		return fmt.Errorf("failed to create demo group: %w", err)
	}

	listing := &models.Listing{
		Title:    "Organic apples",
		VendorID: "seed-vendor",
		CaseSize: 12,
		Status:   models.ListingStatusActive,
	}
	if err := db.Create(listing).Error; err != nil {
		return fmt.Errorf("failed to create demo listing: %w", err)
	}

	logrus.Info("Initial data seeding completed")
	return nil
}

// Transaction helper
func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
