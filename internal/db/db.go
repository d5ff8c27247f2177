package db

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"laundromat-backend/config"
	"laundromat-backend/internal/model"
)

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log.Println("Running database migrations...")
	if err := Migrate(db); err != nil {
		return nil, err
	}

	if err := SeedWashingModes(db); err != nil {
		return nil, err
	}

	log.Println("Database initialization complete.")
	return db, nil
}

// Migrate applies the schema for all core models.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.Machine{},
		&model.WashingMode{},
		&model.Order{},
		&model.PowerUsageData{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

// SeedWashingModes inserts the default wash programs when none exist yet.
func SeedWashingModes(db *gorm.DB) error {
	var count int64
	if err := db.Model(&model.WashingMode{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count washing modes: %w", err)
	}
	if count > 0 {
		return nil
	}

	modes := []model.WashingMode{
		{ID: uuid.NewString(), Name: "NORMAL", Price: 25000, IsActive: true, DurationMinutes: 50, CapacityKg: 8},
		{ID: uuid.NewString(), Name: "THOROUGHLY", Price: 35000, IsActive: true, DurationMinutes: 70, CapacityKg: 8},
	}
	log.Printf("Seeding %d default washing modes...", len(modes))
	return db.Create(&modes).Error
}
