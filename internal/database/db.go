package database

import (
	"time"

	"video-contest-ads/internal/adunit"
	"video-contest-ads/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func SetupDatabase(databaseURL string, log *logrus.Logger) (*gorm.DB, error) {
	level := logger.Warn
	if log.IsLevelEnabled(logrus.DebugLevel) {
		level = logger.Info
	}

	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, err
	}

	// Auto-migrate schemas
	if err := db.AutoMigrate(&models.Ad{}, &models.AdEvent{}); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// SampleAds covers each presentation format once.
func SampleAds() []models.Ad {
	skipAfter := 5
	return []models.Ad{
		{
			ID:        uuid.NewString(),
			MediaURL:  "https://cdn.example.com/ads/bumper-6s.mp4",
			TargetURL: "https://example.com/product1",
			Title:     "Amazing Product 1",
			Format:    adunit.FormatBumper,
			Active:    true,
		},
		{
			ID:        uuid.NewString(),
			MediaURL:  "https://cdn.example.com/ads/instream-15s.mp4",
			TargetURL: "https://example.com/product2",
			Title:     "Great Service 2",
			Format:    adunit.FormatNonSkippable,
			Active:    true,
		},
		{
			ID:               uuid.NewString(),
			MediaURL:         "https://cdn.example.com/ads/skippable-30s.mp4",
			TargetURL:        "https://example.com/product3",
			Title:            "Special Offer 3",
			Format:           adunit.FormatSkippable,
			SkipAfterSeconds: &skipAfter,
			Active:           true,
		},
	}
}

func SeedDatabase(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Ad{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	ads := SampleAds()
	return db.Create(&ads).Error
}
