package repository

import (
	"context"
	"errors"
	"fmt"

	"video-contest-ads/internal/models"

	"gorm.io/gorm"
)

var ErrAdNotFound = errors.New("ad not found")

type AdRepository struct {
	db *gorm.DB
}

func NewAdRepository(db *gorm.DB) *AdRepository {
	return &AdRepository{db: db}
}

func (r *AdRepository) ActiveAds(ctx context.Context) ([]models.Ad, error) {
	var ads []models.Ad
	if err := r.db.WithContext(ctx).Where("active = ?", true).Order("created_at").Find(&ads).Error; err != nil {
		return nil, fmt.Errorf("failed to query ads: %w", err)
	}
	return ads, nil
}

func (r *AdRepository) FindAd(ctx context.Context, id string) (*models.Ad, error) {
	var ad models.Ad
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&ad).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAdNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ad %s: %w", id, err)
	}
	return &ad, nil
}

// CreateEvents inserts a batch of events in one statement.
func (r *AdRepository) CreateEvents(ctx context.Context, events []models.AdEvent) error {
	if len(events) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&events).Error; err != nil {
		return fmt.Errorf("failed to insert %d ad events: %w", len(events), err)
	}
	return nil
}
