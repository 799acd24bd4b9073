package models

import (
	"time"

	"video-contest-ads/internal/adunit"
	"video-contest-ads/internal/beacon"
)

type Ad struct {
	ID               string        `json:"id" gorm:"primaryKey;size:64"`
	MediaURL         string        `json:"media_url"`
	TargetURL        string        `json:"target_url" gorm:"not null"`
	Title            string        `json:"title"`
	Format           adunit.Format `json:"format" gorm:"size:32;not null;default:bumper"`
	SkipAfterSeconds *int          `json:"skip_after_seconds,omitempty"`
	Active           bool          `json:"active" gorm:"default:true"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Instance starts a new presentation of the ad.
func (a Ad) Instance() adunit.Instance {
	return adunit.Instance{
		AdID:             a.ID,
		MediaURL:         a.MediaURL,
		DestinationURL:   a.TargetURL,
		Title:            a.Title,
		Format:           a.Format,
		SkipAfterSeconds: a.SkipAfterSeconds,
	}
}

// AdEvent is one recorded beacon.
type AdEvent struct {
	ID        uint        `json:"id" gorm:"primaryKey"`
	AdID      string      `json:"ad_id" gorm:"size:64;not null;index"`
	Kind      beacon.Kind `json:"kind" gorm:"size:16;not null;index"`
	SessionID string      `json:"session_id,omitempty" gorm:"size:64"`
	Timestamp time.Time   `json:"timestamp" gorm:"not null;index"`
	IPAddress string      `json:"ip_address"`
	UserAgent string      `json:"user_agent"`
	CreatedAt time.Time   `json:"created_at"`
}

type BeaconRequest struct {
	AdID      string `json:"adId" binding:"required"`
	SessionID string `json:"sessionId"`
}

type AnalyticsResponse struct {
	AdID        string  `json:"ad_id"`
	Impressions int64   `json:"impressions"`
	Views       int64   `json:"views"`
	Clicks      int64   `json:"clicks"`
	CTR         float64 `json:"ctr"`
	ViewRate    float64 `json:"view_rate"`
	LastHour    int64   `json:"last_hour"`
	LastDay     int64   `json:"last_day"`
}

// ComputeRates fills CTR and ViewRate as percentages of impressions.
func (a *AnalyticsResponse) ComputeRates() {
	if a.Impressions == 0 {
		a.CTR, a.ViewRate = 0, 0
		return
	}
	a.CTR = float64(a.Clicks) / float64(a.Impressions) * 100
	a.ViewRate = float64(a.Views) / float64(a.Impressions) * 100
}
