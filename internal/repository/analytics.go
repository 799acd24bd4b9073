package repository

import (
	"context"
	"sort"
	"time"

	"video-contest-ads/internal/beacon"
	"video-contest-ads/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type AnalyticsRepository struct {
	db     *gorm.DB
	logger *logrus.Logger
	now    func() time.Time
}

func NewAnalyticsRepository(db *gorm.DB, logger *logrus.Logger) *AnalyticsRepository {
	return &AnalyticsRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// kindCount is one row of the per kind aggregation. Total covers the
// requested window; LastHour and LastDay are measured from now regardless of it.
type kindCount struct {
	AdID     string      `gorm:"column:ad_id"`
	Kind     beacon.Kind `gorm:"column:kind"`
	Total    int64       `gorm:"column:total"`
	LastHour int64       `gorm:"column:last_hour"`
	LastDay  int64       `gorm:"column:last_day"`
}

const kindCountsQuery = `
	SELECT
		ad_id,
		kind,
		COUNT(CASE WHEN timestamp >= ? THEN 1 END) AS total,
		COUNT(CASE WHEN timestamp >= ? THEN 1 END) AS last_hour,
		COUNT(CASE WHEN timestamp >= ? THEN 1 END) AS last_day
	FROM ad_events
	WHERE timestamp >= ?`

func (r *AnalyticsRepository) GetAdAnalytics(ctx context.Context, adID string, since time.Time) (models.AnalyticsResponse, error) {
	lastHour, lastDay := r.windows()

	var rows []kindCount
	err := r.db.WithContext(ctx).
		Raw(kindCountsQuery+" AND ad_id = ? GROUP BY ad_id, kind",
			since, lastHour, lastDay, earliest(since, lastDay), adID).
		Scan(&rows).Error
	if err != nil {
		r.logger.WithError(err).WithField("ad_id", adID).Error("Failed to get ad analytics")
		return models.AnalyticsResponse{AdID: adID}, err
	}

	analytics := summarize(rows)[adID]
	analytics.AdID = adID
	analytics.ComputeRates()

	r.logger.WithFields(logrus.Fields{
		"ad_id":       adID,
		"impressions": analytics.Impressions,
		"views":       analytics.Views,
		"clicks":      analytics.Clicks,
		"since":       since,
	}).Debug("Retrieved ad analytics")

	return analytics, nil
}

// GetAllAnalytics returns one summary per ad with events since the given
// time, ordered by ad id.
func (r *AnalyticsRepository) GetAllAnalytics(ctx context.Context, since time.Time) ([]models.AnalyticsResponse, error) {
	lastHour, lastDay := r.windows()

	var rows []kindCount
	err := r.db.WithContext(ctx).
		Raw(kindCountsQuery+" GROUP BY ad_id, kind",
			since, lastHour, lastDay, earliest(since, lastDay)).
		Scan(&rows).Error
	if err != nil {
		r.logger.WithError(err).Error("Failed to get analytics for all ads")
		return nil, err
	}

	byAd := summarize(rows)
	all := make([]models.AnalyticsResponse, 0, len(byAd))
	for adID, analytics := range byAd {
		analytics.AdID = adID
		analytics.ComputeRates()
		all = append(all, analytics)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].AdID < all[j].AdID })

	r.logger.WithFields(logrus.Fields{
		"results_count": len(all),
		"since":         since,
	}).Debug("Retrieved all analytics")

	return all, nil
}

func (r *AnalyticsRepository) windows() (time.Time, time.Time) {
	now := r.now().UTC()
	return now.Add(-time.Hour), now.Add(-24 * time.Hour)
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

// summarize folds per kind rows into per ad summaries. Recent activity is
// counted on clicks.
func summarize(rows []kindCount) map[string]models.AnalyticsResponse {
	out := make(map[string]models.AnalyticsResponse)
	for _, row := range rows {
		a := out[row.AdID]
		switch row.Kind {
		case beacon.Impression:
			a.Impressions += row.Total
		case beacon.View:
			a.Views += row.Total
		case beacon.Click:
			a.Clicks += row.Total
			a.LastHour += row.LastHour
			a.LastDay += row.LastDay
		}
		out[row.AdID] = a
	}
	return out
}
