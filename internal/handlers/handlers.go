package handlers

import (
	"errors"
	"net/http"
	"time"

	"video-contest-ads/internal/beacon"
	"video-contest-ads/internal/models"
	"video-contest-ads/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func (s *Server) GetAds(c *gin.Context) {
	ads, err := s.ads.ActiveAds(c.Request.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to fetch ads")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch ads"})
		return
	}
	if ads == nil {
		ads = []models.Ad{}
	}

	c.JSON(http.StatusOK, gin.H{"ads": ads})
}

// PostBeacon records one engagement beacon of the given kind.
func (s *Server) PostBeacon(kind beacon.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BeaconRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// Inactive ads are not served, so they take no engagement either.
		ad, err := s.ads.FindAd(c.Request.Context(), req.AdID)
		if errors.Is(err, repository.ErrAdNotFound) || (err == nil && !ad.Active) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Ad not found"})
			return
		}
		if err != nil {
			s.logger.WithError(err).WithField("ad_id", req.AdID).Error("Failed to look up ad")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record " + string(kind)})
			return
		}

		event := models.AdEvent{
			AdID:      req.AdID,
			Kind:      kind,
			SessionID: req.SessionID,
			Timestamp: s.now(),
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		}
		if err := s.recorder.Record(c.Request.Context(), event); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"ad_id": req.AdID,
				"kind":  kind,
			}).Error("Failed to record ad event")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record " + string(kind)})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "recorded"})
	}
}

func (s *Server) GetAnalytics(c *gin.Context) {
	adID := c.Query("ad_id")
	timeframe := c.DefaultQuery("timeframe", "24h")

	var duration time.Duration
	switch timeframe {
	case "1h":
		duration = time.Hour
	case "24h":
		duration = 24 * time.Hour
	case "7d":
		duration = 7 * 24 * time.Hour
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid timeframe, use 1h, 24h or 7d"})
		return
	}

	since := s.now().Add(-duration)

	if adID != "" {
		analytics, err := s.analytics.GetAdAnalytics(c.Request.Context(), adID, since)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load analytics"})
			return
		}
		c.JSON(http.StatusOK, analytics)
		return
	}

	analytics, err := s.analytics.GetAllAnalytics(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load analytics"})
		return
	}
	if analytics == nil {
		analytics = []models.AnalyticsResponse{}
	}
	c.JSON(http.StatusOK, gin.H{"analytics": analytics, "timeframe": timeframe})
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": s.now().Unix(),
		"version":   "1.0.0",
	})
}
