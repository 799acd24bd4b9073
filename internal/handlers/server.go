package handlers

import (
	"context"
	"time"

	"video-contest-ads/internal/beacon"
	"video-contest-ads/internal/models"
	"video-contest-ads/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type AdStore interface {
	ActiveAds(ctx context.Context) ([]models.Ad, error)
	FindAd(ctx context.Context, id string) (*models.Ad, error)
}

type EventRecorder interface {
	Record(ctx context.Context, event models.AdEvent) error
}

type AnalyticsStore interface {
	GetAdAnalytics(ctx context.Context, adID string, since time.Time) (models.AnalyticsResponse, error)
	GetAllAnalytics(ctx context.Context, since time.Time) ([]models.AnalyticsResponse, error)
}

type Server struct {
	ads       AdStore
	recorder  EventRecorder
	analytics AnalyticsStore
	sessions  *session.Handler
	logger    *logrus.Logger
	now       func() time.Time
}

func NewServer(ads AdStore, recorder EventRecorder, analytics AnalyticsStore, sessions *session.Handler, logger *logrus.Logger) *Server {
	return &Server{
		ads:       ads,
		recorder:  recorder,
		analytics: analytics,
		sessions:  sessions,
		logger:    logger,
		now:       time.Now,
	}
}

// Routes registers the ad API on r.
func (s *Server) Routes(r *gin.Engine) {
	api := r.Group("/api/ads")
	{
		api.GET("", s.GetAds)
		api.GET("/analytics", s.GetAnalytics)
		api.POST("/impression", s.PostBeacon(beacon.Impression))
		api.POST("/view", s.PostBeacon(beacon.View))
		api.POST("/click", s.PostBeacon(beacon.Click))
		if s.sessions != nil {
			api.GET("/:id/session", s.sessions.Serve)
		}
	}

	r.GET("/health", s.Health)
	r.GET("/metrics", PrometheusHandler(s.logger))
}
