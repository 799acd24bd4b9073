package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"video-contest-ads/internal/adunit"
	"video-contest-ads/internal/config"
	"video-contest-ads/internal/database"
	"video-contest-ads/internal/handlers"
	"video-contest-ads/internal/kafka"
	"video-contest-ads/internal/logger"
	"video-contest-ads/internal/middleware"
	"video-contest-ads/internal/repository"
	"video-contest-ads/internal/services"
	"video-contest-ads/internal/session"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()
	log := logger.SetupLogger(cfg.LogLevel)

	// db connection
	db, err := database.SetupDatabase(cfg.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}

	if cfg.SeedData {
		if err := database.SeedDatabase(db); err != nil {
			log.WithError(err).Warn("Failed to seed database")
		}
	}

	adRepo := repository.NewAdRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db, log)

	queue := services.NewEventQueue(adRepo, log, services.QueueOptions{
		BufferSize:   cfg.QueueSize,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RetryDelay:   time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		queue.StartProcessor(ctx)
	}()

	var publisher *kafka.Publisher
	var tracker *services.Tracker
	if cfg.KafkaEnabled {
		publisher = kafka.NewPublisher(kafka.NewKafkaWriter(cfg.KafkaBroker, cfg.KafkaTopic), log)
		tracker = services.NewTracker(queue, adRepo, publisher, log)

		consumer := kafka.NewConsumer(kafka.NewKafkaReader(cfg.KafkaBroker, cfg.KafkaTopic, cfg.KafkaGroupID), log)
		workers.Add(1)
		go func() {
			defer workers.Done()
			consumer.Run(ctx, tracker.Persist)
			if err := consumer.Close(); err != nil {
				log.WithError(err).Error("Failed to close Kafka reader")
			}
		}()

		log.WithField("topic", cfg.KafkaTopic).Info("Publishing ad events to Kafka")
	} else {
		tracker = services.NewTracker(queue, adRepo, nil, log)
	}

	sessions := session.NewHandler(adRepo, func(sessionID, ip, userAgent string) adunit.Beacon {
		return tracker.ForSession(sessionID, ip, userAgent)
	}, log, cfg.AllowedOrigins, session.WithTimeouts(cfg.SessionPongWait, 0))
	server := handlers.NewServer(adRepo, tracker, analyticsRepo, sessions, log)

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggingMiddleware(log))
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	server.Routes(r)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.WithField("port", cfg.Port).Info("Server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	// Let in-flight session beacons reach the queue before it is flushed.
	tracker.Wait()
	cancel()
	workers.Wait()

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.WithError(err).Error("Failed to close Kafka writer")
		}
	}

	log.Info("Server exited")
}
