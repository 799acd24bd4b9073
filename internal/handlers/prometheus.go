package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// PrometheusHandler serves the default registry, where internal/metrics
// registers its collectors. Scrape errors go to the service log.
func PrometheusHandler(logger *logrus.Logger) gin.HandlerFunc {
	h := promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorLog:      logger,
		ErrorHandling: promhttp.ContinueOnError,
	})
	return gin.WrapH(promhttp.InstrumentMetricHandler(prometheus.DefaultRegisterer, h))
}
