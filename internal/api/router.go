package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"social_ingest/internal/metrics"
)

type RouterConfig struct {
	WebhookSecret       string
	StrictWebhookSecret bool
	CronSecret          string
	WebhookTimeout      time.Duration
	CronTimeout         time.Duration
	ScrapeTimeout       time.Duration
}

// NewRouter wires the routes. m may be nil, in which case /metrics is not
// served.
func NewRouter(cfg RouterConfig, h *Handler, m *metrics.Collector, logger *slog.Logger) *gin.Engine {
	router := gin.New()

	router.Use(RequestID())
	router.Use(AccessLog(logger))
	router.Use(Recovery(logger))
	router.Use(m.Middleware())

	router.GET("/health", h.Health)
	if m != nil {
		router.GET("/metrics", m.Handler())
	}

	api := router.Group("/api")

	api.POST("/webhooks/apify",
		Timeout(cfg.WebhookTimeout),
		WebhookSecret(cfg.WebhookSecret, cfg.StrictWebhookSecret, logger),
		h.Webhook,
	)

	cron := api.Group("/cron", BearerAuth(cfg.CronSecret), Timeout(cfg.CronTimeout))
	cron.GET("/scrape-profiles", h.LinkedInCron)
	cron.POST("/scrape-profiles", h.LinkedInCron)
	cron.GET("/scrape-youtube", h.YouTubeCron)
	cron.POST("/scrape-youtube", h.YouTubeCron)

	api.POST("/scrape", BearerAuth(cfg.CronSecret), Timeout(cfg.ScrapeTimeout), h.Scrape)

	return router
}
