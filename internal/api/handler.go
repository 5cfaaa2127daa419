package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"social_ingest/internal/domain"
	"social_ingest/internal/service"
)

const WebhookPath = "/api/webhooks/apify"

type RunHandler interface {
	Handle(ctx context.Context, n domain.RunNotification) (*domain.WebhookResult, error)
}

type Scraper interface {
	RunLinkedInCron(ctx context.Context, webhookURL string) (*domain.CronReport, error)
	RunYouTubeCron(ctx context.Context, webhookURL string) (*domain.CronReport, error)
	ScrapeNow(ctx context.Context, req service.ScrapeRequest) (*domain.ScrapeReport, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	runs      RunHandler
	scraper   Scraper
	db        Pinger
	publicURL string
	logger    *slog.Logger
}

// NewHandler builds the HTTP handlers. publicURL is the externally reachable
// base of this service; when empty the webhook url is derived from the
// incoming request. db may be nil.
func NewHandler(runs RunHandler, scraper Scraper, db Pinger, publicURL string, logger *slog.Logger) *Handler {
	return &Handler{
		runs:      runs,
		scraper:   scraper,
		db:        db,
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    logger.With("component", "api"),
	}
}

func (h *Handler) Webhook(c *gin.Context) {
	var n domain.RunNotification
	if err := c.ShouldBindJSON(&n); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid notification payload"})
		return
	}

	result, err := h.runs.Handle(c.Request.Context(), n)
	if err != nil {
		h.fail(c, "webhook processing failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) LinkedInCron(c *gin.Context) {
	report, err := h.scraper.RunLinkedInCron(c.Request.Context(), h.webhookURL(c))
	if err != nil {
		h.fail(c, "linkedin cron failed", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) YouTubeCron(c *gin.Context) {
	report, err := h.scraper.RunYouTubeCron(c.Request.Context(), h.webhookURL(c))
	if err != nil {
		h.fail(c, "youtube cron failed", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) Scrape(c *gin.Context) {
	var req service.ScrapeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body"})
			return
		}
	}

	report, err := h.scraper.ScrapeNow(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "manual scrape failed", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) Health(c *gin.Context) {
	if h.db != nil {
		if err := h.db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) webhookURL(c *gin.Context) string {
	if h.publicURL != "" {
		return h.publicURL + WebhookPath
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	host := c.Request.Host
	if fwd := c.GetHeader("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}
	return scheme + "://" + host + WebhookPath
}

func (h *Handler) fail(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, "error", err, "request_id", c.GetString(requestIDKey))
	} else {
		h.logger.Warn(msg, "error", err, "request_id", c.GetString(requestIDKey))
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrMissingDataset), errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
