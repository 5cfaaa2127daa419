// Package metrics exposes the service's Prometheus collectors. All recording
// methods are safe to call on a nil *Collector.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "social_ingest"

type Collector struct {
	registry *prometheus.Registry

	postsUpserted  *prometheus.CounterVec
	itemsSkipped   *prometheus.CounterVec
	recordErrors   *prometheus.CounterVec
	attributions   *prometheus.CounterVec
	webhooks       *prometheus.CounterVec
	runsStarted    *prometheus.CounterVec
	budgetRefusals *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

func New() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.postsUpserted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "posts_upserted_total",
		Help:      "Posts written, by platform and insert/update outcome",
	}, []string{"platform", "action"})

	c.itemsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "items_skipped_total",
		Help:      "Raw items that could not be turned into posts",
	}, []string{"platform", "reason"})

	c.recordErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "record_errors_total",
		Help:      "Per-record persistence or publish failures",
	}, []string{"platform", "stage"})

	c.attributions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "profile_attributions_total",
		Help:      "Profile resolver outcomes by rule",
	}, []string{"rule"})

	c.webhooks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhooks_total",
		Help:      "Completion notifications by outcome",
	}, []string{"outcome"})

	c.runsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_runs_total",
		Help:      "Provider runs requested, by platform and outcome",
	}, []string{"platform", "outcome"})

	c.budgetRefusals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "budget_refusals_total",
		Help:      "Scheduled scrapes refused by the monthly budget cap",
	}, []string{"platform"})

	c.httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})

	c.httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.postsUpserted,
		c.itemsSkipped,
		c.recordErrors,
		c.attributions,
		c.webhooks,
		c.runsStarted,
		c.budgetRefusals,
		c.httpRequestsTotal,
		c.httpRequestDuration,
	)

	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) PostUpserted(platform, action string) {
	if c == nil {
		return
	}
	c.postsUpserted.WithLabelValues(platform, action).Inc()
}

func (c *Collector) ItemSkipped(platform, reason string) {
	if c == nil {
		return
	}
	c.itemsSkipped.WithLabelValues(platform, reason).Inc()
}

func (c *Collector) RecordError(platform, stage string) {
	if c == nil {
		return
	}
	c.recordErrors.WithLabelValues(platform, stage).Inc()
}

func (c *Collector) Attribution(rule string) {
	if c == nil {
		return
	}
	c.attributions.WithLabelValues(rule).Inc()
}

func (c *Collector) Webhook(outcome string) {
	if c == nil {
		return
	}
	c.webhooks.WithLabelValues(outcome).Inc()
}

func (c *Collector) RunStarted(platform string, err error) {
	if c == nil {
		return
	}
	outcome := "started"
	if err != nil {
		outcome = "failed"
	}
	c.runsStarted.WithLabelValues(platform, outcome).Inc()
}

func (c *Collector) BudgetRefused(platform string) {
	if c == nil {
		return
	}
	c.budgetRefusals.WithLabelValues(platform).Inc()
}

// Middleware records request counts and latency per route template.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if c == nil {
			ctx.Next()
			return
		}

		start := time.Now()
		ctx.Next()

		endpoint := ctx.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		method := ctx.Request.Method

		c.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.httpRequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() gin.HandlerFunc {
	handler := promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
	return func(ctx *gin.Context) {
		handler.ServeHTTP(ctx.Writer, ctx.Request)
	}
}
