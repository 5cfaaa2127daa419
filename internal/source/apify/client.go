// Package apify talks to an Apify-compatible actor platform: it starts actor
// runs (optionally with a completion webhook), waits for them and pages
// through their datasets.
package apify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"social_ingest/internal/domain"
)

const (
	SecretHeader       = "X-Webhook-Secret"
	LegacySecretHeader = "X-Apify-Webhook-Secret"
)

var (
	ErrNotConfigured  = errors.New("apify token not configured")
	ErrRunNotFinished = errors.New("run did not finish before the deadline")
)

// APIError is a non-2xx answer from the platform.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apify: unexpected status %d: %s", e.StatusCode, e.Body)
}

// RunFailedError reports a run that reached a terminal state other than
// SUCCEEDED.
type RunFailedError struct {
	RunID  string
	Status string
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("run %s finished with status %s", e.RunID, e.Status)
}

type Config struct {
	BaseURL        string
	Token          string
	LinkedInActor  string
	YouTubeActor   string
	WebhookSecret  string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	PageSize       int
	WaitSeconds    int
	PollInterval   time.Duration
}

type Client struct {
	httpClient    *http.Client
	baseURL       string
	token         string
	actors        map[domain.Platform]string
	webhookSecret string
	pageSize      int
	waitSeconds   int
	pollInterval  time.Duration
	executor      failsafe.Executor[[]byte]
	startExecutor failsafe.Executor[[]byte]
	logger        *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	if cfg.WaitSeconds <= 0 {
		cfg.WaitSeconds = 60
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		actors: map[domain.Platform]string{
			domain.PlatformLinkedIn: cfg.LinkedInActor,
			domain.PlatformYouTube:  cfg.YouTubeActor,
		},
		webhookSecret: cfg.WebhookSecret,
		pageSize:      cfg.PageSize,
		waitSeconds:   cfg.WaitSeconds,
		pollInterval:  cfg.PollInterval,
		executor:      failsafe.With(newRetryPolicy(cfg, logger, retryable)),
		startExecutor: failsafe.With(newRetryPolicy(cfg, logger, rateLimited)),
		logger:        logger.With("component", "apify"),
	}
}

func newRetryPolicy(cfg Config, logger *slog.Logger, retryOn func(error) bool) retrypolicy.RetryPolicy[[]byte] {
	base, maxDelay := cfg.InitialBackoff, cfg.MaxBackoff
	if base <= 0 {
		base = time.Second
	}
	if maxDelay < base {
		maxDelay = base
	}
	retries := cfg.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}

	return retrypolicy.NewBuilder[[]byte]().
		WithBackoff(base, maxDelay).
		WithMaxRetries(retries).
		WithJitterFactor(0.1).
		HandleIf(func(_ []byte, err error) bool {
			return retryOn(err)
		}).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[[]byte]) {
			logger.Warn("apify request failed, retrying",
				"attempt", e.Attempts(),
				"error", e.LastError(),
			)
		}).
		Build()
}

// retryable treats transport failures, rate limiting and 5xx as transient.
func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return true
}

// rateLimited is the only retry condition for starting a run: any other
// failure may have reached the platform and already started a billed run.
func rateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

// Configured reports whether a token is available.
func (c *Client) Configured() bool {
	return c.token != ""
}

type runEnvelope struct {
	Data struct {
		ID               string `json:"id"`
		Status           string `json:"status"`
		DefaultDatasetID string `json:"defaultDatasetId"`
	} `json:"data"`
}

func (e runEnvelope) handle() *domain.RunHandle {
	return &domain.RunHandle{
		RunID:     e.Data.ID,
		DatasetID: e.Data.DefaultDatasetID,
		Status:    e.Data.Status,
	}
}

type webhookSpec struct {
	EventTypes      []string `json:"eventTypes"`
	RequestURL      string   `json:"requestUrl"`
	HeadersTemplate string   `json:"headersTemplate,omitempty"`
}

// StartRun starts the platform's actor and returns immediately. When
// req.WebhookURL is set the platform calls it once the run succeeds.
func (c *Client) StartRun(ctx context.Context, req domain.RunRequest) (*domain.RunHandle, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	actor, ok := c.actors[req.Platform]
	if !ok || actor == "" {
		return nil, fmt.Errorf("no actor configured for platform %q", req.Platform)
	}

	input, err := json.Marshal(actorInput(req))
	if err != nil {
		return nil, fmt.Errorf("marshal actor input: %w", err)
	}

	query := url.Values{}
	if req.WebhookURL != "" {
		hooks, err := c.encodeWebhooks(req.WebhookURL)
		if err != nil {
			return nil, err
		}
		query.Set("webhooks", hooks)
	}

	endpoint := fmt.Sprintf("%s/v2/acts/%s/runs", c.baseURL, strings.ReplaceAll(actor, "/", "~"))
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	body, err := c.do(ctx, c.startExecutor, http.MethodPost, endpoint, input)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}

	var env runEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}

	c.logger.Info("run started",
		"run_id", env.Data.ID,
		"platform", req.Platform,
		"targets", len(req.TargetURLs),
		"max_posts", req.MaxPosts,
	)

	return env.handle(), nil
}

// WaitForRun polls the run until it reaches a terminal state or ctx expires.
func (c *Client) WaitForRun(ctx context.Context, runID string) (*domain.RunHandle, error) {
	endpoint := fmt.Sprintf("%s/v2/actor-runs/%s?waitForFinish=%d", c.baseURL, url.PathEscape(runID), c.waitSeconds)

	for {
		body, err := c.do(ctx, c.executor, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("get run: %w", err)
		}

		var env runEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}

		switch env.Data.Status {
		case domain.RunStatusSucceeded:
			return env.handle(), nil
		case domain.RunStatusFailed, domain.RunStatusAborted, domain.RunStatusTimedOut:
			return env.handle(), &RunFailedError{RunID: runID, Status: env.Data.Status}
		}

		c.logger.Debug("run still in progress", "run_id", runID, "status", env.Data.Status)

		select {
		case <-ctx.Done():
			return env.handle(), fmt.Errorf("%w: %v", ErrRunNotFinished, ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}
}

// RunAndWait starts a run without a webhook and blocks until it succeeds.
func (c *Client) RunAndWait(ctx context.Context, req domain.RunRequest) (*domain.RunHandle, error) {
	req.WebhookURL = ""

	started, err := c.StartRun(ctx, req)
	if err != nil {
		return nil, err
	}

	return c.WaitForRun(ctx, started.RunID)
}

// FetchItems pages through a dataset and returns every item undecoded.
func (c *Client) FetchItems(ctx context.Context, datasetID string) ([]json.RawMessage, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	var items []json.RawMessage
	for offset := 0; ; offset += c.pageSize {
		endpoint := fmt.Sprintf("%s/v2/datasets/%s/items?clean=true&format=json&offset=%d&limit=%d",
			c.baseURL, url.PathEscape(datasetID), offset, c.pageSize)

		body, err := c.do(ctx, c.executor, http.MethodGet, endpoint, nil)
		if err != nil {
			return items, fmt.Errorf("fetch items at offset %d: %w", offset, err)
		}

		var page []json.RawMessage
		if err := json.Unmarshal(body, &page); err != nil {
			return items, fmt.Errorf("decode items: %w", err)
		}

		items = append(items, page...)

		c.logger.Debug("fetched dataset page",
			"dataset_id", datasetID,
			"offset", offset,
			"items", len(page),
			"total", len(items),
		)

		if len(page) < c.pageSize {
			return items, nil
		}
	}
}

func actorInput(req domain.RunRequest) map[string]any {
	if req.Platform == domain.PlatformYouTube {
		return map[string]any{
			"channelUrls":       req.TargetURLs,
			"maxResults":        req.MaxPosts,
			"scrapeTranscripts": true,
		}
	}
	return map[string]any{
		"targetUrls": req.TargetURLs,
		"maxPosts":   req.MaxPosts,
	}
}

func (c *Client) encodeWebhooks(requestURL string) (string, error) {
	hook := webhookSpec{
		EventTypes: []string{domain.EventRunSucceeded},
		RequestURL: requestURL,
	}
	if c.webhookSecret != "" {
		headers, err := json.Marshal(map[string]string{SecretHeader: c.webhookSecret})
		if err != nil {
			return "", fmt.Errorf("marshal webhook headers: %w", err)
		}
		hook.HeadersTemplate = string(headers)
	}

	raw, err := json.Marshal([]webhookSpec{hook})
	if err != nil {
		return "", fmt.Errorf("marshal webhooks: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// do runs one request through executor and returns the body of a 2xx
// response.
func (c *Client) do(ctx context.Context, executor failsafe.Executor[[]byte], method, endpoint string, payload []byte) ([]byte, error) {
	return executor.WithContext(ctx).Get(func() ([]byte, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("User-Agent", "SocialIngest/1.0")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("execute request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &APIError{StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
		}
		return body, nil
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..." + strconv.Itoa(len(s)-n) + " more bytes"
}
