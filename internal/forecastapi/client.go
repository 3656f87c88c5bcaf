// Package forecastapi talks to the external forecasting and catalog service.
package forecastapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"pharmacy-forecast/internal/model"
	"pharmacy-forecast/internal/synth"
)

const defaultUserAgent = "pharmaforecast/1.0"

// Options parameterise the HTTP client.
type Options struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	UserAgent    string
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// Client is the HTTP implementation of Service.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs a retrying client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	if opts.RetryWaitMin > 0 {
		retryClient.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		retryClient.RetryWaitMax = opts.RetryWaitMax
	}
	retryClient.Logger = nil
	retryClient.HTTPClient.Timeout = timeout

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "forecast_api").Logger(),
		client:  retryClient.StandardClient(),
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// ListTargets returns every forecastable product and category.
func (c *Client) ListTargets(ctx context.Context) ([]model.Target, error) {
	var targets []model.Target
	if err := c.do(ctx, http.MethodGet, "/targets", nil, &targets); err != nil {
		return nil, err
	}
	return targets, nil
}

// ListCategories returns the catalog categories.
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	if err := c.do(ctx, http.MethodGet, "/categories", nil, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// ListTrainedModels returns the models fitted so far.
func (c *Client) ListTrainedModels(ctx context.Context) ([]TrainedModel, error) {
	var models []TrainedModel
	if err := c.do(ctx, http.MethodGet, "/models", nil, &models); err != nil {
		return nil, err
	}
	return models, nil
}

// GetAccuracySummary returns service-wide accuracy figures.
func (c *Client) GetAccuracySummary(ctx context.Context) (AccuracySummary, error) {
	var summary AccuracySummary
	err := c.do(ctx, http.MethodGet, "/accuracy", nil, &summary)
	return summary, err
}

// GetHistoricalSeries returns real point history for target at tf.
func (c *Client) GetHistoricalSeries(ctx context.Context, target model.Target, tf synth.Timeframe) ([]model.HistoricalPoint, error) {
	q := url.Values{"timeframe": []string{string(tf)}}
	var points []model.HistoricalPoint
	if err := c.do(ctx, http.MethodGet, targetPath(target, "history")+"?"+q.Encode(), nil, &points); err != nil {
		return nil, err
	}
	return points, nil
}

// GetForecast asks the service for a horizonDays forecast.
func (c *Client) GetForecast(ctx context.Context, target model.Target, horizonDays int) (model.ForecastResult, error) {
	q := url.Values{"horizon": []string{strconv.Itoa(horizonDays)}}
	var fc model.ForecastResult
	err := c.do(ctx, http.MethodPost, targetPath(target, "forecast")+"?"+q.Encode(), nil, &fc)
	return fc, err
}

// TrainModel retrains target with the candidate models and returns the new forecast.
func (c *Client) TrainModel(ctx context.Context, target model.Target, models []string) (model.ForecastResult, error) {
	body := trainRequest{Models: models}
	var fc model.ForecastResult
	err := c.do(ctx, http.MethodPost, targetPath(target, "train"), body, &fc)
	return fc, err
}

type trainRequest struct {
	Models []string `json:"models"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func targetPath(target model.Target, action string) string {
	kind := target.Type
	if kind == "" {
		kind = model.TargetProduct
	}
	return fmt.Sprintf("/targets/%s/%d/%s", url.PathEscape(kind), target.ID, action)
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("%w: base url not configured", ErrUnavailable)
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", defaultUserAgent)
	}
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("forecast api call")

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %v", ErrUnavailable, parseHTTPError(resp.StatusCode, data))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseHTTPError(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func parseHTTPError(status int, payload []byte) *APIError {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		for _, msg := range []string{apiErr.Error, apiErr.Message, apiErr.Detail} {
			if msg != "" {
				return &APIError{Status: status, Message: msg}
			}
		}
	}
	return &APIError{Status: status, Message: strings.TrimSpace(string(payload))}
}

var _ Service = (*Client)(nil)
