package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/card-connector/pkg/logger"
	"github.com/angelmondragon/card-connector/pkg/metrics"
)

const (
	defaultTimeout              = 30 * time.Second
	apiKeyHeader                = "X-API-Key"
	responseBodyReadLimit int64 = 1024
)

var (
	errBaseURLRequired = errors.New("processor base url is required")
	errAPIKeyRequired  = errors.New("processor api key is required")
)

// Client calls the processor's card action endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	metrics    *metrics.SyncMetrics
	logg       *logger.Logger
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-call timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithMetrics records call counts and latency.
func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger attaches a logger for failed calls.
func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) {
		if logg != nil {
			c.logg = logg
		}
	}
}

// NewClient builds a processor client for the given base URL and API key.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	trimmedURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedURL == "" {
		return nil, errBaseURLRequired
	}
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    trimmedURL,
		apiKey:     trimmedKey,
		logg:       logger.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Activate asks the processor to activate the card.
func (c *Client) Activate(ctx context.Context, cardID int64, panAlias string) Result {
	return c.call(ctx, ActionActivate, cardID, panAlias)
}

// Block asks the processor to block the card.
func (c *Client) Block(ctx context.Context, cardID int64, panAlias string) Result {
	return c.call(ctx, ActionBlock, cardID, panAlias)
}

// Unblock asks the processor to unblock the card.
func (c *Client) Unblock(ctx context.Context, cardID int64, panAlias string) Result {
	return c.call(ctx, ActionUnblock, cardID, panAlias)
}

// Oppose asks the processor to permanently oppose the card.
func (c *Client) Oppose(ctx context.Context, cardID int64, panAlias string) Result {
	return c.call(ctx, ActionOppose, cardID, panAlias)
}

type actionRequest struct {
	CardReference string `json:"cardReference"`
}

type actionResponse struct {
	Success *bool          `json:"success"`
	Status  *string        `json:"status"`
	Details map[string]any `json:"details"`
}

func (c *Client) call(ctx context.Context, action Action, cardID int64, panAlias string) Result {
	started := time.Now()
	result, err := c.do(ctx, action, CardReference(cardID, panAlias))
	if err != nil {
		ctx = c.logg.WithFields(ctx, map[string]any{"card_id": cardID, "action": string(action)})
		c.logg.Error(ctx, "processor call failed", err)
		result = failure(err.Error())
	}
	c.metrics.ObserveProcessorCall(string(action), result.Success, time.Since(started))
	return result
}

func (c *Client) do(ctx context.Context, action Action, reference string) (Result, error) {
	payload, err := json.Marshal(actionRequest{CardReference: reference})
	if err != nil {
		return Result{}, fmt.Errorf("marshal %s request: %w", action, err)
	}

	url := fmt.Sprintf("%s/cards/%s", c.baseURL, action)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("build %s request: %w", action, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("execute %s request: %w", action, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return Result{}, fmt.Errorf("%s request failed: status %d: %s", action, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var apiResp actionResponse
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&apiResp); err != nil {
		return Result{}, fmt.Errorf("decode %s response: %w", action, err)
	}

	result := Result{Success: true, StatusCode: "success", Details: apiResp.Details}
	if apiResp.Success != nil {
		result.Success = *apiResp.Success
	}
	if apiResp.Status != nil {
		result.StatusCode = *apiResp.Status
	}
	return result, nil
}
