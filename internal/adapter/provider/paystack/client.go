package paystack

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

	"custodial-wallet/config"
	"custodial-wallet/internal/core/ports"
	"custodial-wallet/pkg/logger"

	"github.com/rs/zerolog"
)

// defaultRetryIntervals is the wait before each retry of a transient failure.
var defaultRetryIntervals = []time.Duration{
	200 * time.Millisecond,
	500 * time.Millisecond,
	1 * time.Second,
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements ports.PaymentProvider against the Paystack REST API.
type Client struct {
	secretKey      string
	baseURL        string
	httpClient     HTTPClient
	retryIntervals []time.Duration
	log            zerolog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc HTTPClient) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryIntervals replaces the retry schedule. An empty slice disables retries.
func WithRetryIntervals(intervals []time.Duration) Option {
	return func(c *Client) { c.retryIntervals = intervals }
}

// NewClient creates a Paystack client.
func NewClient(cfg config.PaystackConfig, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retryIntervals: defaultRetryIntervals,
		log:            logger.Component(log, "paystack"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type initializeRequest struct {
	Email       string `json:"email"`
	Amount      int64  `json:"amount"`
	Reference   string `json:"reference"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type initializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// errTransient marks failures worth retrying.
var errTransient = errors.New("transient provider failure")

// InitializeTransaction opens a hosted checkout for the given reference.
func (c *Client) InitializeTransaction(ctx context.Context, req ports.CheckoutRequest) (*ports.CheckoutSession, error) {
	body, err := json.Marshal(initializeRequest{
		Email:       req.Email,
		Amount:      req.Amount,
		Reference:   req.Reference,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal initialize request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= len(c.retryIntervals); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("paystack initialize: %w", ctx.Err())
			case <-time.After(c.retryIntervals[attempt-1]):
			}
		}

		session, err := c.initialize(ctx, body)
		if err == nil {
			c.log.Info().
				Str("reference", req.Reference).
				Int("attempt", attempt+1).
				Msg("paystack transaction initialized")
			return session, nil
		}
		lastErr = err
		if !errors.Is(err, errTransient) {
			break
		}
		c.log.Warn().Err(err).
			Str("reference", req.Reference).
			Int("attempt", attempt+1).
			Msg("paystack initialize failed, retrying")
	}

	c.log.Error().Err(lastErr).Str("reference", req.Reference).Msg("paystack initialize failed")
	return nil, lastErr
}

func (c *Client) initialize(ctx context.Context, body []byte) (*ports.CheckoutSession, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("paystack request: %w", err)
		}
		return nil, fmt.Errorf("paystack request: %v: %w", err, errTransient)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %v: %w", err, errTransient)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("paystack status %d: %w", resp.StatusCode, errTransient)
	}

	var parsed initializeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse paystack response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !parsed.Status {
		return nil, fmt.Errorf("paystack rejected request (status %d): %s", resp.StatusCode, parsed.Message)
	}
	if parsed.Data.AuthorizationURL == "" {
		return nil, errors.New("paystack response missing authorization_url")
	}

	return &ports.CheckoutSession{
		AuthorizationURL: parsed.Data.AuthorizationURL,
		AccessCode:       parsed.Data.AccessCode,
		Reference:        parsed.Data.Reference,
	}, nil
}
