// Package http holds the JSON clients for the remote payment-ledger backend
// and the NFT minter.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/psm-labs/solpay/logging"
	"github.com/psm-labs/solpay/metrics"
)

// AuthProvider generates authentication headers for backend requests
type AuthProvider interface {
	GetAuthHeaders(ctx context.Context) (map[string]string, error)
}

// BearerAuth sends a static bearer token.
type BearerAuth string

// GetAuthHeaders implements AuthProvider.
func (b BearerAuth) GetAuthHeaders(ctx context.Context) (map[string]string, error) {
	if b == "" {
		return nil, nil
	}
	return map[string]string{"Authorization": "Bearer " + string(b)}, nil
}

// Config configures a backend client
type Config struct {
	// URL is the base URL of the service
	URL string

	// HTTPClient is the HTTP client to use (optional)
	HTTPClient *http.Client

	// AuthProvider provides authentication headers (optional)
	AuthProvider AuthProvider

	// Timeout for requests (optional, defaults to 30s)
	Timeout time.Duration
}

// RequestIDHeader carries the correlation id of every outgoing request.
const RequestIDHeader = "X-Request-ID"

// rateLimitRetries is the number of attempts for idempotent GETs answered with 429
const rateLimitRetries = 3

// rateLimitRetryBaseDelay is the base delay for exponential backoff on 429
var rateLimitRetryBaseDelay = 1 * time.Second

// StatusError is a non-2xx response.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s request failed (%d): %s", e.Service, e.StatusCode, e.Body)
}

// jsonClient is the transport shared by the backend and minter clients.
type jsonClient struct {
	service      string
	url          string
	httpClient   *http.Client
	authProvider AuthProvider
}

func newJSONClient(service string, config Config) (*jsonClient, error) {
	base := strings.TrimRight(strings.TrimSpace(config.URL), "/")
	if base == "" {
		return nil, fmt.Errorf("%s url is required", service)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{
			Timeout: timeout,
		}
	}

	return &jsonClient{
		service:      service,
		url:          base,
		httpClient:   httpClient,
		authProvider: config.AuthProvider,
	}, nil
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
// GETs answered with 429 are retried with exponential backoff.
func (c *jsonClient) do(ctx context.Context, method, path string, in, out interface{}) (err error) {
	defer func() {
		metrics.RecordBackendRequest(c.service, err == nil)
	}()

	var body []byte
	if in != nil {
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", c.service, err)
		}
	}

	attempts := 1
	if method == http.MethodGet {
		attempts = rateLimitRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		status, responseBody, err := c.roundTrip(ctx, method, path, body)
		if err != nil {
			return err
		}

		if status >= 200 && status < 300 {
			if out == nil || len(bytes.TrimSpace(responseBody)) == 0 {
				return nil
			}
			if err := json.Unmarshal(responseBody, out); err != nil {
				return fmt.Errorf("failed to decode %s response: %w", c.service, err)
			}
			return nil
		}

		lastErr = &StatusError{Service: c.service, StatusCode: status, Body: string(responseBody)}

		if status == http.StatusTooManyRequests && attempt < attempts-1 {
			delay := rateLimitRetryBaseDelay * time.Duration(1<<uint(attempt))
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return lastErr
	}
	return lastErr
}

func (c *jsonClient) roundTrip(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create %s request: %w", c.service, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	requestID := logging.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set(RequestIDHeader, requestID)

	if c.authProvider != nil {
		headers, err := c.authProvider.GetAuthHeaders(ctx)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to get auth headers: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s request failed: %w", c.service, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read %s response body: %w", c.service, err)
	}
	return resp.StatusCode, responseBody, nil
}
