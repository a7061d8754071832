package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPClient talks to the provider's REST API. Status codes hold the
// classification: 429 is RATE_LIMIT, 401/403 a non-retryable auth failure,
// other 4xx are VALIDATION, 5xx transient PROVIDER_API, transport failures
// NETWORK.
type HTTPClient struct {
	baseURL   string
	secretKey string
	http      *http.Client
	log       *zap.SugaredLogger
}

type HTTPClientOptions struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

func NewHTTPClient(opts HTTPClientOptions, log *zap.SugaredLogger) *HTTPClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:   opts.BaseURL,
		secretKey: opts.SecretKey,
		http:      &http.Client{Timeout: timeout},
		log:       log,
	}
}

func (c *HTTPClient) CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSession, error) {
	var out CheckoutSession
	headers := map[string]string{}
	if req.IdempotencyKey != "" {
		headers["Idempotency-Key"] = req.IdempotencyKey
	}
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", req, headers, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	var out CheckoutSession
	if err := c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+sessionID, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetAccountStatus(ctx context.Context, accountID string) (*AccountStatus, error) {
	var out AccountStatus
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+accountID, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type apiErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return newError(CategoryValidation, false, "failed to encode request", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return newError(CategoryValidation, false, "failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return newError(CategoryNetwork, true, fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return newError(CategoryNetwork, true, "failed to read response body", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiErrorBody
		_ = json.Unmarshal(raw, &apiErr)
		msg := apiErr.Error.Message
		if msg == "" {
			msg = fmt.Sprintf("%s %s returned %d", method, path, resp.StatusCode)
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return newError(CategoryRateLimit, true, msg, nil)
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			e := newError(CategoryProviderAPI, false, msg, nil)
			e.AuthFailure = true
			return e
		case resp.StatusCode >= 500:
			return newError(CategoryProviderAPI, true, msg, nil)
		default:
			return newError(CategoryValidation, false, msg, nil)
		}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return newError(CategoryProviderAPI, true, "failed to decode response body", err)
		}
	}
	return nil
}

var _ Client = (*HTTPClient)(nil)
