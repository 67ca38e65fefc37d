package bybit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jpillora/backoff"
)

// V5 REST hosts
const (
	mainnetHost = "https://api.bybit.com"
	testnetHost = "https://api-testnet.bybit.com"
)

const (
	recvWindow     = "5000"
	requestRetries = 3
)

// APIError is a non-zero retCode returned by the exchange
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit api error %d: %s", e.Code, e.Msg)
}

// baseResponse is the envelope every V5 endpoint replies with
type baseResponse struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// client signs and sends V5 REST requests
type client struct {
	http      *http.Client
	baseURL   string
	apiKey    string
	apiSecret string
}

func newClient(apiKey, apiSecret string, testnet bool) *client {
	baseURL := mainnetHost
	if testnet {
		baseURL = testnetHost
	}

	return &client{
		http:      &http.Client{Timeout: 15 * time.Second},
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
	}
}

// sign computes the V5 request signature over
// timestamp + apiKey + recvWindow + payload
func (c *client) sign(timestamp, payload string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(timestamp + c.apiKey + recvWindow + payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *client) authorize(req *http.Request, payload string) {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req.Header.Set("X-BAPI-API-KEY", c.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
	req.Header.Set("X-BAPI-SIGN", c.sign(timestamp, payload))
}

// get performs a GET request. Private endpoints are signed over the raw
// query string.
func (c *client) get(ctx context.Context, path string, query url.Values, private bool, out any) error {
	rawQuery := query.Encode()
	endpoint := c.baseURL + path
	if rawQuery != "" {
		endpoint += "?" + rawQuery
	}

	return c.retryDo(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		if private {
			c.authorize(req, rawQuery)
		}
		return req, nil
	}, out)
}

// post performs a signed POST request with a JSON body
func (c *client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	return c.retryDo(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		c.authorize(req, string(payload))
		return req, nil
	}, out)
}

// retryDo sends a request, retrying transport failures with backoff.
// API errors (non-zero retCode) are not retried; the exchange already
// took a decision on the request.
func (c *client) retryDo(ctx context.Context, build func() (*http.Request, error), out any) error {
	retry := setupBackoffRetry()

	var lastErr error
	for attempt := 0; attempt < requestRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retry.Duration()):
			}
		}

		req, err := build()
		if err != nil {
			return err
		}

		lastErr = c.do(req, out)
		if lastErr == nil {
			return nil
		}

		var apiErr *APIError
		if errors.As(lastErr, &apiErr) {
			return lastErr
		}
	}

	return lastErr
}

func (c *client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var base baseResponse
	if err := json.Unmarshal(body, &base); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if base.RetCode != 0 {
		return &APIError{Code: base.RetCode, Msg: base.RetMsg}
	}

	if out != nil && len(base.Result) > 0 {
		if err := json.Unmarshal(base.Result, out); err != nil {
			return fmt.Errorf("failed to decode result: %w", err)
		}
	}

	return nil
}

// setupBackoffRetry creates a backoff with sensible defaults
func setupBackoffRetry() *backoff.Backoff {
	return &backoff.Backoff{
		Min: 100 * time.Millisecond,
		Max: 1 * time.Second,
	}
}
