package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/logging"
	"github.com/ekaya-inc/ekaya-adsync/pkg/telemetry"
)

const (
	DefaultBaseURL = "https://graph.facebook.com"
	DefaultVersion = "v19.0"
)

type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Client performs single Graph API requests with throttling retries.
// Pagination lives in pager.go, typed endpoints in service.go.
type Client struct {
	BaseURL   string
	Version   string
	AppSecret string
	HTTP      HTTPClient
	UserAgent string

	// MaxThrottleRetries is how many times a throttled request is retried.
	// Waits are ThrottleBaseDelay * 2^attempt (60s, 120s, 240s by default).
	MaxThrottleRetries int
	ThrottleBaseDelay  time.Duration

	// Sleep waits between attempts and pages; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error

	// Metrics counts responses by status; nil disables it.
	Metrics *telemetry.Metrics

	logger *zap.Logger
}

// Request describes one Graph call. Path is relative to the version segment.
type Request struct {
	Method      string
	Path        string
	Query       map[string]string
	Form        map[string]string
	AccessToken string
}

// Response is a successful Graph response.
type Response struct {
	StatusCode int
	Raw        []byte
	Headers    http.Header
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Raw, v); err != nil {
		return fmt.Errorf("decode response JSON: %w", err)
	}
	return nil
}

func NewClient(httpClient HTTPClient, baseURL, version, appSecret string, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if version == "" {
		version = DefaultVersion
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		BaseURL:            strings.TrimSuffix(baseURL, "/"),
		Version:            version,
		AppSecret:          appSecret,
		HTTP:               httpClient,
		UserAgent:          "ekaya-adsync/1.0",
		MaxThrottleRetries: 3,
		ThrottleBaseDelay:  30 * time.Second,
		Sleep:              sleepContext,
		logger:             logger.Named("meta-client"),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do sends req. Throttled responses are retried with exponential backoff and
// end in a *ThrottledError once retries run out; any other failure is
// returned immediately.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	if req.Path == "" {
		return nil, fmt.Errorf("graph request path is required")
	}

	attempt := 0
	for {
		resp, err := c.doOnce(ctx, method, req)
		if err == nil {
			return resp, nil
		}

		apiErr, ok := err.(*APIError)
		if !ok || !apiErr.Throttled {
			return nil, err
		}
		if attempt >= c.MaxThrottleRetries {
			return nil, &ThrottledError{Path: req.Path, Attempts: attempt + 1, Last: apiErr}
		}

		attempt++
		wait := c.ThrottleBaseDelay * time.Duration(1<<attempt)
		c.logger.Warn("Rate limited by Meta API, backing off",
			zap.String("path", req.Path),
			zap.Int("code", apiErr.Code),
			zap.Duration("wait", wait),
			zap.Int("retry", attempt),
			zap.Int("max_retries", c.MaxThrottleRetries))
		if err := c.Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (c *Client) doOnce(ctx context.Context, method string, req Request) (*Response, error) {
	endpoint, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse graph base url: %w", err)
	}
	endpoint.Path = path.Join(endpoint.Path, c.Version, strings.TrimPrefix(req.Path, "/"))

	query := url.Values{}
	for key, value := range req.Query {
		query.Set(key, value)
	}

	var body io.Reader
	if method == http.MethodGet || method == http.MethodDelete {
		c.sign(query, req.AccessToken)
	} else {
		form := url.Values{}
		for key, value := range req.Form {
			form.Set(key, value)
		}
		c.sign(form, req.AccessToken)
		body = strings.NewReader(form.Encode())
	}
	endpoint.RawQuery = query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build graph request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.UserAgent)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	httpRes, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: "send request", Err: err}
	}
	defer httpRes.Body.Close()

	raw, err := io.ReadAll(httpRes.Body)
	if err != nil {
		return nil, &TransportError{Op: "read response", Err: err}
	}

	apiErr := parseAPIError(httpRes.StatusCode, raw)
	c.Metrics.ObserveGraphResponse(httpRes.StatusCode, apiErr != nil && apiErr.Throttled)
	if apiErr != nil {
		return nil, apiErr
	}
	if httpRes.StatusCode < 200 || httpRes.StatusCode >= 300 {
		return nil, &APIError{
			Type:       "http",
			Code:       httpRes.StatusCode,
			Message:    logging.TruncateString(string(bytes.TrimSpace(raw)), logging.MaxBodyLogLength),
			StatusCode: httpRes.StatusCode,
		}
	}

	return &Response{
		StatusCode: httpRes.StatusCode,
		Raw:        raw,
		Headers:    httpRes.Header.Clone(),
	}, nil
}

func (c *Client) sign(values url.Values, accessToken string) {
	if accessToken == "" {
		return
	}
	values.Set("access_token", accessToken)
	if c.AppSecret != "" {
		values.Set("appsecret_proof", AppSecretProof(accessToken, c.AppSecret))
	}
}

func parseAPIError(statusCode int, raw []byte) *APIError {
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &envelope)
	}

	if envelope.Error == nil {
		if statusCode == http.StatusTooManyRequests {
			return &APIError{
				Type:       "rate_limit",
				Code:       http.StatusTooManyRequests,
				Message:    "rate limited",
				StatusCode: statusCode,
				Throttled:  true,
			}
		}
		return nil
	}

	apiErr := envelope.Error
	apiErr.StatusCode = statusCode
	apiErr.Throttled = IsThrottleCode(statusCode, apiErr.Code)
	return apiErr
}
