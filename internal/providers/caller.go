package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xela07ax/compliance-console/internal/infra"
)

// Caller — исходящий вызов функции провайдера: операция + JSON тело -> JSON ответ.
// Реализуется HTTPCaller (реальный провайдер), MockCaller и ReliableClient (обертка).
type Caller interface {
	Call(ctx context.Context, operation string, payload []byte) ([]byte, error)
}

// ThrottleError — провайдер попросил подождать (429 + Retry-After).
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }

const maxResponseBytes = 4 << 20

type HTTPCaller struct {
	provider string
	baseURL  string
	token    string
	client   *http.Client
}

func NewHTTPCaller(provider string, cfg infra.ProviderConfig) *HTTPCaller {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPCaller{
		provider: provider,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.APIToken,
		client:   &http.Client{Timeout: timeout},
	}
}

// Call отправляет POST {base_url}/{operation} и классифицирует сбой:
// нет ответа — fetch, 502/503/504 от шлюза функций — relay, прочие не-2xx — http.
func (c *HTTPCaller) Call(ctx context.Context, operation string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+operation, bytes.NewReader(payload))
	if err != nil {
		return nil, &domain.ProviderError{Provider: c.provider, Kind: domain.ProviderKindFetch, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &domain.ProviderError{Provider: c.provider, Kind: domain.ProviderKindFetch, Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &domain.ProviderError{Provider: c.provider, Kind: domain.ProviderKindFetch, StatusCode: resp.StatusCode, Cause: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, classifyStatus(c.provider, resp, body)
}

func classifyStatus(provider string, resp *http.Response, body []byte) error {
	cause := errors.New(snippet(body))
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return &ThrottleError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Cause:      &domain.ProviderError{Provider: provider, Kind: domain.ProviderKindHTTP, StatusCode: resp.StatusCode, Cause: cause},
		}
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &domain.ProviderError{Provider: provider, Kind: domain.ProviderKindRelay, StatusCode: resp.StatusCode, Cause: cause}
	default:
		return &domain.ProviderError{Provider: provider, Kind: domain.ProviderKindHTTP, StatusCode: resp.StatusCode, Cause: cause}
	}
}

// parseRetryAfter понимает секунды и HTTP-дату, по умолчанию 1s
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return time.Second
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return time.Second
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	if s == "" {
		return "empty response body"
	}
	return s
}
