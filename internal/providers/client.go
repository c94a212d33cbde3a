// Package providers holds the HTTP clients of the external data sources the
// hub fronts. Every client implements datahub.Provider.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/arc-research/arc-pipeline/internal/datahub"
)

const maxBodyBytes = 4 << 20

var ErrUnsupportedMethod = errors.New("unsupported method")

type APIError struct {
	Source     string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	if body == "" {
		return fmt.Sprintf("%s api error (status=%d)", e.Source, e.StatusCode)
	}
	return fmt.Sprintf("%s api error (status=%d): %s", e.Source, e.StatusCode, body)
}

// Transient reports whether the status is worth retrying.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type client struct {
	source    string
	baseURL   string
	apiKey    string
	keyParam  string
	userAgent string
	http      *http.Client
}

func newClient(source, baseURL, apiKey, keyParam string, httpClient *http.Client) *client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &client{
		source:   source,
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:   strings.TrimSpace(apiKey),
		keyParam: keyParam,
		http:     httpClient,
	}
}

// getJSON issues a GET and returns the raw body. 429 and 5xx come back as
// retryable errors; any other non-2xx status is permanent.
func (c *client) getJSON(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	if query == nil {
		query = url.Values{}
	}
	if c.apiKey != "" && c.keyParam != "" {
		query.Set(c.keyParam, c.apiKey)
	}
	target := c.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, datahub.Permanent(fmt.Errorf("build %s request: %w", c.source, err))
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", c.source, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", c.source, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Source: c.source, StatusCode: resp.StatusCode, Body: string(body)}
		if apiErr.Transient() {
			return nil, apiErr
		}
		return nil, datahub.Permanent(apiErr)
	}
	if !json.Valid(body) {
		return nil, datahub.Permanent(fmt.Errorf("decode %s response: invalid json", c.source))
	}
	return json.RawMessage(body), nil
}

func unsupported(source, method string) error {
	return datahub.Permanent(fmt.Errorf("%s: %w %q", source, ErrUnsupportedMethod, method))
}

func requireParam(params map[string]string, key string) (string, error) {
	v := strings.TrimSpace(params[key])
	if v == "" {
		return "", datahub.Permanent(fmt.Errorf("%s is required", key))
	}
	return v, nil
}
